package stream

import (
	"testing"

	"github.com/vnykmshr/evflow/internal/testutil"
)

// recordingSource is a producer that records the control calls it receives.
type recordingSource struct {
	*ReadableStream[string]
	name string
	log  *[]string
}

func newRecordingSource(name string, log *[]string) *recordingSource {
	return &recordingSource{ReadableStream: NewReadable[string](), name: name, log: log}
}

func (s *recordingSource) Pause() {
	*s.log = append(*s.log, s.name+".pause")
	s.ReadableStream.Pause()
}

func (s *recordingSource) Resume() {
	*s.log = append(*s.log, s.name+".resume")
	s.ReadableStream.Resume()
}

func (s *recordingSource) Pipe(dst Writable[string], opts ...PipeOption) Writable[string] {
	return Pipe[string](s, dst, opts...)
}

func TestThroughEmitsDataWrittenToIt(t *testing.T) {
	through := NewThrough[string]()
	data := testutil.NewCallbackTracker()
	through.OnData(func(chunk string) { data.Mark(chunk) })

	testutil.AssertEqual(t, through.Write("foo"), true)
	data.AssertCalledOnceWith(t, "foo")
}

func TestThroughReceivesPipedData(t *testing.T) {
	readable := NewReadable[string]()
	through := NewThrough[string]()
	data := testutil.NewCallbackTracker()
	through.OnData(func(chunk string) { data.Mark(chunk) })

	readable.Pipe(through)
	readable.EmitData("foo")

	data.AssertCalledOnceWith(t, "foo")
}

func TestThroughForwardsChunksInOrder(t *testing.T) {
	readable := NewReadable[string]()
	through := NewThrough[string]()

	var got []string
	through.OnData(func(chunk string) { got = append(got, chunk) })

	readable.Pipe(through)
	readable.EmitData("x")
	readable.EmitData("y")

	testutil.AssertSliceEqual(t, got, []string{"x", "y"})
}

func TestThroughEnd(t *testing.T) {
	t.Run("emits end and close", func(t *testing.T) {
		through := NewThrough[string]()
		data := testutil.NewCallbackTracker()
		end := testutil.NewCallbackTracker()
		closed := testutil.NewCallbackTracker()
		through.OnData(func(chunk string) { data.Mark(chunk) })
		through.OnEnd(end.Func())
		through.OnClose(closed.Func())

		through.End()

		data.AssertNotCalled(t)
		end.AssertCallCount(t, 1)
		closed.AssertCallCount(t, 1)
	})

	t.Run("closes the stream", func(t *testing.T) {
		through := NewThrough[string]()
		through.End()

		testutil.AssertEqual(t, through.IsReadable(), false)
		testutil.AssertEqual(t, through.IsWritable(), false)
	})

	t.Run("writes data before closing", func(t *testing.T) {
		through := NewThrough[string]()
		data := testutil.NewCallbackTracker()
		through.OnData(func(chunk string) { data.Mark(chunk) })

		through.EndWith("foo")

		data.AssertCalledOnceWith(t, "foo")
		testutil.AssertEqual(t, through.IsReadable(), false)
		testutil.AssertEqual(t, through.IsWritable(), false)
	})

	t.Run("twice only emits once", func(t *testing.T) {
		through := NewThrough[string]()
		data := testutil.NewCallbackTracker()
		end := testutil.NewCallbackTracker()
		closed := testutil.NewCallbackTracker()
		through.OnData(func(chunk string) { data.Mark(chunk) })
		through.OnEnd(end.Func())
		through.OnClose(closed.Func())

		through.EndWith("first")
		through.EndWith("ignored")
		through.End()

		data.AssertCalledOnceWith(t, "first")
		end.AssertCallCount(t, 1)
		closed.AssertCallCount(t, 1)
	})
}

func TestThroughWriteAfterEndReturnsFalse(t *testing.T) {
	through := NewThrough[string]()
	data := testutil.NewCallbackTracker()
	through.OnData(func(chunk string) { data.Mark(chunk) })

	through.End()

	testutil.AssertEqual(t, through.Write("foo"), false)
	data.AssertNotCalled(t)
}

func TestThroughWriteThatClosesStreamReturnsFalse(t *testing.T) {
	through := NewThrough[string]()
	data := testutil.NewCallbackTracker()
	closed := testutil.NewCallbackTracker()
	through.OnData(func(chunk string) {
		data.Mark(chunk)
		through.Close()
	})
	through.OnClose(closed.Func())

	testutil.AssertEqual(t, through.Write("foo"), false)
	data.AssertCalledOnceWith(t, "foo")
	closed.AssertCallCount(t, 1)
}

func TestThroughEndFromDataHandler(t *testing.T) {
	through := NewThrough[string]()
	end := testutil.NewCallbackTracker()
	closed := testutil.NewCallbackTracker()
	through.OnData(func(string) { through.End() })
	through.OnEnd(end.Func())
	through.OnClose(closed.Func())

	through.EndWith("last")

	end.AssertCallCount(t, 1)
	closed.AssertCallCount(t, 1)
}

func TestThroughDefaults(t *testing.T) {
	through := NewThrough[string]()

	testutil.AssertEqual(t, through.IsReadable(), true)
	testutil.AssertEqual(t, through.IsWritable(), true)
	testutil.AssertEqual(t, through.IsClosed(), false)
	testutil.AssertEqual(t, through.IsPaused(), false)
	testutil.AssertEqual(t, through.Name(), through.ID().String())
}

func TestThroughPauseDelegatesToPipeSource(t *testing.T) {
	var log []string
	input := newRecordingSource("input", &log)
	through := NewThrough[string]()
	input.Pipe(through)

	through.Pause()

	testutil.AssertSliceEqual(t, log, []string{"input.pause"})
	testutil.AssertEqual(t, through.IsPaused(), true)
}

func TestThroughResumeDelegatesToPipeSource(t *testing.T) {
	var log []string
	input := newRecordingSource("input", &log)
	through := NewThrough[string]()
	input.Pipe(through)

	through.Resume()

	testutil.AssertSliceEqual(t, log, []string{"input.resume"})
}

func TestThroughDelegatesToEverySourceInPipeOrder(t *testing.T) {
	var log []string
	through := NewThrough[string]()
	for _, name := range []string{"a", "b", "c"} {
		newRecordingSource(name, &log).Pipe(through, WithEnd(false))
	}
	testutil.AssertEqual(t, len(through.Sources()), 3)

	through.Pause()
	through.Resume()

	testutil.AssertSliceEqual(t, log, []string{
		"a.pause", "b.pause", "c.pause",
		"a.resume", "b.resume", "c.resume",
	})
}

func TestThroughDelegatesThroughChainedStages(t *testing.T) {
	var log []string
	input := newRecordingSource("input", &log)
	first := NewThrough[string]()
	second := NewThrough[string]()
	input.Pipe(first).(*ThroughStream[string]).Pipe(second)

	second.Pause()

	testutil.AssertSliceEqual(t, log, []string{"input.pause"})
	testutil.AssertEqual(t, first.IsPaused(), true)
}

func TestThroughClose(t *testing.T) {
	t.Run("closes once", func(t *testing.T) {
		through := NewThrough[string]()
		closed := testutil.NewCallbackTracker()
		through.OnClose(closed.Func())

		through.Close()

		closed.AssertCallCount(t, 1)
		testutil.AssertEqual(t, through.IsReadable(), false)
		testutil.AssertEqual(t, through.IsWritable(), false)
	})

	t.Run("double close closes once", func(t *testing.T) {
		through := NewThrough[string]()
		closed := testutil.NewCallbackTracker()
		through.OnClose(closed.Func())

		through.Close()
		through.Close()

		closed.AssertCallCount(t, 1)
		testutil.AssertEqual(t, through.IsReadable(), false)
		testutil.AssertEqual(t, through.IsWritable(), false)
	})

	t.Run("releases handlers", func(t *testing.T) {
		through := NewThrough[string]()
		through.OnData(func(string) {})
		through.OnEnd(func() {})
		through.OnClose(func() {})
		through.OnDrain(func() {})

		through.Close()

		testutil.AssertEqual(t, through.events.data.len(), 0)
		testutil.AssertEqual(t, through.events.end.len(), 0)
		testutil.AssertEqual(t, through.events.close.len(), 0)
		testutil.AssertEqual(t, through.events.drain.len(), 0)
	})

	t.Run("does not close its sources", func(t *testing.T) {
		var log []string
		input := newRecordingSource("input", &log)
		through := NewThrough[string]()
		input.Pipe(through)

		through.Close()

		testutil.AssertEqual(t, input.IsReadable(), true)
		testutil.AssertEqual(t, input.IsClosed(), false)
	})
}

func TestThroughPipesIntoWritable(t *testing.T) {
	var writes []string
	output := NewWritableFunc[string](func(chunk string) bool {
		writes = append(writes, chunk)
		return true
	}, DefaultConfig())

	through := NewThrough[string]()
	through.Pipe(output)
	through.Write("foo")

	testutil.AssertSliceEqual(t, writes, []string{"foo"})
}
