package integration

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"github.com/vnykmshr/evflow/internal/testutil"
	"github.com/vnykmshr/evflow/pkg/metrics"
	"github.com/vnykmshr/evflow/pkg/sink"
	"github.com/vnykmshr/evflow/pkg/source"
	"github.com/vnykmshr/evflow/pkg/stream"
	"github.com/vnykmshr/evflow/pkg/throttle"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// TestChannelThroughWriter streams values produced on a goroutine through a
// pass-through stage into a buffered writer and checks nothing is lost while
// the writer's high water mark keeps pausing the producer.
func TestChannelThroughWriter(t *testing.T) {
	ch := make(chan []byte)
	go func() {
		defer close(ch)
		for i := 0; i < 50; i++ {
			ch <- []byte(fmt.Sprintf("%02d,", i))
		}
	}()

	out := testutil.NewMockWriter()
	config := sink.DefaultWriterConfig()
	config.HighWaterMark = 16
	config.FlushInterval = 0
	w, err := sink.NewWriterWithConfig(out, config)
	testutil.AssertNoError(t, err)

	src := source.FromChannel[[]byte](context.Background(), ch, stream.DefaultConfig())
	stage := stream.NewThrough[[]byte]()
	src.Pipe(stage)
	stage.Pipe(w)

	src.Start()
	<-src.Done()
	<-w.Done()

	var want strings.Builder
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&want, "%02d,", i)
	}
	testutil.AssertEqual(t, out.String(), want.String())
	if flushes := w.Stats().Flushes; flushes <= 1 {
		t.Fatalf("flushes = %d, expected the high water mark to force several", flushes)
	}
}

// TestBackpressureAcrossChain checks that a congested sink at the end of a
// through chain pauses the producer at its head, and drain resumes it.
func TestBackpressureAcrossChain(t *testing.T) {
	items := make([]int, 20)
	for i := range items {
		items[i] = i
	}
	src := source.FromSlice(items, stream.DefaultConfig())
	first := stream.NewThrough[int]()
	second := stream.NewThrough[int]()
	out := sink.NewCollector[int](5, stream.DefaultConfig())

	src.Pipe(first)
	first.Pipe(second)
	second.Pipe(out)

	src.Start()
	testutil.AssertEqual(t, out.Len(), 5)
	testutil.AssertEqual(t, src.IsPaused(), true)

	var total []int
	for out.IsWritable() {
		total = append(total, out.Drain()...)
	}
	total = append(total, out.Items()...)

	testutil.AssertSliceEqual(t, total, items)
	testutil.AssertEqual(t, src.IsReadable(), false)
}

// TestThrottledFanIn merges two producers into one throttled stage and
// checks the rate is applied to the merged flow.
func TestThrottledFanIn(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	config := throttle.DefaultConfig()
	config.Name = "merge"
	config.Metrics = reg
	config.Rate = 200
	config.Burst = 2
	th, err := throttle.New[string](config)
	testutil.AssertNoError(t, err)

	var received int32
	out := stream.NewWritableFunc[string](func(string) bool {
		atomic.AddInt32(&received, 1)
		return true
	}, stream.DefaultConfig())
	th.Pipe(out)

	a := source.FromSlice([]string{"a1", "a2", "a3"}, stream.DefaultConfig())
	b := source.FromSlice([]string{"b1", "b2", "b3"}, stream.DefaultConfig())
	a.Pipe(th, stream.WithEnd(false))
	b.Pipe(th, stream.WithEnd(false))

	start := time.Now()
	a.Start()
	b.Start()

	testutil.AssertEventually(t, func() bool { return atomic.LoadInt32(&received) == 6 })
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Fatalf("six chunks at 200/s took only %v", elapsed)
	}
	testutil.AssertEqual(t, th.IsWritable(), true)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.StreamPipes.WithLabelValues("merge")), 1.0)

	// let the pending drain fire before closing
	time.Sleep(10 * time.Millisecond)
	th.End()
	testutil.AssertEqual(t, out.IsClosed(), true)
}
