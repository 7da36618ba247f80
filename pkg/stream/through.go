package stream

import (
	"sync"
)

// ThroughStream is a pass-through duplex: every successful Write is emitted
// unchanged as data on the stream itself, with no buffering.
//
// A ThroughStream remembers the sources piped into it and forwards Pause and
// Resume to them, so backpressure from further downstream reaches the
// original producer. Those sources are not owned; the stream never closes
// them.
type ThroughStream[T any] struct {
	*core[T]

	upMu      sync.Mutex
	upstreams []upstream
}

// upstream is a non-owning handle to a source piped into a ThroughStream,
// keyed by the pipe edge that registered it.
type upstream struct {
	edge uint64
	ctl  Pauser
}

var _ Duplex[int] = (*ThroughStream[int])(nil)

// NewThrough creates a pass-through stream with default configuration.
func NewThrough[T any]() *ThroughStream[T] {
	return NewThroughWithConfig[T](DefaultConfig())
}

// NewThroughWithConfig creates a pass-through stream with the specified configuration.
func NewThroughWithConfig[T any](config Config) *ThroughStream[T] {
	return &ThroughStream[T]{core: newCore[T](config, true, true)}
}

// Write re-emits chunk as data. See WritableStream.Write for the return value.
func (t *ThroughStream[T]) Write(chunk T) bool {
	return t.write(chunk, nil)
}

// End emits end and closes the stream. Calls after the first are no-ops.
func (t *ThroughStream[T]) End() {
	var zero T
	t.end(t.Write, zero, false)
}

// EndWith emits chunk as data, then ends the stream.
func (t *ThroughStream[T]) EndWith(chunk T) {
	t.end(t.Write, chunk, true)
}

// Pause marks the stream paused and pauses every source piped into it, in
// the order they were piped.
func (t *ThroughStream[T]) Pause() {
	t.pause()
	for _, up := range t.upstreamSnapshot() {
		up.ctl.Pause()
	}
}

// Resume clears the paused mark and resumes every source piped into it, in
// the order they were piped.
func (t *ThroughStream[T]) Resume() {
	t.resume()
	for _, up := range t.upstreamSnapshot() {
		up.ctl.Resume()
	}
}

// Pipe implements Readable.Pipe.
func (t *ThroughStream[T]) Pipe(dst Writable[T], opts ...PipeOption) Writable[T] {
	return Pipe[T](t, dst, opts...)
}

// Unpipe implements Readable.Unpipe.
func (t *ThroughStream[T]) Unpipe(dst Writable[T]) {
	Unpipe[T](t, dst)
}

// OnDrain registers fn for drain events.
func (t *ThroughStream[T]) OnDrain(fn func()) Subscription {
	return t.onDrain(fn)
}

// EmitDrain tells producers they may resume writing.
func (t *ThroughStream[T]) EmitDrain() {
	t.emitDrain()
}

// Sources returns the streams currently piped into this one, in pipe order.
func (t *ThroughStream[T]) Sources() []Pauser {
	ups := t.upstreamSnapshot()
	srcs := make([]Pauser, len(ups))
	for i, up := range ups {
		srcs[i] = up.ctl
	}
	return srcs
}

func (t *ThroughStream[T]) trackUpstream(edge uint64, ctl Pauser) {
	t.upMu.Lock()
	t.upstreams = append(t.upstreams, upstream{edge: edge, ctl: ctl})
	t.upMu.Unlock()
}

func (t *ThroughStream[T]) untrackUpstream(edge uint64) {
	t.upMu.Lock()
	defer t.upMu.Unlock()

	for i, up := range t.upstreams {
		if up.edge == edge {
			t.upstreams = append(t.upstreams[:i:i], t.upstreams[i+1:]...)
			return
		}
	}
}

func (t *ThroughStream[T]) upstreamSnapshot() []upstream {
	t.upMu.Lock()
	defer t.upMu.Unlock()

	ups := make([]upstream, len(t.upstreams))
	copy(ups, t.upstreams)
	return ups
}
