package stream

import (
	"github.com/vnykmshr/evflow/pkg/metrics"
)

// CompositeStream joins an independent readable half and writable half into
// one Duplex, the way a socket pairs an inbound and an outbound direction.
// Unlike ThroughStream, written chunks are not echoed as data.
//
// data and end come from the readable half, drain from the writable half and
// error from both. Closing the composite closes both halves; either half
// closing closes the composite.
type CompositeStream[T any] struct {
	*core[T]

	r Readable[T]
	w Writable[T]
}

var _ Duplex[int] = (*CompositeStream[int])(nil)

// NewComposite creates a composite stream with default configuration.
func NewComposite[T any](r Readable[T], w Writable[T]) *CompositeStream[T] {
	return NewCompositeWithConfig(r, w, DefaultConfig())
}

// NewCompositeWithConfig creates a composite stream with the specified configuration.
func NewCompositeWithConfig[T any](r Readable[T], w Writable[T], config Config) *CompositeStream[T] {
	c := &CompositeStream[T]{
		core: newCore[T](config, true, true),
		r:    r,
		w:    w,
	}

	r.OnData(c.emitData)
	r.OnEnd(c.emitEnd)
	r.OnError(c.EmitError)
	r.OnClose(c.Close)

	w.OnDrain(c.emitDrain)
	w.OnError(c.EmitError)
	w.OnClose(c.Close)

	if !r.IsReadable() || !w.IsWritable() {
		c.Close()
	}
	return c
}

// IsReadable reports whether the readable half is still readable.
func (c *CompositeStream[T]) IsReadable() bool {
	return !c.IsClosed() && c.r.IsReadable()
}

// IsWritable reports whether the writable half is still writable.
func (c *CompositeStream[T]) IsWritable() bool {
	return !c.IsClosed() && c.w.IsWritable()
}

// Write hands chunk to the writable half.
func (c *CompositeStream[T]) Write(chunk T) bool {
	if c.IsClosed() {
		c.obs.write(metrics.WriteDropped)
		return false
	}
	return c.w.Write(chunk)
}

// End ends the writable half, which in turn closes the composite.
func (c *CompositeStream[T]) End() {
	c.w.End()
}

// EndWith writes chunk to the writable half and ends it.
func (c *CompositeStream[T]) EndWith(chunk T) {
	c.w.EndWith(chunk)
}

// Pause pauses the readable half.
func (c *CompositeStream[T]) Pause() {
	c.pause()
	c.r.Pause()
}

// Resume resumes the readable half.
func (c *CompositeStream[T]) Resume() {
	c.resume()
	c.r.Resume()
}

// Pipe implements Readable.Pipe.
func (c *CompositeStream[T]) Pipe(dst Writable[T], opts ...PipeOption) Writable[T] {
	return Pipe[T](c, dst, opts...)
}

// Unpipe implements Readable.Unpipe.
func (c *CompositeStream[T]) Unpipe(dst Writable[T]) {
	Unpipe[T](c, dst)
}

// OnDrain registers fn for drain events.
func (c *CompositeStream[T]) OnDrain(fn func()) Subscription {
	return c.onDrain(fn)
}

// Close closes both halves and emits close once.
func (c *CompositeStream[T]) Close() {
	c.shutdown(func() {
		c.r.Close()
		c.w.Close()
	})
}
