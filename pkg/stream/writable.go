package stream

// Consumer receives every chunk a WritableStream accepts, before data is
// emitted. Returning false reports congestion: Write returns false and the
// owner is expected to call EmitDrain once it can take more.
type Consumer[T any] func(chunk T) bool

// WritableStream is the base sink-side stream.
type WritableStream[T any] struct {
	*core[T]
	consume Consumer[T]
}

var _ Writable[int] = (*WritableStream[int])(nil)

// NewWritable creates a writable stream with default configuration.
func NewWritable[T any]() *WritableStream[T] {
	return NewWritableWithConfig[T](DefaultConfig())
}

// NewWritableWithConfig creates a writable stream with the specified configuration.
func NewWritableWithConfig[T any](config Config) *WritableStream[T] {
	return NewWritableFunc[T](nil, config)
}

// NewWritableFunc creates a writable stream that hands accepted chunks to fn.
func NewWritableFunc[T any](fn Consumer[T], config Config) *WritableStream[T] {
	return &WritableStream[T]{
		core:    newCore[T](config, false, true),
		consume: fn,
	}
}

// Write drops chunk and returns false when the stream is not writable.
// Otherwise it emits data synchronously and returns whether the stream is
// still writable (and the consumer uncongested) after every handler ran.
func (w *WritableStream[T]) Write(chunk T) bool {
	return w.write(chunk, w.consume)
}

// End emits end and closes the stream. Calls after the first are no-ops.
func (w *WritableStream[T]) End() {
	var zero T
	w.end(w.Write, zero, false)
}

// EndWith writes chunk, then ends the stream. Calls after the first End or
// EndWith are no-ops and do not write chunk.
func (w *WritableStream[T]) EndWith(chunk T) {
	w.end(w.Write, chunk, true)
}

// OnDrain registers fn for drain events.
func (w *WritableStream[T]) OnDrain(fn func()) Subscription {
	return w.onDrain(fn)
}

// EmitDrain tells producers they may resume writing.
func (w *WritableStream[T]) EmitDrain() {
	w.emitDrain()
}
