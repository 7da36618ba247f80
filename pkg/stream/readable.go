package stream

import (
	"sync/atomic"
)

// ReadableStream is the base producer-side stream. Producers drive it with
// EmitData, EmitEnd and EmitError and consult IsPaused before emitting.
//
// Producers that need to react to Pause or Resume embed *ReadableStream,
// override those methods, and override Pipe to pass themselves as the
// source:
//
//	func (p *Producer) Pipe(dst stream.Writable[T], opts ...stream.PipeOption) stream.Writable[T] {
//		return stream.Pipe[T](p, dst, opts...)
//	}
type ReadableStream[T any] struct {
	*core[T]
}

var _ Readable[int] = (*ReadableStream[int])(nil)

// NewReadable creates a readable stream with default configuration.
func NewReadable[T any]() *ReadableStream[T] {
	return NewReadableWithConfig[T](DefaultConfig())
}

// NewReadableWithConfig creates a readable stream with the specified configuration.
func NewReadableWithConfig[T any](config Config) *ReadableStream[T] {
	return &ReadableStream[T]{core: newCore[T](config, true, false)}
}

// Pause marks the stream paused.
func (r *ReadableStream[T]) Pause() {
	r.pause()
}

// Resume clears the paused mark.
func (r *ReadableStream[T]) Resume() {
	r.resume()
}

// Pipe implements Readable.Pipe.
func (r *ReadableStream[T]) Pipe(dst Writable[T], opts ...PipeOption) Writable[T] {
	return Pipe[T](r, dst, opts...)
}

// Unpipe implements Readable.Unpipe.
func (r *ReadableStream[T]) Unpipe(dst Writable[T]) {
	Unpipe[T](r, dst)
}

// EmitData emits chunk to the data handlers. It does nothing once the stream
// is no longer readable.
func (r *ReadableStream[T]) EmitData(chunk T) {
	if !r.IsReadable() {
		return
	}
	r.emitData(chunk)
}

// EmitEnd emits end once and closes the stream.
func (r *ReadableStream[T]) EmitEnd() {
	if !r.IsReadable() || !atomic.CompareAndSwapInt32(&r.ended, 0, 1) {
		return
	}
	r.emitEnd()
	r.Close()
}
