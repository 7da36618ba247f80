package source

import (
	"sync"

	"github.com/vnykmshr/evflow/pkg/stream"
)

// Slice emits the items of a slice in order, then ends.
type Slice[T any] struct {
	*stream.ReadableStream[T]

	mu      sync.Mutex
	items   []T
	next    int
	started bool
	running bool
}

// FromSlice creates a source over items. Nothing is emitted until Start.
func FromSlice[T any](items []T, config stream.Config) *Slice[T] {
	return &Slice[T]{
		ReadableStream: stream.NewReadableWithConfig[T](config),
		items:          items,
	}
}

// Start emits items until the source is paused, closed or exhausted.
func (s *Slice[T]) Start() {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	s.flow()
}

// Resume clears the pause and continues where emission stopped.
func (s *Slice[T]) Resume() {
	s.ReadableStream.Resume()

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		s.flow()
	}
}

// Pipe implements stream.Readable.Pipe.
func (s *Slice[T]) Pipe(dst stream.Writable[T], opts ...stream.PipeOption) stream.Writable[T] {
	return stream.Pipe[T](s, dst, opts...)
}

// Unpipe implements stream.Readable.Unpipe.
func (s *Slice[T]) Unpipe(dst stream.Writable[T]) {
	stream.Unpipe[T](s, dst)
}

// Remaining returns the number of items not emitted yet.
func (s *Slice[T]) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items) - s.next
}

// flow runs the emission loop. A Resume issued from inside a data handler
// finds the loop running and leaves it to the outer call.
func (s *Slice[T]) flow() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	for {
		for s.IsReadable() && !s.IsPaused() {
			item, ok := s.take()
			if !ok {
				s.EmitEnd()
				break
			}
			s.EmitData(item)
		}

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()

		// a Resume from another goroutine may have been ignored while the
		// loop was still marked running
		if !s.IsReadable() || s.IsPaused() {
			return
		}
		s.mu.Lock()
		if s.running {
			s.mu.Unlock()
			return
		}
		s.running = true
		s.mu.Unlock()
	}
}

func (s *Slice[T]) take() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.items) {
		var zero T
		return zero, false
	}
	item := s.items[s.next]
	s.next++
	return item, true
}
