package stream

import (
	"sync"
)

// Event names used in logs and metrics.
const (
	EventData  = "data"
	EventEnd   = "end"
	EventError = "error"
	EventClose = "close"
	EventDrain = "drain"
)

// Subscription identifies one registered handler.
type Subscription struct {
	cancel func()
}

// Unsubscribe removes the handler. It is safe to call more than once and on
// the zero value.
func (s Subscription) Unsubscribe() {
	if s.cancel != nil {
		s.cancel()
	}
}

type slot[F any] struct {
	id uint64
	fn F
}

// handlerList is the ordered list of typed handler slots for one event.
type handlerList[F any] struct {
	mu     sync.Mutex
	nextID uint64 // never reused, so a stale Subscription cannot remove a newer handler
	slots  []slot[F]
}

func (l *handlerList[F]) add(fn F) Subscription {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.slots = append(l.slots, slot[F]{id: id, fn: fn})
	l.mu.Unlock()

	return Subscription{cancel: func() { l.remove(id) }}
}

func (l *handlerList[F]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, s := range l.slots {
		if s.id == id {
			l.slots = append(l.slots[:i:i], l.slots[i+1:]...)
			return
		}
	}
}

// snapshot returns the handlers registered right now, in registration order.
func (l *handlerList[F]) snapshot() []F {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.slots) == 0 {
		return nil
	}
	fns := make([]F, len(l.slots))
	for i, s := range l.slots {
		fns[i] = s.fn
	}
	return fns
}

func (l *handlerList[F]) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

func (l *handlerList[F]) reset() {
	l.mu.Lock()
	l.slots = nil
	l.mu.Unlock()
}

// events is the fixed event vocabulary of a stream.
type events[T any] struct {
	data  handlerList[func(T)]
	end   handlerList[func()]
	err   handlerList[func(error)]
	close handlerList[func()]
	drain handlerList[func()]
}

func (e *events[T]) emitData(chunk T) {
	for _, fn := range e.data.snapshot() {
		fn(chunk)
	}
}

func (e *events[T]) emitError(err error) int {
	fns := e.err.snapshot()
	for _, fn := range fns {
		fn(err)
	}
	return len(fns)
}

func emitSignal(l *handlerList[func()]) {
	for _, fn := range l.snapshot() {
		fn()
	}
}

// reset releases every handler of every event.
func (e *events[T]) reset() {
	e.data.reset()
	e.end.reset()
	e.err.reset()
	e.close.reset()
	e.drain.reset()
}
