package sink

import (
	"sync"

	"github.com/vnykmshr/evflow/pkg/stream"
)

// Collector records every accepted chunk in memory.
type Collector[T any] struct {
	*stream.WritableStream[T]

	mu       sync.Mutex
	items    []T
	capacity int
}

// NewCollector creates a collector. With capacity > 0, Write returns false
// once that many items are held, until Drain empties the collector.
func NewCollector[T any](capacity int, config stream.Config) *Collector[T] {
	c := &Collector[T]{capacity: capacity}
	c.WritableStream = stream.NewWritableFunc[T](c.collect, config)
	return c
}

func (c *Collector[T]) collect(chunk T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = append(c.items, chunk)
	return c.capacity <= 0 || len(c.items) < c.capacity
}

// Items returns a copy of the collected chunks.
func (c *Collector[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.items...)
}

// Len returns the number of collected chunks.
func (c *Collector[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Capacity returns the configured capacity; 0 means unbounded.
func (c *Collector[T]) Capacity() int {
	return c.capacity
}

// Drain empties the collector, returns what it held and emits drain.
func (c *Collector[T]) Drain() []T {
	c.mu.Lock()
	items := c.items
	c.items = nil
	c.mu.Unlock()

	c.EmitDrain()
	return items
}
