// Package flowgate provides the pause/resume gate used by goroutine-driven
// producers to honor backpressure.
package flowgate

import (
	"context"
	"sync"
)

// Gate blocks producers while paused. The zero value is an open gate.
type Gate struct {
	mu     sync.Mutex
	paused bool
	open   chan struct{} // closed by Resume; nil while open
}

// New creates an open gate.
func New() *Gate {
	return &Gate{}
}

// Pause closes the gate. Calls while already paused are no-ops.
func (g *Gate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.paused {
		return
	}
	g.paused = true
	g.open = make(chan struct{})
}

// Resume opens the gate and releases every waiting producer.
func (g *Gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.paused {
		return
	}
	g.paused = false
	close(g.open)
	g.open = nil
}

// Paused reports whether the gate is closed.
func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Wait returns immediately when the gate is open. Otherwise it blocks until
// Resume or until ctx is done, in which case it returns ctx.Err().
func (g *Gate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		if !g.paused {
			g.mu.Unlock()
			return nil
		}
		open := g.open
		g.mu.Unlock()

		select {
		case <-open:
			// paused again before we woke up: loop
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
