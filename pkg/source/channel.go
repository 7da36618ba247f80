package source

import (
	"context"
	"sync"

	"github.com/vnykmshr/evflow/internal/flowgate"
	"github.com/vnykmshr/evflow/pkg/stream"
)

// Channel emits every value received from a Go channel. Emission happens on
// a goroutine owned by the source, started by Start.
type Channel[T any] struct {
	*stream.ReadableStream[T]

	in     <-chan T
	gate   *flowgate.Gate
	ctx    context.Context
	cancel context.CancelFunc

	once sync.Once
	done chan struct{}
}

// FromChannel creates a source over ch. The source ends when ch is closed
// and closes when ctx is done or Close is called.
func FromChannel[T any](ctx context.Context, ch <-chan T, config stream.Config) *Channel[T] {
	ctx, cancel := context.WithCancel(ctx)
	c := &Channel[T]{
		ReadableStream: stream.NewReadableWithConfig[T](config),
		in:             ch,
		gate:           flowgate.New(),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
	c.OnClose(func() {
		c.cancel()
		// never started: nothing will close done
		c.once.Do(func() { close(c.done) })
	})
	return c
}

// Start launches the receive goroutine. Calls after the first are no-ops.
func (c *Channel[T]) Start() {
	c.once.Do(func() {
		go c.run()
	})
}

// Pause stops emission. At most one already received value is held back.
func (c *Channel[T]) Pause() {
	c.ReadableStream.Pause()
	c.gate.Pause()
}

// Resume continues emission.
func (c *Channel[T]) Resume() {
	c.ReadableStream.Resume()
	c.gate.Resume()
}

// Pipe implements stream.Readable.Pipe.
func (c *Channel[T]) Pipe(dst stream.Writable[T], opts ...stream.PipeOption) stream.Writable[T] {
	return stream.Pipe[T](c, dst, opts...)
}

// Unpipe implements stream.Readable.Unpipe.
func (c *Channel[T]) Unpipe(dst stream.Writable[T]) {
	stream.Unpipe[T](c, dst)
}

// Done is closed once the receive goroutine has exited, or on Close when
// Start was never called.
func (c *Channel[T]) Done() <-chan struct{} {
	return c.done
}

func (c *Channel[T]) run() {
	defer close(c.done)
	defer c.Close()

	for {
		if err := c.gate.Wait(c.ctx); err != nil {
			return
		}

		select {
		case v, ok := <-c.in:
			if !ok {
				c.EmitEnd()
				return
			}
			// paused while blocked on receive: hold v until resumed
			if err := c.gate.Wait(c.ctx); err != nil {
				return
			}
			c.EmitData(v)
		case <-c.ctx.Done():
			return
		}
	}
}
