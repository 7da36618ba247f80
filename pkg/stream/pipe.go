package stream

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	eferrors "github.com/vnykmshr/evflow/pkg/common/errors"
)

// PipeOption configures a single pipe edge.
type PipeOption func(*pipeOptions)

type pipeOptions struct {
	end bool
}

// WithEnd controls whether the destination is ended when the source ends.
// Default: true.
func WithEnd(end bool) PipeOption {
	return func(o *pipeOptions) {
		o.end = end
	}
}

// pipeHost is implemented by streams that keep their pipe destinations.
// Types embedding one of this package's streams inherit it.
type pipeHost[T any] interface {
	attach(e *pipeEdge[T])
	detach(e *pipeEdge[T])
	edgesTo(dst Writable[T]) []*pipeEdge[T]
}

// upstreamTracker is implemented by destinations that delegate Pause and
// Resume to the sources piped into them.
type upstreamTracker interface {
	trackUpstream(edge uint64, ctl Pauser)
	untrackUpstream(edge uint64)
}

// errorEmitter is implemented by destinations that can surface a failed
// write as an error event.
type errorEmitter interface {
	EmitError(err error)
}

// failureLogger is implemented by sources that can log a failed write on
// behalf of a destination with no error event.
type failureLogger interface {
	logPipeFailure(err error)
}

var edgeSeq uint64

// pipeEdge is one directed src -> dst forwarding relation.
type pipeEdge[T any] struct {
	id  uint64
	src Readable[T]
	dst Writable[T]

	// drains counts dst drain events, so a drain racing a congested write
	// from another goroutine is not lost
	drains uint64

	mu       sync.Mutex
	subs     []Subscription
	detached bool
}

// Pipe forwards every data chunk of src into dst:
//   - src data calls dst.Write; a false result pauses src
//   - dst drain resumes src
//   - src end ends dst, unless WithEnd(false) is given
//
// Nothing is wired when src is no longer readable. When dst is not writable
// src is paused and nothing is wired. The edge is torn down when either side
// closes (closing dst also pauses src) or on Unpipe. Pipe returns dst.
func Pipe[T any](src Readable[T], dst Writable[T], opts ...PipeOption) Writable[T] {
	o := pipeOptions{end: true}
	for _, opt := range opts {
		opt(&o)
	}

	if !src.IsReadable() {
		return dst
	}
	if !dst.IsWritable() {
		src.Pause()
		return dst
	}

	e := &pipeEdge[T]{
		id:  atomic.AddUint64(&edgeSeq, 1),
		src: src,
		dst: dst,
	}

	if tracker, ok := dst.(upstreamTracker); ok {
		tracker.trackUpstream(e.id, src)
	}

	subs := []Subscription{
		src.OnData(func(chunk T) {
			seen := atomic.LoadUint64(&e.drains)
			if forward(src, dst, chunk) {
				return
			}
			src.Pause()
			if atomic.LoadUint64(&e.drains) != seen {
				src.Resume()
			}
		}),
		dst.OnDrain(func() {
			atomic.AddUint64(&e.drains, 1)
			src.Resume()
		}),
	}
	if o.end {
		subs = append(subs, src.OnEnd(dst.End))
	}
	subs = append(subs,
		dst.OnClose(func() {
			if e.teardown() {
				src.Pause()
			}
		}),
		src.OnClose(func() { e.teardown() }),
	)

	e.mu.Lock()
	e.subs = subs
	e.mu.Unlock()

	if host, ok := src.(pipeHost[T]); ok {
		host.attach(e)
	}
	return dst
}

// Unpipe removes every pipe edge from src into dst. Chunks emitted by src
// afterwards no longer reach dst, and dst no longer pauses or resumes src.
func Unpipe[T any](src Readable[T], dst Writable[T]) {
	host, ok := src.(pipeHost[T])
	if !ok {
		return
	}
	for _, e := range host.edgesTo(dst) {
		e.teardown()
	}
}

// teardown releases the edge's handlers and bookkeeping. It reports whether
// this call did the work.
func (e *pipeEdge[T]) teardown() bool {
	e.mu.Lock()
	if e.detached {
		e.mu.Unlock()
		return false
	}
	e.detached = true
	subs := e.subs
	e.subs = nil
	e.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
	if tracker, ok := e.dst.(upstreamTracker); ok {
		tracker.untrackUpstream(e.id)
	}
	if host, ok := e.src.(pipeHost[T]); ok {
		host.detach(e)
	}
	return true
}

// forward writes chunk into dst. A panic raised by the write is reported as
// an error event on dst when dst can emit one, and logged by src otherwise.
// The chunk then counts as delivered so the source is not left paused
// without a drain to resume it.
func forward[T any](src Readable[T], dst Writable[T], chunk T) (ok bool) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err := eferrors.NewOperationError("stream", "Write",
			fmt.Errorf("%w: %v", eferrors.ErrWriteFailed, r))
		if em, isEmitter := dst.(errorEmitter); isEmitter {
			em.EmitError(err)
		} else if fl, isLogger := src.(failureLogger); isLogger {
			fl.logPipeFailure(err)
		} else {
			zap.L().Warn("pipe write failed", zap.Error(err))
		}
		ok = true
	}()
	return dst.Write(chunk)
}
