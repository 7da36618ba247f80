package stream

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vnykmshr/evflow/pkg/metrics"
)

// Pauser is the control surface a destination uses to push back on a source.
type Pauser interface {
	// Pause asks the stream to stop emitting data until Resume is called.
	Pause()

	// Resume clears a previous Pause.
	Resume()
}

// Readable is a stream that emits data, end, error and close events.
type Readable[T any] interface {
	Pauser

	// IsReadable reports whether the stream may still emit data.
	IsReadable() bool

	// Pipe forwards every data chunk into dst and wires backpressure between
	// the two streams. It returns dst so calls can be chained.
	Pipe(dst Writable[T], opts ...PipeOption) Writable[T]

	// Unpipe tears down every pipe edge from this stream into dst.
	Unpipe(dst Writable[T])

	OnData(fn func(chunk T)) Subscription
	OnEnd(fn func()) Subscription
	OnError(fn func(err error)) Subscription
	OnClose(fn func()) Subscription

	// Close terminates the stream. It is idempotent.
	Close()
}

// Writable is a stream that accepts chunks and emits drain, error and close
// events.
type Writable[T any] interface {
	// IsWritable reports whether Write still accepts chunks.
	IsWritable() bool

	// Write hands chunk to the stream. It returns false when the stream is
	// not writable (the chunk is dropped) or when the producer should pause
	// until drain.
	Write(chunk T) bool

	// End stops accepting chunks, emits end and closes the stream.
	End()

	// EndWith writes a final chunk, then behaves like End.
	EndWith(chunk T)

	OnDrain(fn func()) Subscription
	OnError(fn func(err error)) Subscription
	OnClose(fn func()) Subscription

	// Close terminates the stream. It is idempotent.
	Close()
}

// Duplex is both Readable and Writable.
type Duplex[T any] interface {
	Readable[T]
	Writable[T]
}

// Config holds options shared by every stream type.
type Config struct {
	// Name identifies the stream in logs and metric labels.
	// Default: the stream's generated ID.
	Name string

	// Logger receives lifecycle logs at debug level and unobserved errors at
	// warn level. Default: zap.NewNop().
	Logger *zap.Logger

	// Metrics enables Prometheus instrumentation when non-nil.
	Metrics *metrics.Registry
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Logger: zap.NewNop(),
	}
}

// core carries the lifecycle flags, events and pipe bookkeeping shared by
// every stream type.
type core[T any] struct {
	id   uuid.UUID
	name string

	// atomic flags
	readable int32
	writable int32
	closed   int32
	paused   int32
	ended    int32

	events events[T]

	edgesMu sync.Mutex
	edges   []*pipeEdge[T]

	obs observer
}

func newCore[T any](config Config, readable, writable bool) *core[T] {
	id := uuid.New()
	if config.Name == "" {
		config.Name = id.String()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	c := &core[T]{
		id:   id,
		name: config.Name,
		obs: observer{
			name:    config.Name,
			logger:  config.Logger.With(zap.String("stream", config.Name)),
			metrics: config.Metrics,
		},
	}
	if readable {
		c.readable = 1
	}
	if writable {
		c.writable = 1
	}
	return c
}

// ID returns the stream's unique identifier.
func (c *core[T]) ID() uuid.UUID {
	return c.id
}

// Name returns the configured stream name.
func (c *core[T]) Name() string {
	return c.name
}

// IsReadable reports whether the stream may still emit data.
func (c *core[T]) IsReadable() bool {
	return atomic.LoadInt32(&c.readable) != 0
}

// IsWritable reports whether Write still accepts chunks.
func (c *core[T]) IsWritable() bool {
	return atomic.LoadInt32(&c.writable) != 0
}

// IsClosed reports whether Close has run.
func (c *core[T]) IsClosed() bool {
	return atomic.LoadInt32(&c.closed) != 0
}

// IsPaused reports whether the stream has been paused. Producers consult it
// before emitting.
func (c *core[T]) IsPaused() bool {
	return atomic.LoadInt32(&c.paused) != 0
}

// OnData registers fn for data events.
func (c *core[T]) OnData(fn func(chunk T)) Subscription {
	return c.events.data.add(fn)
}

// OnEnd registers fn for the end event.
func (c *core[T]) OnEnd(fn func()) Subscription {
	return c.events.end.add(fn)
}

// OnError registers fn for error events.
func (c *core[T]) OnError(fn func(err error)) Subscription {
	return c.events.err.add(fn)
}

// OnClose registers fn for the close event.
func (c *core[T]) OnClose(fn func()) Subscription {
	return c.events.close.add(fn)
}

// EmitError emits err to the error handlers. An error nobody listens for is
// logged and otherwise dropped; it never changes the stream's state.
func (c *core[T]) EmitError(err error) {
	if err == nil {
		return
	}
	c.obs.event(EventError)
	if c.events.emitError(err) == 0 {
		c.obs.logger.Warn("unobserved stream error", zap.Error(err))
	}
}

func (c *core[T]) logPipeFailure(err error) {
	c.obs.logger.Warn("pipe write failed", zap.Error(err))
}

// Close marks the stream neither readable nor writable, emits close once and
// then releases every handler, including the close handlers just invoked.
func (c *core[T]) Close() {
	c.shutdown(nil)
}

// shutdown is Close with a hook that runs after the flags flip and before
// close is emitted.
func (c *core[T]) shutdown(hook func()) {
	atomic.StoreInt32(&c.readable, 0)
	atomic.StoreInt32(&c.writable, 0)
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return
	}

	if hook != nil {
		hook()
	}

	c.obs.lifecycle(EventClose)
	emitSignal(&c.events.close)
	c.events.reset()
}

func (c *core[T]) emitData(chunk T) {
	c.obs.event(EventData)
	c.events.emitData(chunk)
}

func (c *core[T]) emitEnd() {
	c.obs.lifecycle(EventEnd)
	emitSignal(&c.events.end)
}

func (c *core[T]) emitDrain() {
	if c.IsClosed() {
		return
	}
	c.obs.event(EventDrain)
	emitSignal(&c.events.drain)
}

func (c *core[T]) onDrain(fn func()) Subscription {
	return c.events.drain.add(fn)
}

// write implements the Write contract: drop when not writable, otherwise
// emit data and report the state observed after emission has unwound.
func (c *core[T]) write(chunk T, consume Consumer[T]) bool {
	if !c.IsWritable() {
		c.obs.write(metrics.WriteDropped)
		return false
	}

	accepted := true
	if consume != nil {
		accepted = consume(chunk)
	}
	c.emitData(chunk)

	// handlers may have closed or ended the stream while data was emitted
	ok := accepted && c.IsWritable()
	if ok {
		c.obs.write(metrics.WriteAccepted)
	} else {
		c.obs.write(metrics.WriteCongested)
	}
	return ok
}

// end implements End and EndWith. write is the owning stream's Write so a
// final chunk goes through the same path as any other chunk.
func (c *core[T]) end(write func(T) bool, chunk T, hasChunk bool) {
	if !c.IsWritable() {
		return
	}
	if hasChunk {
		write(chunk)
	}
	// a data handler may already have ended or closed the stream
	if !atomic.CompareAndSwapInt32(&c.writable, 1, 0) {
		return
	}
	atomic.StoreInt32(&c.ended, 1)

	c.emitEnd()
	c.Close()
}

func (c *core[T]) pause() {
	atomic.StoreInt32(&c.paused, 1)
	c.obs.signal("pause")
}

func (c *core[T]) resume() {
	atomic.StoreInt32(&c.paused, 0)
	c.obs.signal("resume")
}

// Destinations returns the streams this stream currently pipes into, in the
// order they were piped.
func (c *core[T]) Destinations() []Writable[T] {
	c.edgesMu.Lock()
	defer c.edgesMu.Unlock()

	dsts := make([]Writable[T], 0, len(c.edges))
	for _, e := range c.edges {
		dsts = append(dsts, e.dst)
	}
	return dsts
}

func (c *core[T]) attach(e *pipeEdge[T]) {
	c.edgesMu.Lock()
	c.edges = append(c.edges, e)
	n := len(c.edges)
	c.edgesMu.Unlock()

	c.obs.pipes(n)
}

func (c *core[T]) detach(e *pipeEdge[T]) {
	c.edgesMu.Lock()
	for i, edge := range c.edges {
		if edge == e {
			c.edges = append(c.edges[:i:i], c.edges[i+1:]...)
			break
		}
	}
	n := len(c.edges)
	c.edgesMu.Unlock()

	c.obs.pipes(n)
}

func (c *core[T]) edgesTo(dst Writable[T]) []*pipeEdge[T] {
	c.edgesMu.Lock()
	defer c.edgesMu.Unlock()

	var matched []*pipeEdge[T]
	for _, e := range c.edges {
		if e.dst == dst {
			matched = append(matched, e)
		}
	}
	return matched
}

// observer reports stream activity to the configured logger and metrics.
type observer struct {
	name    string
	logger  *zap.Logger
	metrics *metrics.Registry
}

func (o observer) event(name string) {
	if o.metrics != nil {
		o.metrics.StreamEvents.WithLabelValues(o.name, name).Inc()
	}
}

func (o observer) lifecycle(name string) {
	o.logger.Debug("stream " + name)
	o.event(name)
}

func (o observer) write(result string) {
	if o.metrics != nil {
		o.metrics.StreamWrites.WithLabelValues(o.name, result).Inc()
	}
}

func (o observer) signal(signal string) {
	o.logger.Debug("stream " + signal)
	if o.metrics != nil {
		o.metrics.BackpressureSignals.WithLabelValues(o.name, signal).Inc()
	}
}

func (o observer) pipes(n int) {
	o.logger.Debug("stream pipes changed", zap.Int("pipes", n))
	if o.metrics != nil {
		o.metrics.StreamPipes.WithLabelValues(o.name).Set(float64(n))
	}
}
