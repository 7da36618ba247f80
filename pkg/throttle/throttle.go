// Package throttle provides a rate-limited pass-through stream.
//
// A Throttle forwards every chunk immediately, like stream.ThroughStream, but
// answers Write with false once the producer is ahead of the configured
// rate, and emits drain when the next token is due. Piped producers are
// therefore paused rather than blocked:
//
//	t, _ := throttle.New[string](throttle.DefaultConfig())
//	src.Pipe(t).(*throttle.Throttle[string]).Pipe(sink)
package throttle

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vnykmshr/evflow/pkg/common/validation"
	"github.com/vnykmshr/evflow/pkg/stream"
)

// Config holds configuration options for Throttle.
type Config struct {
	stream.Config

	// Rate is the sustained number of chunks per second.
	// Default: 100
	Rate float64

	// Burst is the number of chunks accepted back to back before the rate
	// applies.
	// Default: 1
	Burst int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Config: stream.DefaultConfig(),
		Rate:   100,
		Burst:  1,
	}
}

// Throttle is a pass-through duplex that applies token bucket backpressure.
type Throttle[T any] struct {
	*stream.ThroughStream[T]

	config  Config
	limiter *rate.Limiter

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64 // bumped whenever the pending drain is replaced or cancelled
}

// New creates a Throttle.
func New[T any](config Config) (*Throttle[T], error) {
	if err := validation.First(
		validation.ValidatePositiveFloat("throttle", "Rate", config.Rate),
		validation.ValidatePositive("throttle", "Burst", config.Burst),
	); err != nil {
		return nil, err
	}

	t := &Throttle[T]{
		ThroughStream: stream.NewThroughWithConfig[T](config.Config),
		config:        config,
		limiter:       rate.NewLimiter(rate.Limit(config.Rate), config.Burst),
	}
	t.OnClose(t.stopTimer)
	return t, nil
}

// Write forwards chunk as data. It returns false when the stream is no
// longer writable or when the chunk used a token that was not yet due; in
// the latter case drain follows once it is.
func (t *Throttle[T]) Write(chunk T) bool {
	if !t.IsWritable() {
		return t.ThroughStream.Write(chunk)
	}

	delay := t.limiter.Reserve().Delay()
	ok := t.ThroughStream.Write(chunk)
	if delay <= 0 {
		return ok
	}

	if m := t.config.Metrics; m != nil {
		m.ThrottleDelay.WithLabelValues(t.Name()).Observe(delay.Seconds())
	}
	if ok {
		t.scheduleDrain(delay)
	}
	return false
}

// EndWith writes chunk through the limiter, then ends the stream. Calls
// after the first End or EndWith are no-ops.
func (t *Throttle[T]) EndWith(chunk T) {
	if !t.IsWritable() {
		return
	}
	t.Write(chunk)
	t.ThroughStream.End()
}

// SetRate changes the sustained rate. Reservations already made keep their
// delay.
func (t *Throttle[T]) SetRate(perSecond float64) {
	t.limiter.SetLimit(rate.Limit(perSecond))
}

// Tokens returns the number of chunks that may be written right now without
// triggering backpressure.
func (t *Throttle[T]) Tokens() float64 {
	return t.limiter.Tokens()
}

// scheduleDrain arms the drain timer, replacing any pending one so drain
// follows the latest reservation.
func (t *Throttle[T]) scheduleDrain(delay time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	gen := t.gen
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(delay, func() { t.fire(gen) })
}

// fire emits drain unless the timer that called it was replaced or stopped
// after it had already fired.
func (t *Throttle[T]) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.mu.Unlock()

	t.EmitDrain()
}

func (t *Throttle[T]) stopTimer() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
