package source

import (
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	eferrors "github.com/vnykmshr/evflow/pkg/common/errors"
	"github.com/vnykmshr/evflow/pkg/common/validation"
	"github.com/vnykmshr/evflow/pkg/stream"
)

// Tick results recorded in metrics.Registry.SourceTicks.
const (
	TickEmitted = "emitted"
	TickSkipped = "skipped"
)

// CronConfig holds configuration for a Cron source.
type CronConfig struct {
	stream.Config

	// Schedule is a cron expression. A leading seconds field is optional and
	// descriptors such as "@every 5s" or "@hourly" are accepted.
	Schedule string

	// MaxRuns ends the stream after that many emitted values (0 = unlimited).
	MaxRuns int

	// Location evaluates the schedule in that time zone.
	// Default: time.Local
	Location *time.Location
}

// DefaultCronConfig returns a default configuration that ticks every second.
func DefaultCronConfig() CronConfig {
	return CronConfig{
		Config:   stream.DefaultConfig(),
		Schedule: "@every 1s",
		Location: time.Local,
	}
}

// CronStats holds tick counters for a Cron source.
type CronStats struct {
	Emitted int64
	Skipped int64

	// Next is the next scheduled tick; zero before Start or after Close.
	Next time.Time
}

// Cron emits one value per schedule tick. Ticks that fire while the source is
// paused are skipped rather than queued.
type Cron[T any] struct {
	*stream.ReadableStream[T]

	config   CronConfig
	generate func(time.Time) T
	cron     *cron.Cron
	entry    cron.EntryID

	emitted int64 // atomic
	skipped int64 // atomic
	started int32 // atomic

	done chan struct{}
}

var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// NewCron creates a scheduled source. generate produces the value emitted
// for a tick at the given time.
func NewCron[T any](config CronConfig, generate func(time.Time) T) (*Cron[T], error) {
	if err := validation.First(
		validation.ValidateNotEmpty("source", "Schedule", config.Schedule),
		validation.ValidateNonNegative("source", "MaxRuns", config.MaxRuns),
		validation.ValidateNotNil("source", "generate", generate),
	); err != nil {
		return nil, err
	}
	schedule, err := parser.Parse(config.Schedule)
	if err != nil {
		return nil, eferrors.NewValidationError("source", "Schedule", config.Schedule, err.Error()).
			WithHint(`use a cron expression such as "*/5 * * * *" or "@every 10s"`)
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	c := &Cron[T]{
		ReadableStream: stream.NewReadableWithConfig[T](config.Config),
		config:         config,
		generate:       generate,
		done:           make(chan struct{}),
	}

	logger := cronLogger{config.Logger.Sugar().With("stream", c.Name())}
	c.cron = cron.New(
		cron.WithLocation(config.Location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.entry = c.cron.Schedule(schedule, cron.FuncJob(c.tick))

	c.OnClose(c.stop)
	return c, nil
}

// Start starts the schedule. Calls after the first, or after Close, are
// no-ops.
func (c *Cron[T]) Start() {
	if !c.IsReadable() || !atomic.CompareAndSwapInt32(&c.started, 0, 1) {
		return
	}
	c.cron.Start()
}

// Pipe implements stream.Readable.Pipe.
func (c *Cron[T]) Pipe(dst stream.Writable[T], opts ...stream.PipeOption) stream.Writable[T] {
	return stream.Pipe[T](c, dst, opts...)
}

// Unpipe implements stream.Readable.Unpipe.
func (c *Cron[T]) Unpipe(dst stream.Writable[T]) {
	stream.Unpipe[T](c, dst)
}

// Done is closed once the schedule has stopped and no tick is running.
func (c *Cron[T]) Done() <-chan struct{} {
	return c.done
}

// Stats returns the tick counters.
func (c *Cron[T]) Stats() CronStats {
	stats := CronStats{
		Emitted: atomic.LoadInt64(&c.emitted),
		Skipped: atomic.LoadInt64(&c.skipped),
	}
	if c.IsReadable() && atomic.LoadInt32(&c.started) == 1 {
		stats.Next = c.cron.Entry(c.entry).Next
	}
	return stats
}

func (c *Cron[T]) tick() {
	if !c.IsReadable() {
		return
	}
	if c.IsPaused() {
		atomic.AddInt64(&c.skipped, 1)
		c.record(TickSkipped)
		return
	}

	c.EmitData(c.generate(time.Now().In(c.config.Location)))
	n := atomic.AddInt64(&c.emitted, 1)
	c.record(TickEmitted)

	if c.config.MaxRuns > 0 && n >= int64(c.config.MaxRuns) {
		c.EmitEnd()
	}
}

func (c *Cron[T]) record(result string) {
	if c.config.Metrics != nil {
		c.config.Metrics.SourceTicks.WithLabelValues(c.Name(), result).Inc()
	}
}

// stop runs on close. It may run inside a tick, so it must not wait for
// running jobs itself.
func (c *Cron[T]) stop() {
	stopped := c.cron.Stop()
	go func() {
		<-stopped.Done()
		close(c.done)
	}()
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw("cron "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw("cron "+msg, append(keysAndValues, "error", err)...)
}
