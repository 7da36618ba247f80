package sink

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	eferrors "github.com/vnykmshr/evflow/pkg/common/errors"
	"github.com/vnykmshr/evflow/pkg/common/validation"
	"github.com/vnykmshr/evflow/pkg/stream"
)

// WriterConfig holds configuration options for Writer.
type WriterConfig struct {
	stream.Config

	// HighWaterMark is the buffered byte count at which Write starts
	// returning false.
	// Default: 64KB
	HighWaterMark int

	// MaxBuffered is the hard limit on buffered bytes. A chunk that would
	// take the buffer past it is dropped and reported as ErrBufferFull.
	// Default: 4 * HighWaterMark
	MaxBuffered int

	// FlushInterval is how often the buffer is flushed in the background.
	// Set to 0 to flush only when the high water mark is reached, on Flush
	// and on End.
	// Default: 1 second
	FlushInterval time.Duration

	// MaxRetries is the number of times a failed write is retried.
	// Default: 3
	MaxRetries int

	// RetryDelay is the delay between retries.
	// Default: 100ms
	RetryDelay time.Duration
}

// DefaultWriterConfig returns a default configuration.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		Config:        stream.DefaultConfig(),
		HighWaterMark: 64 * 1024,
		MaxBuffered:   256 * 1024,
		FlushInterval: time.Second,
		MaxRetries:    3,
		RetryDelay:    100 * time.Millisecond,
	}
}

// WriterStats holds statistics about a Writer.
type WriterStats struct {
	// BytesWritten is the total number of bytes written to the underlying writer.
	BytesWritten int64

	// Flushes is the number of flushes that had data to write.
	Flushes int64

	// Errors is the number of flushes that failed after every retry.
	Errors int64

	// Buffered is the number of bytes waiting to be flushed.
	Buffered int
}

// Writer is a buffered Writable[[]byte] over an io.Writer. Chunks are copied
// into memory and written out by a background goroutine.
type Writer struct {
	*stream.WritableStream[[]byte]

	out    io.Writer
	config WriterConfig
	logger *zap.Logger

	mu        sync.Mutex
	buf       []byte
	congested bool

	flushMu sync.Mutex // serializes writes to out

	kick   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	bytesWritten int64 // atomic
	flushes      int64 // atomic
	errors       int64 // atomic
}

// NewWriter creates a Writer with default configuration.
func NewWriter(out io.Writer) (*Writer, error) {
	return NewWriterWithConfig(out, DefaultWriterConfig())
}

// NewWriterWithConfig creates a Writer with the specified configuration.
func NewWriterWithConfig(out io.Writer, config WriterConfig) (*Writer, error) {
	if err := validation.First(
		validation.ValidateNotNil("sink", "out", out),
		validation.ValidatePositive("sink", "HighWaterMark", config.HighWaterMark),
		validation.ValidateNonNegative("sink", "MaxBuffered", config.MaxBuffered),
		validation.ValidateNonNegativeDuration("sink", "FlushInterval", config.FlushInterval),
		validation.ValidateNonNegative("sink", "MaxRetries", config.MaxRetries),
		validation.ValidateNonNegativeDuration("sink", "RetryDelay", config.RetryDelay),
	); err != nil {
		return nil, err
	}
	if config.MaxBuffered == 0 {
		config.MaxBuffered = 4 * config.HighWaterMark
	}
	if config.MaxBuffered < config.HighWaterMark {
		return nil, eferrors.NewValidationError("sink", "MaxBuffered", config.MaxBuffered, "below HighWaterMark").
			WithHint("use 0 for the default or a value of at least HighWaterMark")
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Writer{
		out:    out,
		config: config,
		buf:    make([]byte, 0, config.HighWaterMark),
		kick:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	w.WritableStream = stream.NewWritableFunc[[]byte](w.buffer, config.Config)
	w.logger = config.Logger.With(zap.String("stream", w.Name()))

	// end handlers run before close, while error handlers are still attached
	w.OnEnd(func() {
		if err := w.flush(context.Background()); err != nil {
			w.EmitError(err)
		}
	})
	w.OnClose(w.cancel)

	go w.loop()
	return w, nil
}

// Flush writes every buffered byte now. It returns the flush error, which
// is also emitted as an error event. After Close it returns ErrClosed.
func (w *Writer) Flush(ctx context.Context) error {
	if w.IsClosed() {
		return eferrors.NewOperationError("sink", "Flush", eferrors.ErrClosed)
	}
	err := w.flush(ctx)
	if err != nil {
		w.EmitError(err)
	}
	return err
}

// Done is closed once the background goroutine has written what remained
// buffered at close and exited.
func (w *Writer) Done() <-chan struct{} {
	return w.done
}

// Stats returns the writer statistics.
func (w *Writer) Stats() WriterStats {
	w.mu.Lock()
	buffered := len(w.buf)
	w.mu.Unlock()

	return WriterStats{
		BytesWritten: atomic.LoadInt64(&w.bytesWritten),
		Flushes:      atomic.LoadInt64(&w.flushes),
		Errors:       atomic.LoadInt64(&w.errors),
		Buffered:     buffered,
	}
}

// buffer is the stream consumer. The chunk is copied so callers may reuse it.
func (w *Writer) buffer(chunk []byte) bool {
	w.mu.Lock()
	if buffered := len(w.buf); buffered+len(chunk) > w.config.MaxBuffered {
		w.congested = true
		w.mu.Unlock()

		w.wake()
		w.EmitError(eferrors.NewOperationError("sink", "Write", eferrors.ErrBufferFull).
			WithContext(fmt.Sprintf("%d bytes buffered, chunk of %d dropped", buffered, len(chunk))))
		return false
	}
	w.buf = append(w.buf, chunk...)
	full := len(w.buf) >= w.config.HighWaterMark
	if full {
		w.congested = true
	}
	w.mu.Unlock()

	if full {
		w.wake()
	}
	return !full
}

func (w *Writer) wake() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

func (w *Writer) loop() {
	defer close(w.done)

	var tick <-chan time.Time
	if w.config.FlushInterval > 0 {
		ticker := time.NewTicker(w.config.FlushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-tick:
		case <-w.kick:
		case <-w.ctx.Done():
			// handlers are gone once closed; failures can only be logged
			if err := w.flush(context.Background()); err != nil {
				w.logger.Warn("final flush failed", zap.Error(err))
			}
			return
		}

		if err := w.flush(w.ctx); err != nil {
			w.EmitError(err)
		}
	}
}

// flush writes the current buffer and emits drain when it relieved
// congestion.
func (w *Writer) flush(ctx context.Context) error {
	w.flushMu.Lock()

	w.mu.Lock()
	data := make([]byte, len(w.buf))
	copy(data, w.buf)
	w.buf = w.buf[:0]
	w.mu.Unlock()

	var err error
	if len(data) > 0 {
		var n int
		n, err = w.writeWithRetries(ctx, data)

		atomic.AddInt64(&w.flushes, 1)
		atomic.AddInt64(&w.bytesWritten, int64(n))
		if m := w.config.Metrics; m != nil {
			m.WriterFlushes.WithLabelValues(w.Name()).Inc()
			m.WriterBytesWritten.WithLabelValues(w.Name()).Add(float64(n))
		}
		if err != nil {
			atomic.AddInt64(&w.errors, 1)
			err = eferrors.NewOperationError("sink", "Flush", fmt.Errorf("%w: %w", eferrors.ErrWriteFailed, err)).
				WithContext(fmt.Sprintf("%d of %d bytes written", n, len(data)))
		}
	}
	w.flushMu.Unlock()

	// a rejected chunk may have congested an empty buffer
	w.mu.Lock()
	relieved := w.congested && len(w.buf) < w.config.HighWaterMark
	if relieved {
		w.congested = false
	}
	w.mu.Unlock()

	if relieved {
		w.EmitDrain()
	}
	return err
}

// writeWithRetries writes data, retrying the unwritten remainder while the
// failure is retryable. The returned error combines every failed attempt.
func (w *Writer) writeWithRetries(ctx context.Context, data []byte) (int, error) {
	var total int
	var errs error

	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(w.config.RetryDelay):
			case <-ctx.Done():
				return total, multierr.Append(errs, ctx.Err())
			}
		}

		n, err := w.out.Write(data[total:])
		total += n
		if err != nil {
			errs = multierr.Append(errs, err)
			if !eferrors.IsRetryable(err) {
				return total, errs
			}
			continue
		}
		if total >= len(data) {
			return total, nil
		}
		errs = multierr.Append(errs, io.ErrShortWrite)
	}
	return total, errs
}
