package testutil

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	eferrors "github.com/vnykmshr/evflow/pkg/common/errors"
)

// ErrSimulated is the transient failure MockWriter returns when it is told
// to fail. It wraps ErrTimeout, so sinks treat it as retryable.
var ErrSimulated = fmt.Errorf("simulated write error: %w", eferrors.ErrTimeout)

// MockWriter is an io.Writer for sink tests that can simulate delays and
// failures.
type MockWriter struct {
	mu         sync.Mutex
	buf        bytes.Buffer
	writeDelay time.Duration
	failures   int   // remaining writes that fail before writes succeed again
	err        error // returned by every write when set
	writeCount int
}

// NewMockWriter creates a new MockWriter.
func NewMockWriter() *MockWriter {
	return &MockWriter{}
}

// Write implements io.Writer.
func (mw *MockWriter) Write(p []byte) (int, error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	mw.writeCount++
	if mw.writeDelay > 0 {
		time.Sleep(mw.writeDelay)
	}

	if mw.err != nil {
		return 0, mw.err
	}
	if mw.failures > 0 {
		mw.failures--
		return 0, ErrSimulated
	}
	return mw.buf.Write(p)
}

// String returns everything written so far.
func (mw *MockWriter) String() string {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.buf.String()
}

// WriteCount returns the number of Write calls, failed ones included.
func (mw *MockWriter) WriteCount() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.writeCount
}

// SetWriteDelay delays every subsequent write.
func (mw *MockWriter) SetWriteDelay(delay time.Duration) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.writeDelay = delay
}

// FailNext makes the next n writes fail with ErrSimulated.
func (mw *MockWriter) FailNext(n int) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.failures = n
}

// SetAlwaysError makes every write fail with err until Reset.
func (mw *MockWriter) SetAlwaysError(err error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.err = err
}

// Reset clears the buffer and every configured behaviour.
func (mw *MockWriter) Reset() {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.buf.Reset()
	mw.writeCount = 0
	mw.writeDelay = 0
	mw.failures = 0
	mw.err = nil
}
