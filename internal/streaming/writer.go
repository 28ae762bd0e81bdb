package streaming

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"
)

var (
	// ErrWriteTimeout indicates a write exceeded WriteTimeout or the stream
	// exceeded MaxDuration.
	ErrWriteTimeout = errors.New("write timeout exceeded")

	// ErrClientGone indicates the request context was cancelled.
	ErrClientGone = errors.New("client disconnected")

	// ErrStreamCanceled indicates a write after Close.
	ErrStreamCanceled = errors.New("stream canceled")
)

// TimeoutWriterConfig configures the timeout writer behavior
type TimeoutWriterConfig struct {
	// WriteTimeout bounds each chunk write (0 disables deadlines).
	WriteTimeout time.Duration
	// MaxDuration is the absolute maximum streaming duration (0 = unlimited)
	MaxDuration time.Duration
	// ChunkSize splits writes so cancellation is checked between chunks.
	ChunkSize int
	// OnProgress is called after each megabyte boundary is crossed.
	OnProgress func(bytesWritten int64, duration time.Duration)
}

// DefaultTimeoutWriterConfig returns the configuration used for range serving.
func DefaultTimeoutWriterConfig() TimeoutWriterConfig {
	return TimeoutWriterConfig{
		WriteTimeout: 30 * time.Second,
		ChunkSize:    256 * 1024,
	}
}

// TimeoutWriter wraps an http.ResponseWriter with per-write deadlines and
// context cancellation.
type TimeoutWriter struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	ctx    context.Context
	config TimeoutWriterConfig

	mu           sync.Mutex
	startTime    time.Time
	bytesWritten int64
	closed       bool
	deadlines    bool
}

// NewTimeoutWriter creates a new timeout-protected writer
func NewTimeoutWriter(ctx context.Context, w http.ResponseWriter, config TimeoutWriterConfig) *TimeoutWriter {
	return &TimeoutWriter{
		w:         w,
		rc:        http.NewResponseController(w),
		ctx:       ctx,
		config:    config,
		startTime: time.Now(),
		deadlines: config.WriteTimeout > 0,
	}
}

// Write implements io.Writer.
func (tw *TimeoutWriter) Write(p []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.closed {
		return 0, ErrStreamCanceled
	}

	written := 0
	for len(p) > 0 {
		if err := tw.ctx.Err(); err != nil {
			return written, ErrClientGone
		}
		if tw.config.MaxDuration > 0 && time.Since(tw.startTime) > tw.config.MaxDuration {
			return written, ErrWriteTimeout
		}

		chunk := p
		if tw.config.ChunkSize > 0 && len(chunk) > tw.config.ChunkSize {
			chunk = chunk[:tw.config.ChunkSize]
		}

		tw.armDeadline()
		n, err := tw.w.Write(chunk)
		written += n
		tw.advance(int64(n))
		if err != nil {
			return written, tw.classify(err)
		}
		if err := tw.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return written, tw.classify(err)
		}
		p = p[n:]
	}
	return written, nil
}

func (tw *TimeoutWriter) armDeadline() {
	if !tw.deadlines {
		return
	}
	if err := tw.rc.SetWriteDeadline(time.Now().Add(tw.config.WriteTimeout)); err != nil {
		// Recorders and some wrappers cannot set deadlines; fall back to
		// context and MaxDuration checks only.
		tw.deadlines = false
	}
}

func (tw *TimeoutWriter) advance(n int64) {
	before := tw.bytesWritten
	tw.bytesWritten += n
	if tw.config.OnProgress != nil && tw.bytesWritten/(1<<20) > before/(1<<20) {
		tw.config.OnProgress(tw.bytesWritten, time.Since(tw.startTime))
	}
}

func (tw *TimeoutWriter) classify(err error) error {
	switch {
	case tw.ctx.Err() != nil:
		return ErrClientGone
	case errors.Is(err, os.ErrDeadlineExceeded):
		return ErrWriteTimeout
	default:
		return fmt.Errorf("write response: %w", err)
	}
}

// Close clears any pending write deadline and rejects further writes.
func (tw *TimeoutWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.closed {
		return nil
	}
	tw.closed = true
	if tw.deadlines {
		if err := tw.rc.SetWriteDeadline(time.Time{}); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns streaming statistics
func (tw *TimeoutWriter) Stats() (bytesWritten int64, duration time.Duration) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.bytesWritten, time.Since(tw.startTime)
}
