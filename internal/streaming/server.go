package streaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"media-streamer/internal/filesystem"
	"media-streamer/internal/logging"
	"media-streamer/internal/mediatypes"
	"media-streamer/internal/metrics"
)

// AbortError reports a failure after the 206 status was written.
type AbortError struct {
	Range   ByteRange
	Written int64
	Err     error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("range %s aborted after %d bytes: %v", e.Range.ContentRange(), e.Written, e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

// FileByteServer serves byte windows of files on disk.
type FileByteServer struct {
	Retry  filesystem.RetryConfig
	Writer TimeoutWriterConfig
}

// NewFileByteServer returns a server with the default retry and writer
// configuration.
func NewFileByteServer() *FileByteServer {
	return &FileByteServer{
		Retry:  filesystem.DefaultRetryConfig(),
		Writer: DefaultTimeoutWriterConfig(),
	}
}

// Serve answers r with the byte window of path named by its Range header.
//
// Before anything is written it returns ErrRangeRequired,
// ErrRangeNotSatisfiable (with Content-Range already set on w) or the stat
// or open error. Once the 206 header is sent, failures are *AbortError.
func (s *FileByteServer) Serve(w http.ResponseWriter, r *http.Request, path string) (ByteRange, error) {
	header := r.Header.Get("Range")
	if header == "" {
		return ByteRange{}, ErrRangeRequired
	}

	info, err := filesystem.StatWithRetry(path, s.Retry)
	if err != nil {
		return ByteRange{}, err
	}
	if info.IsDir() {
		return ByteRange{}, fmt.Errorf("%s: not a regular file", path)
	}

	br, err := ParseRange(header, info.Size())
	if err != nil {
		if errors.Is(err, ErrRangeNotSatisfiable) {
			w.Header().Set("Content-Range", UnsatisfiedRange(info.Size()))
		}
		return ByteRange{}, err
	}

	f, err := filesystem.OpenWithRetry(path, s.Retry)
	if err != nil {
		return ByteRange{}, err
	}
	defer f.Close()

	return br, ServeByteRange(r.Context(), w, f, br, mediatypes.MimeTypeForPath(path), s.Writer)
}

// ServeByteRange writes a 206 response carrying exactly br from src.
func ServeByteRange(ctx context.Context, w http.ResponseWriter, src io.ReaderAt, br ByteRange, contentType string, config TimeoutWriterConfig) error {
	h := w.Header()
	h.Set("Content-Range", br.ContentRange())
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Length", strconv.FormatInt(br.Length(), 10))
	h.Set("Content-Type", contentType)
	w.WriteHeader(http.StatusPartialContent)

	tw := NewTimeoutWriter(ctx, w, config)
	defer func() {
		if err := tw.Close(); err != nil {
			logging.Debug("Failed to clear write deadline: %v", err)
		}
	}()

	bufSize := config.ChunkSize
	if bufSize <= 0 {
		bufSize = 32 * 1024
	}
	n, err := io.CopyBuffer(tw, io.NewSectionReader(src, br.Start, br.Length()), make([]byte, bufSize))
	metrics.RangeBytesServed.Add(float64(n))

	if err == nil && n < br.Length() {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		metrics.RangeStreamAborts.WithLabelValues(abortReason(err)).Inc()
		return &AbortError{Range: br, Written: n, Err: err}
	}

	written, took := tw.Stats()
	logging.Debug("Served %s (%d bytes in %v)", br.ContentRange(), written, took.Round(time.Millisecond))
	return nil
}

func abortReason(err error) string {
	switch {
	case errors.Is(err, ErrClientGone):
		return "client_gone"
	case errors.Is(err, ErrWriteTimeout):
		return "write_timeout"
	default:
		return "read_error"
	}
}
