package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"media-streamer/internal/logging"
)

// ResponseWriter wrapper to capture status code and bytes written
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.wroteHeader = true
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// LoggingConfig holds configuration for the logging middleware
type LoggingConfig struct {
	SkipPaths       []string
	SkipExtensions  []string
	LogStaticFiles  bool
	LogHealthChecks bool
}

// DefaultLoggingConfig returns a sensible default configuration
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:       []string{},
		SkipExtensions:  []string{".css", ".js", ".ico", ".png", ".jpg", ".jpeg", ".ts", ".m3u8"},
		LogStaticFiles:  false,
		LogHealthChecks: true,
	}
}

// accessFields is the W3C #Fields directive of the access log.
const accessFields = "date time c-ip cs-method cs-uri-stem cs-uri-query sc-status sc-bytes time-taken " +
	"cs(Range) sc(Content-Range) sc(Location) sc(Content-Encoding) x-outcome cs(User-Agent)"

// x-outcome values.
const (
	outcomeOK         = "ok"
	outcomeClientGone = "client-gone"
	outcomeTruncated  = "truncated"
	outcomeThrottled  = "throttled"
	outcomeRejected   = "rejected"
	outcomeError      = "error"
)

var healthCheckPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/livez":   true,
	"/readyz":  true,
}

// AccessLogger writes one W3C extended log line per request, preceded once
// by the #Software and #Fields directives.
type AccessLogger struct {
	config     LoggingConfig
	directives sync.Once
	printf     func(format string, args ...interface{})
	now        func() time.Time
}

// NewAccessLogger creates an AccessLogger writing through logging.Printf.
func NewAccessLogger(config LoggingConfig) *AccessLogger {
	return &AccessLogger{
		config: config,
		printf: logging.Printf,
		now:    time.Now,
	}
}

// Logger returns the access log middleware.
func Logger(config LoggingConfig) func(http.Handler) http.Handler {
	return NewAccessLogger(config).Middleware
}

// Middleware logs every request not excluded by the config.
func (l *AccessLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shouldSkip(r.URL.Path, l.config) {
			next.ServeHTTP(w, r)
			return
		}

		start := l.now()
		wrapped := newResponseWriter(w)
		next.ServeHTTP(wrapped, r)
		l.logRequest(r, wrapped, l.now().Sub(start))
	})
}

// sanitizeLogField removes control characters that could be used for log injection.
// This includes newlines, carriage returns, tabs, null bytes, and ANSI escape sequences.
func sanitizeLogField(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r':
			b.WriteRune(' ')
		case r == '\x00', r == '\x1b':
			continue
		case r < 0x20 && r != '\t':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// field renders a header or query value: sanitized, quoted when it holds
// spaces, "-" when empty.
func field(s string) string {
	s = sanitizeLogField(s)
	if s == "" {
		return "-"
	}
	return escapeW3CField(s)
}

// requestOutcome classifies a finished request. A request context that has
// ended before the handler returned means the client disconnected.
func requestOutcome(r *http.Request, rw *responseWriter) string {
	switch {
	case r.Context().Err() != nil:
		return outcomeClientGone
	case rw.statusCode == http.StatusTooManyRequests:
		return outcomeThrottled
	case rw.statusCode >= 500:
		return outcomeError
	case rw.statusCode >= 400:
		return outcomeRejected
	}
	if r.Method != http.MethodHead && rw.Header().Get("Content-Encoding") == "" {
		if declared, err := strconv.ParseInt(rw.Header().Get("Content-Length"), 10, 64); err == nil && rw.bytesWritten < declared {
			return outcomeTruncated
		}
	}
	return outcomeOK
}

func (l *AccessLogger) logRequest(r *http.Request, rw *responseWriter, duration time.Duration) {
	l.directives.Do(func() {
		l.printf("#Software: MediaStreamer/1.0")
		l.printf("#Fields: %s", accessFields)
	})

	now := l.now().UTC()
	h := rw.Header()
	fields := []string{
		now.Format("2006-01-02"),
		now.Format("15:04:05"),
		field(getClientIP(r)),
		field(r.Method),
		field(r.URL.Path),
		field(r.URL.RawQuery),
		strconv.Itoa(rw.statusCode),
		strconv.FormatInt(rw.bytesWritten, 10),
		strconv.FormatInt(duration.Milliseconds(), 10),
		field(r.Header.Get("Range")),
		field(h.Get("Content-Range")),
		field(h.Get("Location")),
		field(h.Get("Content-Encoding")),
		requestOutcome(r, rw),
		field(r.Header.Get("User-Agent")),
	}
	// Every client-supplied field went through sanitizeLogField.
	l.printf("%s", strings.Join(fields, " "))
}

func shouldSkip(path string, config LoggingConfig) bool {
	// Skip explicitly configured paths
	for _, skipPath := range config.SkipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}

	// Skip health checks if disabled
	if !config.LogHealthChecks && healthCheckPaths[path] {
		return true
	}

	// Skip static files if disabled
	if !config.LogStaticFiles {
		for _, ext := range config.SkipExtensions {
			if strings.HasSuffix(strings.ToLower(path), ext) {
				return true
			}
		}
	}

	return false
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

// escapeW3CField escapes a field value for W3C log format
// Replaces spaces with + and quotes with escaped quotes
func escapeW3CField(s string) string {
	// If contains space or special chars, quote it
	if strings.ContainsAny(s, " \t\"") {
		s = strings.ReplaceAll(s, "\"", "\"\"")
		return "\"" + s + "\""
	}
	return s
}
