package middleware

import (
	"net/http"
	"runtime/debug"

	"media-streamer/internal/logging"
	"media-streamer/internal/metrics"
)

// Recovery turns a handler panic into a 500 response. http.ErrAbortHandler
// is re-raised so the server aborts the response as intended.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			metrics.HTTPPanicsTotal.Inc()
			logging.Error("panic serving %s %s from %s: %v\n%s",
				r.Method, sanitizeLogField(r.URL.Path), getClientIP(r), rec, debug.Stack())
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}
