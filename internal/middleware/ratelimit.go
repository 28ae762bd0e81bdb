package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"media-streamer/internal/metrics"
)

// RateLimitConfig configures a per-client token bucket.
type RateLimitConfig struct {
	// RPS is the sustained rate per client. Zero disables limiting.
	RPS   float64
	Burst int
	// IdleTTL evicts limiters of clients not seen for this long.
	IdleTTL time.Duration
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per client IP.
type RateLimiter struct {
	config RateLimitConfig
	now    func() time.Time

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.Burst < 1 {
		config.Burst = 1
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = 10 * time.Minute
	}
	return &RateLimiter{
		config:  config,
		now:     time.Now,
		clients: make(map[string]*clientLimiter),
	}
}

// Allow reports whether client may make a request now.
func (l *RateLimiter) Allow(client string) bool {
	if l.config.RPS <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > l.config.IdleTTL {
		for key, c := range l.clients {
			if now.Sub(c.lastSeen) > l.config.IdleTTL {
				delete(l.clients, key)
			}
		}
		l.lastSweep = now
	}

	c, ok := l.clients[client]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(l.config.RPS), l.config.Burst)}
		l.clients[client] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// Clients returns the number of tracked clients.
func (l *RateLimiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Middleware rejects requests over the limit with 429.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(getClientIP(r)) {
			metrics.HTTPRateLimitedTotal.WithLabelValues(routeLabel(r)).Inc()
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit returns a per-client rate limiting middleware.
func RateLimit(config RateLimitConfig) func(http.Handler) http.Handler {
	return NewRateLimiter(config).Middleware
}
