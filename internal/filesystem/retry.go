package filesystem

import (
	"errors"
	"os"
	"syscall"
	"time"

	"media-streamer/internal/logging"
)

// RetryConfig configures retry behavior for filesystem operations
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// VolumeResolver overrides the package-level resolver when set.
	VolumeResolver *VolumeResolver
}

// DefaultRetryConfig returns the retry policy used for media and cache reads.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

func (c RetryConfig) volume(path string) string {
	if c.VolumeResolver != nil {
		return c.VolumeResolver.Resolve(path)
	}
	return defaultResolver.Resolve(path)
}

// IsStale reports whether err is an ESTALE (stale NFS file handle) error.
func IsStale(err error) bool {
	var errno syscall.Errno
	return errors.As(err, &errno) && errno == syscall.ESTALE
}

// StatWithRetry performs os.Stat, retrying stale file handle errors.
func StatWithRetry(path string, config RetryConfig) (os.FileInfo, error) {
	return withRetry("stat", path, config, os.Stat)
}

// OpenWithRetry performs os.Open, retrying stale file handle errors.
func OpenWithRetry(path string, config RetryConfig) (*os.File, error) {
	return withRetry("open", path, config, os.Open)
}

func withRetry[T any](op, path string, config RetryConfig, fn func(string) (T, error)) (T, error) {
	start := time.Now()
	obs := observer()
	volume := config.volume(path)
	backoff := config.InitialBackoff
	defer func() {
		obs.ObserveRetryDuration(op, volume, time.Since(start).Seconds())
	}()

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		v, err := fn(path)
		if err == nil {
			if attempt > 0 {
				logging.Info("%s succeeded on retry %d for %s", op, attempt, path)
				obs.ObserveRetrySuccess(op, volume)
			}
			return v, nil
		}
		lastErr = err
		if !IsStale(err) {
			var zero T
			return zero, err
		}

		obs.ObserveStaleError(op, volume)
		if attempt == config.MaxRetries {
			break
		}
		obs.ObserveRetryAttempt(op, volume)
		logging.Debug("%s: stale file handle for %s, retrying in %v (attempt %d/%d)",
			op, path, backoff, attempt+1, config.MaxRetries)
		time.Sleep(backoff)
		backoff = min(backoff*2, config.MaxBackoff)
	}

	logging.Warn("%s failed after %d retries for %s: %v", op, config.MaxRetries, path, lastErr)
	obs.ObserveRetryFailure(op, volume)
	var zero T
	return zero, lastErr
}
