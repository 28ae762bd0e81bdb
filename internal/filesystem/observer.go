package filesystem

// Observer records retry metrics. The metrics package implements it so this
// package does not import Prometheus.
type Observer interface {
	ObserveRetryAttempt(op, volume string)
	ObserveRetrySuccess(op, volume string)
	ObserveRetryFailure(op, volume string)
	ObserveRetryDuration(op, volume string, durationSeconds float64)
	ObserveStaleError(op, volume string)
}

var defaultObserver Observer

// SetObserver sets the package-level metrics observer. Call once at startup.
func SetObserver(o Observer) {
	defaultObserver = o
}

type nopObserver struct{}

func (nopObserver) ObserveRetryAttempt(string, string)           {}
func (nopObserver) ObserveRetrySuccess(string, string)           {}
func (nopObserver) ObserveRetryFailure(string, string)           {}
func (nopObserver) ObserveRetryDuration(string, string, float64) {}
func (nopObserver) ObserveStaleError(string, string)             {}

func observer() Observer {
	if defaultObserver == nil {
		return nopObserver{}
	}
	return defaultObserver
}
