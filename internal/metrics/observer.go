package metrics

import "media-streamer/internal/filesystem"

type filesystemObserver struct{}

// NewFilesystemObserver returns a filesystem.Observer backed by the
// filesystem retry metrics in this package.
func NewFilesystemObserver() filesystem.Observer {
	return filesystemObserver{}
}

func (filesystemObserver) ObserveRetryAttempt(op, volume string) {
	FilesystemRetryAttempts.WithLabelValues(op, volume).Inc()
}

func (filesystemObserver) ObserveRetrySuccess(op, volume string) {
	FilesystemRetrySuccess.WithLabelValues(op, volume).Inc()
}

func (filesystemObserver) ObserveRetryFailure(op, volume string) {
	FilesystemRetryFailures.WithLabelValues(op, volume).Inc()
}

func (filesystemObserver) ObserveRetryDuration(op, volume string, durationSeconds float64) {
	FilesystemRetryDuration.WithLabelValues(op, volume).Observe(durationSeconds)
}

func (filesystemObserver) ObserveStaleError(op, volume string) {
	FilesystemStaleErrors.WithLabelValues(op, volume).Inc()
}
