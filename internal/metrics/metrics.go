package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_streamer_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_streamer_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60, 180, 300},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_streamer_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	HTTPRateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_streamer_http_rate_limited_total",
			Help: "Requests rejected by the transcode rate limiter",
		},
		[]string{"path"},
	)

	HTTPPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_streamer_http_panics_total",
			Help: "Handler panics recovered by middleware",
		},
	)
)

// Range serving metrics
var (
	RangeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_streamer_range_requests_total",
			Help: "Byte-range requests by result",
		},
		[]string{"result"}, // served, range_required, not_satisfiable, not_found, error
	)

	RangeBytesServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_streamer_range_bytes_served_total",
			Help: "Bytes written in partial content responses",
		},
	)

	RangeStreamAborts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_streamer_range_stream_aborts_total",
			Help: "Partial content responses aborted before completion",
		},
		[]string{"reason"}, // client_gone, write_timeout, read_error
	)
)

// Supervisor metrics
var (
	ProcessesStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_streamer_supervised_processes_started_total",
			Help: "External processes started by the supervisor",
		},
		[]string{"name"},
	)

	ProcessOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_streamer_supervised_process_outcomes_total",
			Help: "Terminal outcomes of supervised processes",
		},
		[]string{"name", "outcome"}, // succeeded, failed, cancelled, timeout, launch_error
	)

	ProcessesActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_streamer_supervised_processes_active",
			Help: "Supervised processes currently running",
		},
		[]string{"name"},
	)

	ProcessRuntime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_streamer_supervised_process_runtime_seconds",
			Help:    "Wall-clock runtime of supervised processes",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"name"},
	)
)

// Transcoder metrics
var (
	TranscodeCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_streamer_transcode_cache_lookups_total",
			Help: "HLS cache lookups by result",
		},
		[]string{"result"}, // hit, miss
	)

	TranscoderJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_streamer_transcoder_jobs_total",
			Help: "Transcode jobs by terminal status",
		},
		[]string{"status"}, // succeeded, failed, cancelled
	)

	TranscoderJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_streamer_transcoder_job_duration_seconds",
			Help:    "Duration of transcode jobs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 180, 240, 300},
		},
	)

	TranscoderJobsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_streamer_transcoder_jobs_in_progress",
			Help: "Transcode jobs currently running",
		},
	)

	TranscoderSharedWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_streamer_transcoder_shared_waits_total",
			Help: "Requests that joined an in-flight job for the same source",
		},
	)

	TranscodeCacheSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_streamer_transcode_cache_size_bytes",
			Help: "Size of the HLS output cache",
		},
	)

	TranscodeCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_streamer_transcode_cache_entries",
			Help: "Complete HLS outputs in the cache",
		},
	)
)

// Subtitle metrics
var (
	SubtitleExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_streamer_subtitle_extractions_total",
			Help: "Caption extractions by status",
		},
		[]string{"status"}, // cached, succeeded, failed, cancelled
	)

	SubtitleProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_streamer_subtitle_probes_total",
			Help: "Embedded subtitle track probes by result",
		},
		[]string{"result"}, // found, absent, error
	)
)

// Library metrics
var (
	LibraryScansTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_streamer_library_scans_total",
			Help: "Completed library scans",
		},
	)

	LibraryScanErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_streamer_library_scan_errors_total",
			Help: "Library scans that failed",
		},
	)

	LibraryScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_streamer_library_scan_duration_seconds",
			Help:    "Duration of library scans",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		},
	)

	LibraryVideos = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_streamer_library_videos",
			Help: "Videos in the current library snapshot",
		},
	)

	LibraryScanRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_streamer_library_scan_running",
			Help: "Whether a library scan is running (1 = running, 0 = idle)",
		},
	)

	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_streamer_watcher_events_total",
			Help: "Filesystem watcher events by operation",
		},
		[]string{"op"},
	)

	ThumbnailGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_streamer_thumbnail_generations_total",
			Help: "Thumbnail generations by status",
		},
		[]string{"status"}, // success, cached, error
	)

	ThumbnailGenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_streamer_thumbnail_generation_duration_seconds",
			Help:    "Thumbnail generation duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_streamer_filesystem_retry_attempts_total",
			Help: "Retries after a stale file handle",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_streamer_filesystem_retry_success_total",
			Help: "Operations that succeeded after retrying",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_streamer_filesystem_retry_failures_total",
			Help: "Operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_streamer_filesystem_stale_errors_total",
			Help: "ESTALE errors observed",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_streamer_filesystem_operation_duration_seconds",
			Help:    "Duration of retried filesystem operations, including backoff",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"operation", "volume"},
	)
)

// AppInfo exposes build information as labels on a constant gauge.
var AppInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "media_streamer_app_info",
		Help: "Application information",
	},
	[]string{"version", "commit", "go_version"},
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
