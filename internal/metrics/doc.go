// Package metrics declares the Prometheus instrumentation for media-streamer.
//
// All metrics are registered on the default registry through promauto and
// prefixed with "media_streamer_". They fall into these groups:
//
//   - HTTP: request counts, latency, in-flight requests, rate-limit rejections
//   - Range serving: responses by result, bytes served, aborted streams
//   - Supervisor: ffmpeg/ffprobe processes by outcome, active processes, runtime
//   - Transcoder: cache lookups, jobs by status, job duration, shared waits
//   - Subtitles: extractions, cache hits, embedded-track probes
//   - Library: scans, indexed videos, watcher events, thumbnails
//   - Filesystem: stale handle retries per volume
//
// InitializeMetrics pre-populates label combinations so dashboards see zero
// values before the first event. Collector samples the cache and library
// gauges on an interval.
package metrics
