// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// [ReadConfig] starts from [Default], applies the TOML file named by
// CONFIG_FILE (unknown keys are rejected) and then environment variables,
// which always win:
//
//   - MEDIA_DIR: library root (default: ./videos)
//   - SUBTITLE_DIR: extra directory searched for sidecar subtitles (default: ./subtitles)
//   - CACHE_DIR: cache root holding hls/, thumbnails/ and subtitles/ (default: ./cache)
//   - PORT: HTTP server port (default: 4000)
//   - METRICS_PORT, METRICS_ENABLED: Prometheus server (default: 9090, true)
//   - FFMPEG_PATH, FFPROBE_PATH: encoder and probe binaries (default: ffmpeg, ffprobe)
//   - TRANSCODE_TIMEOUT: maximum runtime of one encode (default: 5m)
//   - MAX_CONCURRENT_TRANSCODES: encode bound (default: derived from GOMAXPROCS)
//   - INDEX_INTERVAL: full re-index interval (default: 30m)
//   - WATCH_LIBRARY: rescan on filesystem events (default: true)
//   - STREAM_RATE_LIMIT, STREAM_RATE_BURST: per-client limit on transcode routes (default: 5/s, 10)
//   - THUMBNAIL_WIDTH: thumbnail width in pixels (default: 320)
//   - LOG_STATIC_FILES, LOG_HEALTH_CHECKS: request log filtering
//
// The TOML keys are the lower-case variable names, e.g.
//
//	media_dir = "/srv/videos"
//	transcode_timeout = "10m"
//
// [LoadConfig] additionally resolves absolute paths, creates the cache
// directories, verifies they are writable and locates ffmpeg and ffprobe.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
package startup
