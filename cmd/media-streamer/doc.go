// Package main provides the entry point for the media streamer.
//
// The media streamer serves a directory of video files over HTTP. Browsers
// play compatible files directly with byte-range requests, and everything
// else is transcoded on demand into cached HLS renditions. Embedded and
// sidecar subtitles are delivered as WebVTT.
//
// # Application Lifecycle
//
//  1. Memory Configuration: Sets GOMEMLIMIT from environment or cgroup limits
//  2. Configuration Loading: Reads the optional TOML file and environment,
//     creates the cache directories and checks ffmpeg and ffprobe
//  3. Tracing: Installs an OTLP exporter when OTEL_EXPORTER_OTLP_ENDPOINT is set
//  4. Component Initialization:
//     - Process supervisor: Owns every ffmpeg and ffprobe child process
//     - Subtitle extractor: Sidecar lookup and WebVTT extraction
//     - Transcode orchestrator: One HLS encode per source, shared by all requests
//     - Indexer: Scans and watches the media directory, generates thumbnails
//     - Metrics collector: Library and cache gauges
//  5. HTTP Server Setup: Routes, middleware, and the metrics server
//  6. Graceful Shutdown: Handles SIGINT/SIGTERM and stops all components
//
// # HTTP Servers
//
//  1. Main Server (default port 4000):
//     - GET /video/{filename}: 206 byte ranges, Range header required
//     - GET /stream/{filename}: 302 to the HLS playlist, transcoding if needed
//     - GET /subtitle/{filename}/{index}.vtt: WebVTT caption track
//     - /api/videos, /api/stream-info, /api/reindex, /api/transcode/*
//     - /hls/ and /thumbnails/: cached output
//     - /health, /healthz, /livez, /readyz
//
//  2. Metrics Server (default port 9090, optional):
//     - Prometheus metrics endpoint (/metrics)
//     - Liveness endpoint (/health)
//
// Routes that start ffmpeg or ffprobe are rate limited per client IP.
//
// # Graceful Shutdown
//
//  1. Cancel running transcodes and refuse new ones
//  2. Kill remaining child processes and wait until they are reaped
//  3. Stop accepting new HTTP requests and drain (30s budget overall)
//  4. Shutdown metrics server and collector
//  5. Stop indexer and file watcher
//  6. Flush traces
//
// main returns only after every step has run.
//
// # Runtime Requirements
//
// ffmpeg and ffprobe must be on PATH or configured with FFMPEG_PATH and
// FFPROBE_PATH. Without them only direct playback works.
//
// See [media-streamer/internal/startup] for the configuration reference and
// cmd/mediactl for cache maintenance from the command line.
package main
