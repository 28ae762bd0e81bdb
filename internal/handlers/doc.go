// Package handlers provides the HTTP handlers of the media streamer.
//
// It includes handlers for:
//   - Direct byte-range playback (/video) and HLS redirects (/stream)
//   - WebVTT subtitle extraction (/subtitle)
//   - The library listing, stream info and reindex API
//   - Transcode cache inspection and clearing
//   - Health probes and build version
//
// Every {filename} is resolved inside the media directory; paths that
// escape it are answered with 403.
package handlers
