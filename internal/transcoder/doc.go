// Package transcoder turns source videos into cached HLS renditions using
// FFmpeg.
//
// An [Orchestrator] checks the cache first and only spawns an encoder on a
// miss. Concurrent requests for the same source share a single job, which is
// cancelled once the last waiting caller has gone. Output lives under
// <cache>/hls/<key>/ and becomes visible only when the encoder finished and
// the staging manifest was renamed to index.m3u8.
//
// Subtitles are burned into the video when a sidecar caption file exists next
// to the source (or in the subtitle directory), otherwise when the container
// carries an embedded subtitle track.
//
// FFmpeg must be installed; its path is configurable.
package transcoder
