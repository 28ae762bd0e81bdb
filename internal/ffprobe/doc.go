// Package ffprobe runs ffprobe through the process supervisor and decodes its
// JSON output.
//
//   - Inspect: streams and container format, used for stream info
//   - SubtitleStreams: subtitle streams only, used for embedded track detection
//
// Decoding is separate from execution (Parse), so the helpers on Result are
// testable without an ffprobe binary.
package ffprobe
