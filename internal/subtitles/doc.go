// Package subtitles locates and extracts caption tracks.
//
// Sidecar files (.srt, .vtt, .ass, .ssa) sharing the base name of a video are
// found next to the video or in the configured subtitle directories. Embedded
// subtitle streams are listed with ffprobe and extracted to WebVTT with
// ffmpeg. Extracted files are cached under <cache>/subtitles/ and reused.
package subtitles
