package mediatypes

import (
	"path/filepath"
	"strings"
)

// VideoExtensions lists the container formats the library scanner indexes.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".m4v":  true,
	".webm": true,
	".wmv":  true,
	".flv":  true,
	".mpeg": true,
	".mpg":  true,
	".3gp":  true,
}

// SubtitleExtensions lists sidecar caption formats ffmpeg's subtitles
// filter can burn in, in lookup priority order.
var SubtitleExtensions = []string{".srt", ".vtt", ".ass", ".ssa"}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".m4v":  "video/x-m4v",
	".webm": "video/webm",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".3gp":  "video/3gpp",

	// HLS output
	".m3u8": "application/vnd.apple.mpegurl",
	".ts":   "video/mp2t",

	// Captions
	".vtt": "text/vtt; charset=utf-8",
	".srt": "application/x-subrip",

	// Thumbnails
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// IsVideo reports whether ext is an indexed video format.
func IsVideo(ext string) bool {
	return VideoExtensions[ext]
}

// IsSubtitle reports whether ext is a sidecar caption format.
func IsSubtitle(ext string) bool {
	for _, s := range SubtitleExtensions {
		if s == ext {
			return true
		}
	}
	return false
}

// GetMimeType returns the MIME type for a given file extension, or
// "application/octet-stream" when it is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// MimeTypeForPath is GetMimeType applied to the lowercased extension of path.
func MimeTypeForPath(path string) string {
	return GetMimeType(strings.ToLower(filepath.Ext(path)))
}
