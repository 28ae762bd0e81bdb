// Package media enumerates the video library and produces thumbnails.
//
// The Scanner walks the media directory recursively, yielding one Video per
// playable file, and can watch the tree for changes with fsnotify. The
// ThumbnailGenerator grabs a frame with FFmpeg, resizes it and caches the
// JPEG under the thumbnail directory.
package media
