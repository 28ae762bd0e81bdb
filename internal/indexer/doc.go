// Package indexer keeps an in-memory snapshot of the video library.
//
// The snapshot is rebuilt by a full scan of the media directory:
//   - Initial index: full scan on application startup
//   - Periodic index: configurable interval-based re-indexing
//   - File watching: rescans after fsnotify events, debounced
//   - Manual trigger: on-demand re-indexing via API
//
// Thumbnails for new videos are generated by a bounded worker pool during
// each scan. Nothing is persisted: the filesystem and the thumbnail cache
// are the only state.
package indexer
