package handlers

import (
	"context"

	"media-streamer/internal/indexer"
	"media-streamer/internal/media"
	"media-streamer/internal/streaming"
	"media-streamer/internal/subtitles"
	"media-streamer/internal/transcoder"
)

// Library is the indexed video snapshot.
type Library interface {
	Videos() []media.Video
	IsIndexing() bool
	IsReady() bool
	TriggerIndex() bool
	GetHealthStatus() indexer.HealthStatus
}

// Transcoder produces and maintains HLS renditions.
type Transcoder interface {
	EnsureStream(ctx context.Context, sourcePath string) (transcoder.StreamLocation, error)
	VideoInfo(ctx context.Context, sourcePath string) (*transcoder.VideoInfo, error)
	CacheEntries() ([]transcoder.Entry, error)
	CacheSize() (int64, error)
	ClearCache() (int64, error)
}

// Captions extracts embedded subtitle tracks.
type Captions interface {
	ExtractTrack(ctx context.Context, sourcePath string, index int) (subtitles.CaptionLocation, error)
}

// Config wires the collaborators of Handlers.
type Config struct {
	MediaDir     string
	ThumbnailDir string
	HLSDir       string
	Library      Library
	Transcoder   Transcoder
	Captions     Captions
	ByteServer   *streaming.FileByteServer
}

type Handlers struct {
	mediaDir     string
	thumbnailDir string
	hlsDir       string
	library      Library
	transcoder   Transcoder
	captions     Captions
	bytes        *streaming.FileByteServer
}

func New(config Config) *Handlers {
	bs := config.ByteServer
	if bs == nil {
		bs = streaming.NewFileByteServer()
	}
	return &Handlers{
		mediaDir:     config.MediaDir,
		thumbnailDir: config.ThumbnailDir,
		hlsDir:       config.HLSDir,
		library:      config.Library,
		transcoder:   config.Transcoder,
		captions:     config.Captions,
		bytes:        bs,
	}
}
