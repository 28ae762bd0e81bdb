package transcoder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"media-streamer/internal/ffprobe"
	"media-streamer/internal/filesystem"
)

// Codecs and containers browsers play without transcoding.
var (
	compatibleCodecs = map[string]bool{
		"h264": true,
		"vp8":  true,
		"vp9":  true,
		"av1":  true,
	}

	compatibleContainers = map[string]bool{
		".mp4":  true,
		".m4v":  true,
		".webm": true,
	}
)

// SubtitleTrack is one embedded subtitle stream.
type SubtitleTrack struct {
	Index    int    `json:"index"`
	Codec    string `json:"codec"`
	Language string `json:"language,omitempty"`
	Title    string `json:"title,omitempty"`
	Default  bool   `json:"default"`
}

// VideoInfo summarizes a source for clients deciding how to play it.
type VideoInfo struct {
	Duration       float64         `json:"duration"`
	Width          int             `json:"width"`
	Height         int             `json:"height"`
	Codec          string          `json:"codec"`
	AudioCodec     string          `json:"audioCodec,omitempty"`
	Container      string          `json:"container"`
	BitRate        int64           `json:"bitRate"`
	Subtitles      []SubtitleTrack `json:"subtitles"`
	NeedsTranscode bool            `json:"needsTranscode"`
	CacheKey       string          `json:"cacheKey"`
	Cached         bool            `json:"cached"`
}

// VideoInfo probes sourcePath with ffprobe.
func (o *Orchestrator) VideoInfo(ctx context.Context, sourcePath string) (*VideoInfo, error) {
	src := NormalizePath(sourcePath)
	if _, err := filesystem.StatWithRetry(src, o.retry); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, src)
		}
		return nil, fmt.Errorf("failed to stat source: %w", err)
	}

	result, err := ffprobe.Inspect(ctx, o.runner, o.ffprobe, src)
	if err != nil {
		return nil, fmt.Errorf("failed to probe video: %w", err)
	}

	key := CacheKey(src)
	_, cached := o.cache.Lookup(key)
	info := &VideoInfo{
		Duration:  result.DurationSeconds(),
		Container: strings.ToLower(filepath.Ext(src)),
		BitRate:   result.BitRate(),
		Subtitles: []SubtitleTrack{},
		CacheKey:  key,
		Cached:    cached,
	}
	if v, ok := result.FirstOfType("video"); ok {
		info.Width = v.Width
		info.Height = v.Height
		info.Codec = v.CodecName
	}
	if a, ok := result.FirstOfType("audio"); ok {
		info.AudioCodec = a.CodecName
	}
	for i, s := range result.StreamsOfType("subtitle") {
		info.Subtitles = append(info.Subtitles, SubtitleTrack{
			Index:    i,
			Codec:    s.CodecName,
			Language: s.Language(),
			Title:    s.Title(),
			Default:  s.IsDefault(),
		})
	}
	info.NeedsTranscode = !compatibleCodecs[info.Codec] || !compatibleContainers[info.Container]
	return info, nil
}
