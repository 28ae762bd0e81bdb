package subtitles

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"media-streamer/internal/ffprobe"
	"media-streamer/internal/filesystem"
	"media-streamer/internal/flight"
	"media-streamer/internal/logging"
	"media-streamer/internal/metrics"
	"media-streamer/internal/supervisor"
)

var (
	ErrSourceNotFound      = errors.New("source video not found")
	ErrTrackNotFound       = errors.New("subtitle track not found")
	ErrExtractionFailed    = errors.New("subtitle extraction failed")
	ErrExtractionCancelled = errors.New("subtitle extraction cancelled")
)

// noStreamsMarker is what ffmpeg prints when -map selects nothing.
const noStreamsMarker = "matches no streams"

// Runner runs a supervised process and cancels it when ctx ends.
type Runner interface {
	Run(ctx context.Context, spec supervisor.Spec) supervisor.Outcome
}

// Config wires an Extractor.
type Config struct {
	FFmpegPath  string
	FFprobePath string
	CacheDir    string
	SidecarDirs []string
	Runner      Runner
	Retry       filesystem.RetryConfig
}

// Extractor finds and extracts captions.
type Extractor struct {
	ffmpeg      string
	ffprobe     string
	cacheDir    string
	sidecarDirs []string
	runner      Runner
	retry       filesystem.RetryConfig
	flights     flight.Group[CaptionLocation]
}

// New creates an Extractor.
func New(cfg Config) *Extractor {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialBackoff == 0 {
		cfg.Retry = filesystem.DefaultRetryConfig()
	}
	return &Extractor{
		ffmpeg:      cfg.FFmpegPath,
		ffprobe:     cfg.FFprobePath,
		cacheDir:    cfg.CacheDir,
		sidecarDirs: cfg.SidecarDirs,
		runner:      cfg.Runner,
		retry:       cfg.Retry,
	}
}

// CacheDir returns where extracted captions are stored.
func (e *Extractor) CacheDir() string {
	return e.cacheDir
}

// CaptionLocation is an extracted caption file.
type CaptionLocation struct {
	Key    string
	Path   string
	Cached bool
}

// Track describes one embedded subtitle stream.
type Track struct {
	Index    int    `json:"index"`
	Codec    string `json:"codec"`
	Language string `json:"language,omitempty"`
	Title    string `json:"title,omitempty"`
	Default  bool   `json:"default"`
}

func normalize(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return norm.NFC.String(filepath.Clean(path))
}

// Key names the cached caption for track index of sourcePath.
func Key(sourcePath string, index int) string {
	return fmt.Sprintf("%x_%d", md5.Sum([]byte(normalize(sourcePath))), index)
}

// FindSidecar looks for a caption file beside sourcePath or in the
// configured subtitle directories.
func (e *Extractor) FindSidecar(sourcePath string) (string, bool) {
	return FindSidecar(sourcePath, e.sidecarDirs...)
}

// Tracks lists the embedded subtitle streams of sourcePath.
func (e *Extractor) Tracks(ctx context.Context, sourcePath string) ([]Track, error) {
	streams, err := ffprobe.SubtitleStreams(ctx, e.runner, e.ffprobe, normalize(sourcePath))
	if err != nil {
		return nil, err
	}
	tracks := make([]Track, 0, len(streams))
	for i, s := range streams {
		tracks = append(tracks, Track{
			Index:    i,
			Codec:    s.CodecName,
			Language: s.Language(),
			Title:    s.Title(),
			Default:  s.IsDefault(),
		})
	}
	return tracks, nil
}

// HasTrack reports whether sourcePath has subtitle track index. It only
// reads the source.
func (e *Extractor) HasTrack(ctx context.Context, sourcePath string, index int) (bool, error) {
	if index < 0 {
		return false, nil
	}
	tracks, err := e.Tracks(ctx, sourcePath)
	if err != nil {
		metrics.SubtitleProbesTotal.WithLabelValues("error").Inc()
		return false, err
	}
	found := index < len(tracks)
	if found {
		metrics.SubtitleProbesTotal.WithLabelValues("found").Inc()
	} else {
		metrics.SubtitleProbesTotal.WithLabelValues("absent").Inc()
	}
	return found, nil
}

// ExtractTrack converts subtitle track index of sourcePath to WebVTT,
// reusing an earlier extraction when one exists. Concurrent calls for the
// same track share one ffmpeg run, which is cancelled only when every
// caller has gone.
func (e *Extractor) ExtractTrack(ctx context.Context, sourcePath string, index int) (CaptionLocation, error) {
	if index < 0 {
		return CaptionLocation{}, fmt.Errorf("%w: index %d", ErrTrackNotFound, index)
	}
	src := normalize(sourcePath)
	info, err := filesystem.StatWithRetry(src, e.retry)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return CaptionLocation{}, fmt.Errorf("%w: %s", ErrSourceNotFound, src)
		}
		return CaptionLocation{}, fmt.Errorf("failed to stat source: %w", err)
	}
	if info.IsDir() {
		return CaptionLocation{}, fmt.Errorf("%w: %s is a directory", ErrSourceNotFound, src)
	}

	key := Key(src, index)
	out := filepath.Join(e.cacheDir, key+".vtt")
	if usable(out) {
		metrics.SubtitleExtractionsTotal.WithLabelValues("cached").Inc()
		return CaptionLocation{Key: key, Path: out, Cached: true}, nil
	}

	loc, _, err := e.flights.Do(ctx, key, func(runCtx context.Context) (CaptionLocation, error) {
		return e.extract(runCtx, src, index, key, out)
	})
	if errors.Is(err, flight.ErrLeft) {
		return CaptionLocation{}, fmt.Errorf("%w: %w", ErrExtractionCancelled, ctx.Err())
	}
	return loc, err
}

func (e *Extractor) extract(ctx context.Context, src string, index int, key, out string) (CaptionLocation, error) {
	if usable(out) {
		metrics.SubtitleExtractionsTotal.WithLabelValues("cached").Inc()
		return CaptionLocation{Key: key, Path: out, Cached: true}, nil
	}
	if err := os.MkdirAll(e.cacheDir, 0o755); err != nil {
		return CaptionLocation{}, fmt.Errorf("%w: create cache dir: %w", ErrExtractionFailed, err)
	}

	tmp, err := os.CreateTemp(e.cacheDir, key+"-*.partial")
	if err != nil {
		return CaptionLocation{}, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			logging.Debug("failed to remove %s: %v", tmpPath, err)
		}
	}()

	outcome := e.runner.Run(ctx, supervisor.Spec{
		Name:   "ffmpeg-subtitle",
		Binary: e.ffmpeg,
		Args:   ExtractArgs(src, index, tmpPath),
	})

	switch outcome.State {
	case supervisor.Succeeded:
	case supervisor.Cancelled:
		metrics.SubtitleExtractionsTotal.WithLabelValues("cancelled").Inc()
		return CaptionLocation{}, fmt.Errorf("%w: track %d of %s", ErrExtractionCancelled, index, src)
	default:
		metrics.SubtitleExtractionsTotal.WithLabelValues("failed").Inc()
		for _, line := range outcome.Diagnostics {
			if strings.Contains(line, noStreamsMarker) {
				return CaptionLocation{}, fmt.Errorf("%w: %w: track %d of %s", ErrExtractionFailed, ErrTrackNotFound, index, src)
			}
		}
		return CaptionLocation{}, fmt.Errorf("%w: track %d of %s: %s", ErrExtractionFailed, index, src, outcome.Reason())
	}

	if !usable(tmpPath) {
		metrics.SubtitleExtractionsTotal.WithLabelValues("failed").Inc()
		return CaptionLocation{}, fmt.Errorf("%w: track %d of %s: empty output", ErrExtractionFailed, index, src)
	}
	if err := os.Rename(tmpPath, out); err != nil {
		metrics.SubtitleExtractionsTotal.WithLabelValues("failed").Inc()
		return CaptionLocation{}, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	metrics.SubtitleExtractionsTotal.WithLabelValues("succeeded").Inc()
	logging.Info("Extracted subtitle track %d of %s", index, filepath.Base(src))
	return CaptionLocation{Key: key, Path: out}, nil
}

// ExtractArgs returns the ffmpeg arguments converting track index to WebVTT.
func ExtractArgs(src string, index int, dest string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", src,
		"-map", fmt.Sprintf("0:s:%d", index),
		"-c:s", "webvtt",
		"-f", "webvtt",
		dest,
	}
}

func usable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
