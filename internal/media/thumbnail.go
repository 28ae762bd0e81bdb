package media

import (
	"bytes"
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/singleflight"

	"media-streamer/internal/logging"
	"media-streamer/internal/metrics"
	"media-streamer/internal/supervisor"
)

const (
	// DefaultThumbnailWidth is the width of generated thumbnails in pixels.
	DefaultThumbnailWidth = 320

	thumbnailTimeout = time.Minute
)

// Runner runs a supervised process and cancels it when ctx ends.
type Runner interface {
	Run(ctx context.Context, spec supervisor.Spec) supervisor.Outcome
}

// ThumbnailGenerator writes one JPEG per video into its cache directory.
type ThumbnailGenerator struct {
	cacheDir string
	width    int
	ffmpeg   string
	runner   Runner
	group    singleflight.Group
}

func NewThumbnailGenerator(cacheDir, ffmpegPath string, width int, runner Runner) *ThumbnailGenerator {
	if width <= 0 {
		width = DefaultThumbnailWidth
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		logging.Warn("ThumbnailGenerator: failed to create cache dir: %v", err)
	}
	logging.Debug("ThumbnailGenerator: cache dir %s, width %d", cacheDir, width)
	return &ThumbnailGenerator{
		cacheDir: cacheDir,
		width:    width,
		ffmpeg:   ffmpegPath,
		runner:   runner,
	}
}

// CacheDir returns where thumbnails are written.
func (t *ThumbnailGenerator) CacheDir() string {
	return t.cacheDir
}

// ThumbnailName returns the cache file name for videoPath.
func ThumbnailName(videoPath string) string {
	return fmt.Sprintf("%x.jpg", md5.Sum([]byte(videoPath)))
}

// Generate returns the file name of the thumbnail for videoPath, creating it
// when it does not exist yet.
func (t *ThumbnailGenerator) Generate(ctx context.Context, videoPath string) (string, error) {
	name := ThumbnailName(videoPath)
	cachePath := filepath.Join(t.cacheDir, name)

	if exists(cachePath) {
		metrics.ThumbnailGenerationsTotal.WithLabelValues("cached").Inc()
		return name, nil
	}

	// Different videos render in parallel; requests for the same one share
	// a single ffmpeg run.
	_, err, _ := t.group.Do(name, func() (any, error) {
		if exists(cachePath) {
			metrics.ThumbnailGenerationsTotal.WithLabelValues("cached").Inc()
			return nil, nil
		}
		start := time.Now()
		if err := t.generate(ctx, videoPath, cachePath); err != nil {
			metrics.ThumbnailGenerationsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		metrics.ThumbnailGenerationsTotal.WithLabelValues("success").Inc()
		metrics.ThumbnailGenerationDuration.Observe(time.Since(start).Seconds())
		logging.Debug("Thumbnail cached: %s", cachePath)
		return nil, nil
	})
	if err != nil {
		return "", err
	}
	return name, nil
}

func (t *ThumbnailGenerator) generate(ctx context.Context, videoPath, cachePath string) error {
	img, err := t.grabFrame(ctx, videoPath)
	if err != nil {
		return fmt.Errorf("thumbnail generation failed: %w", err)
	}

	thumb := imaging.Resize(img, t.width, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 80}); err != nil {
		return fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	tmp := cachePath + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write thumbnail: %w", err)
	}
	if err := os.Rename(tmp, cachePath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write thumbnail: %w", err)
	}
	return nil
}

// grabFrame extracts a frame one second in, falling back to the first frame
// for clips shorter than that.
func (t *ThumbnailGenerator) grabFrame(ctx context.Context, videoPath string) (image.Image, error) {
	img, err := t.decodeFrame(ctx, FrameArgs(videoPath, "00:00:01"))
	if err == nil {
		return img, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	logging.Debug("Frame grab at 1s failed for %s: %v, retrying at start", videoPath, err)
	return t.decodeFrame(ctx, FrameArgs(videoPath, ""))
}

func (t *ThumbnailGenerator) decodeFrame(ctx context.Context, args []string) (image.Image, error) {
	var stdout bytes.Buffer
	out := t.runner.Run(ctx, supervisor.Spec{
		Name:       "ffmpeg-thumbnail",
		Binary:     t.ffmpeg,
		Args:       args,
		Stdout:     &stdout,
		MaxRuntime: thumbnailTimeout,
	})
	if out.State != supervisor.Succeeded {
		return nil, fmt.Errorf("ffmpeg: %s", out.Reason())
	}
	if stdout.Len() == 0 {
		return nil, errors.New("ffmpeg produced no output")
	}
	img, _, err := image.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ffmpeg output: %w", err)
	}
	return img, nil
}

// FrameArgs returns ffmpeg arguments writing one PNG frame of videoPath to
// stdout. An empty seek grabs the first frame.
func FrameArgs(videoPath, seek string) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if seek != "" {
		args = append(args, "-ss", seek)
	}
	return append(args,
		"-i", videoPath,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
