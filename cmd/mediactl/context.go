package main

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"media-streamer/internal/filesystem"
	"media-streamer/internal/logging"
	"media-streamer/internal/media"
	"media-streamer/internal/startup"
	"media-streamer/internal/subtitles"
	"media-streamer/internal/supervisor"
	"media-streamer/internal/transcoder"
	"media-streamer/internal/workers"
)

// runner is the process runner shared by every ffmpeg and ffprobe caller.
type runner interface {
	Run(ctx context.Context, spec supervisor.Spec) supervisor.Outcome
}

type commandContext struct {
	configPath string
	mediaDir   string
	cacheDir   string

	configOnce sync.Once
	config     *startup.Config
	configErr  error

	// runner replaces the process supervisor when set.
	runner runner
	procs  *supervisor.Supervisor
}

func newCommandContext() *commandContext {
	return &commandContext{}
}

func (c *commandContext) ensureConfig() (*startup.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := startup.ReadConfigFile(c.configPath)
		if err != nil {
			c.configErr = err
			return
		}
		if c.mediaDir != "" {
			cfg.MediaDir = c.mediaDir
		}
		if c.cacheDir != "" {
			cfg.CacheDir = c.cacheDir
		}
		cfg.DerivePaths()
		if cfg.MaxConcurrentTranscodes <= 0 {
			cfg.MaxConcurrentTranscodes = workers.Count("", 0.5, 4)
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) cacheIndex() (*transcoder.DirIndex, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return transcoder.NewDirIndex(cfg.HLSDir), nil
}

func (c *commandContext) processRunner(cfg *startup.Config) runner {
	if c.runner != nil {
		return c.runner
	}
	if c.procs == nil {
		c.procs = supervisor.New(supervisor.WithMaxRuntime(cfg.TranscodeTimeout))
	}
	return c.procs
}

func (c *commandContext) extractor() (*subtitles.Extractor, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return subtitles.New(subtitles.Config{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		CacheDir:    cfg.CaptionDir,
		SidecarDirs: []string{cfg.SubtitleDir},
		Runner:      c.processRunner(cfg),
		Retry:       filesystem.DefaultRetryConfig(),
	}), nil
}

// orchestrator builds a transcoder over the same cache directory as the
// server. Both take the per-key file lease, so they never encode the same
// source at once.
func (c *commandContext) orchestrator(maxConcurrent int) (*transcoder.Orchestrator, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	captions, err := c.extractor()
	if err != nil {
		return nil, err
	}
	if maxConcurrent <= 0 {
		maxConcurrent = cfg.MaxConcurrentTranscodes
	}
	if err := os.MkdirAll(cfg.HLSDir, 0o755); err != nil {
		return nil, err
	}
	return transcoder.New(transcoder.Config{
		FFmpegPath:    cfg.FFmpegPath,
		FFprobePath:   cfg.FFprobePath,
		Cache:         transcoder.NewDirIndex(cfg.HLSDir),
		Runner:        c.processRunner(cfg),
		Subtitles:     captions,
		MaxConcurrent: maxConcurrent,
		MaxRuntime:    cfg.TranscodeTimeout,
		URLPrefix:     "/hls/",
		Retry:         filesystem.DefaultRetryConfig(),
	}), nil
}

// resolveSource accepts absolute paths as they are and resolves everything
// else inside the media directory.
func (c *commandContext) resolveSource(arg string) (string, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(arg) {
		return arg, nil
	}
	return media.ResolvePath(cfg.MediaDir, arg)
}

// shutdown stops any child processes left behind by an interrupted command.
func (c *commandContext) shutdown() {
	if c.procs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.procs.Shutdown(ctx); err != nil {
		logging.Warn("Process shutdown: %v", err)
	}
}
