package startup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"media-streamer/internal/logging"
)

// Config holds all application configuration
type Config struct {
	MediaDir    string
	SubtitleDir string
	CacheDir    string

	Port           string
	MetricsPort    string
	MetricsEnabled bool

	FFmpegPath  string
	FFprobePath string

	TranscodeTimeout        time.Duration
	MaxConcurrentTranscodes int
	IndexInterval           time.Duration
	WatchLibrary            bool

	StreamRateLimit float64
	StreamRateBurst int

	ThumbnailWidth int

	LogStaticFiles  bool
	LogHealthChecks bool

	// ConfigFile is the TOML file that was applied, if any.
	ConfigFile string

	// Derived paths
	HLSDir       string
	ThumbnailDir string
	CaptionDir   string
}

// fileConfig mirrors Config for the optional TOML file. Durations are Go
// duration strings. Pointer fields distinguish "unset" from zero values.
type fileConfig struct {
	MediaDir                string   `toml:"media_dir"`
	SubtitleDir             string   `toml:"subtitle_dir"`
	CacheDir                string   `toml:"cache_dir"`
	Port                    string   `toml:"port"`
	MetricsPort             string   `toml:"metrics_port"`
	MetricsEnabled          *bool    `toml:"metrics_enabled"`
	FFmpegPath              string   `toml:"ffmpeg_path"`
	FFprobePath             string   `toml:"ffprobe_path"`
	TranscodeTimeout        string   `toml:"transcode_timeout"`
	MaxConcurrentTranscodes *int     `toml:"max_concurrent_transcodes"`
	IndexInterval           string   `toml:"index_interval"`
	WatchLibrary            *bool    `toml:"watch_library"`
	StreamRateLimit         *float64 `toml:"stream_rate_limit"`
	StreamRateBurst         *int     `toml:"stream_rate_burst"`
	ThumbnailWidth          *int     `toml:"thumbnail_width"`
	LogStaticFiles          *bool    `toml:"log_static_files"`
	LogHealthChecks         *bool    `toml:"log_health_checks"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		MediaDir:         "./videos",
		SubtitleDir:      "./subtitles",
		CacheDir:         "./cache",
		Port:             "4000",
		MetricsPort:      "9090",
		MetricsEnabled:   true,
		FFmpegPath:       "ffmpeg",
		FFprobePath:      "ffprobe",
		TranscodeTimeout: 5 * time.Minute,
		IndexInterval:    30 * time.Minute,
		WatchLibrary:     true,
		StreamRateLimit:  5,
		StreamRateBurst:  10,
		ThumbnailWidth:   320,
		LogHealthChecks:  true,
	}
}

// ReadConfig builds the configuration from defaults, the TOML file named by
// CONFIG_FILE and then the environment. It performs no filesystem checks
// beyond reading the file.
func ReadConfig() (*Config, error) {
	return readConfig(os.Getenv)
}

// ReadConfigFile is ReadConfig with path taking the place of CONFIG_FILE.
// An empty path falls back to ReadConfig.
func ReadConfigFile(path string) (*Config, error) {
	if path == "" {
		return ReadConfig()
	}
	return readConfig(func(key string) string {
		if key == "CONFIG_FILE" {
			return path
		}
		return os.Getenv(key)
	})
}

func readConfig(getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path := getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv(getenv)

	if cfg.Port == "" {
		return nil, errors.New("port must not be empty")
	}
	if cfg.ThumbnailWidth <= 0 {
		return nil, fmt.Errorf("thumbnail width must be positive, got %d", cfg.ThumbnailWidth)
	}
	if cfg.StreamRateBurst < 1 {
		cfg.StreamRateBurst = 1
	}

	cfg.DerivePaths()
	return &cfg, nil
}

// DerivePaths sets the cache subdirectories from CacheDir.
func (c *Config) DerivePaths() {
	c.HLSDir = filepath.Join(c.CacheDir, "hls")
	c.ThumbnailDir = filepath.Join(c.CacheDir, "thumbnails")
	c.CaptionDir = filepath.Join(c.CacheDir, "subtitles")
}

func (c *Config) applyFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config file %s does not exist", path)
		}
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var fc fileConfig
	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&fc); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			keys := make([]string, 0, len(strict.Errors))
			for _, e := range strict.Errors {
				keys = append(keys, strings.Join(e.Key(), "."))
			}
			return fmt.Errorf("parse config %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&c.MediaDir, fc.MediaDir)
	setString(&c.SubtitleDir, fc.SubtitleDir)
	setString(&c.CacheDir, fc.CacheDir)
	setString(&c.Port, fc.Port)
	setString(&c.MetricsPort, fc.MetricsPort)
	setString(&c.FFmpegPath, fc.FFmpegPath)
	setString(&c.FFprobePath, fc.FFprobePath)
	setPtr(&c.MetricsEnabled, fc.MetricsEnabled)
	setPtr(&c.MaxConcurrentTranscodes, fc.MaxConcurrentTranscodes)
	setPtr(&c.WatchLibrary, fc.WatchLibrary)
	setPtr(&c.StreamRateLimit, fc.StreamRateLimit)
	setPtr(&c.StreamRateBurst, fc.StreamRateBurst)
	setPtr(&c.ThumbnailWidth, fc.ThumbnailWidth)
	setPtr(&c.LogStaticFiles, fc.LogStaticFiles)
	setPtr(&c.LogHealthChecks, fc.LogHealthChecks)

	if fc.TranscodeTimeout != "" {
		d, err := time.ParseDuration(fc.TranscodeTimeout)
		if err != nil || d <= 0 {
			return fmt.Errorf("config %s: invalid transcode_timeout %q", path, fc.TranscodeTimeout)
		}
		c.TranscodeTimeout = d
	}
	if fc.IndexInterval != "" {
		d, err := time.ParseDuration(fc.IndexInterval)
		if err != nil || d <= 0 {
			return fmt.Errorf("config %s: invalid index_interval %q", path, fc.IndexInterval)
		}
		c.IndexInterval = d
	}

	c.ConfigFile = path
	return nil
}

// applyEnv overlays environment variables. Invalid values are logged and
// ignored.
func (c *Config) applyEnv(getenv func(string) string) {
	setString(&c.MediaDir, getenv("MEDIA_DIR"))
	setString(&c.SubtitleDir, getenv("SUBTITLE_DIR"))
	setString(&c.CacheDir, getenv("CACHE_DIR"))
	setString(&c.Port, getenv("PORT"))
	setString(&c.MetricsPort, getenv("METRICS_PORT"))
	setString(&c.FFmpegPath, getenv("FFMPEG_PATH"))
	setString(&c.FFprobePath, getenv("FFPROBE_PATH"))

	envBool(getenv, "METRICS_ENABLED", &c.MetricsEnabled)
	envBool(getenv, "WATCH_LIBRARY", &c.WatchLibrary)
	envBool(getenv, "LOG_STATIC_FILES", &c.LogStaticFiles)
	envBool(getenv, "LOG_HEALTH_CHECKS", &c.LogHealthChecks)

	envDuration(getenv, "TRANSCODE_TIMEOUT", &c.TranscodeTimeout)
	envDuration(getenv, "INDEX_INTERVAL", &c.IndexInterval)

	envInt(getenv, "MAX_CONCURRENT_TRANSCODES", &c.MaxConcurrentTranscodes)
	envInt(getenv, "STREAM_RATE_BURST", &c.StreamRateBurst)
	envInt(getenv, "THUMBNAIL_WIDTH", &c.ThumbnailWidth)

	if raw := getenv("STREAM_RATE_LIMIT"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			logging.Warn("Invalid STREAM_RATE_LIMIT %q, using %v", raw, c.StreamRateLimit)
		} else {
			c.StreamRateLimit = v
		}
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setPtr[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func envBool(getenv func(string) string, key string, dst *bool) {
	raw := getenv(key)
	if raw == "" {
		return
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using %v", key, raw, *dst)
		return
	}
	*dst = v
}

func envInt(getenv func(string) string, key string, dst *int) {
	raw := getenv(key)
	if raw == "" {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		logging.Warn("Invalid %s %q, using %d", key, raw, *dst)
		return
	}
	*dst = v
}

func envDuration(getenv func(string) string, key string, dst *time.Duration) {
	raw := getenv(key)
	if raw == "" {
		return
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		logging.Warn("Invalid %s %q, using %v", key, raw, *dst)
		return
	}
	*dst = v
}
