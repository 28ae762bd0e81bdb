package startup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"media-streamer/internal/logging"
	"media-streamer/internal/workers"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// LoadConfig reads the configuration, resolves directories and checks the
// external tools. The cache directories must be writable; a missing media or
// subtitle directory is only a warning.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	config, err := ReadConfig()
	if err != nil {
		return nil, err
	}

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	if config.ConfigFile != "" {
		logging.Info("  CONFIG_FILE:               %s", config.ConfigFile)
	}
	logging.Info("  MEDIA_DIR:                 %s", config.MediaDir)
	logging.Info("  SUBTITLE_DIR:              %s", config.SubtitleDir)
	logging.Info("  CACHE_DIR:                 %s", config.CacheDir)
	logging.Info("  PORT:                      %s", config.Port)
	logging.Info("  METRICS_PORT:              %s", config.MetricsPort)
	logging.Info("  METRICS_ENABLED:           %v", config.MetricsEnabled)
	logging.Info("  TRANSCODE_TIMEOUT:         %v", config.TranscodeTimeout)
	logging.Info("  INDEX_INTERVAL:            %v", config.IndexInterval)
	logging.Info("  STREAM_RATE_LIMIT:         %v/s (burst %d)", config.StreamRateLimit, config.StreamRateBurst)
	logging.Info("  THUMBNAIL_WIDTH:           %d", config.ThumbnailWidth)
	logging.Info("  LOG_STATIC_FILES:          %v", config.LogStaticFiles)
	logging.Info("  LOG_HEALTH_CHECKS:         %v", config.LogHealthChecks)
	logging.Info("  LOG_LEVEL:                 %s", logging.GetLevel())

	if config.MaxConcurrentTranscodes <= 0 {
		config.MaxConcurrentTranscodes = workers.Count("", 0.5, 4)
	}
	logging.Info("  MAX_CONCURRENT_TRANSCODES: %d", config.MaxConcurrentTranscodes)

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	for _, dir := range []struct {
		name string
		path *string
	}{
		{"media", &config.MediaDir},
		{"subtitle", &config.SubtitleDir},
		{"cache", &config.CacheDir},
	} {
		abs, err := filepath.Abs(*dir.path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s directory path: %w", dir.name, err)
		}
		*dir.path = abs
		logging.Info("  %s directory (absolute): %s", dir.name, abs)
	}
	config.DerivePaths()

	if err := ensureDirectory(config.MediaDir, "media"); err != nil {
		logging.Warn("  Media directory issue: %v", err)
	}
	if err := ensureDirectory(config.SubtitleDir, "subtitle"); err != nil {
		logging.Warn("  Subtitle directory issue: %v", err)
	}

	for _, dir := range []struct{ name, path string }{
		{"transcode", config.HLSDir},
		{"thumbnail", config.ThumbnailDir},
		{"subtitle cache", config.CaptionDir},
	} {
		if err := ensureDirectory(dir.path, dir.name); err != nil {
			return nil, fmt.Errorf("%s directory error: %w", dir.name, err)
		}
		if err := testWriteAccess(dir.path); err != nil {
			return nil, fmt.Errorf("%s directory is not writable: %w", dir.name, err)
		}
		logging.Info("  [OK] %s directory is writable", dir.name)
	}

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("EXTERNAL TOOLS")
	logging.Info("------------------------------------------------------------")
	if config.FFmpegPath, err = checkTool(config.FFmpegPath); err != nil {
		logging.Warn("  FFmpeg check failed: %v", err)
		logging.Warn("  Transcoding, subtitles and thumbnails will fail")
	} else {
		logging.Info("  [OK] FFmpeg: %s", config.FFmpegPath)
	}
	if config.FFprobePath, err = checkTool(config.FFprobePath); err != nil {
		logging.Warn("  FFprobe check failed: %v", err)
	} else {
		logging.Info("  [OK] FFprobe: %s", config.FFprobePath)
	}

	return config, nil
}

// LogTranscoderInit logs transcoder initialization
func LogTranscoderInit(maxConcurrent int, timeout time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("TRANSCODER INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Concurrent encodes: %d", maxConcurrent)
	logging.Info("  Encode timeout:     %v", timeout)
}

// LogIndexerInit logs indexer initialization
func LogIndexerInit(interval time.Duration, watch bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("INDEXER INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Index interval: %v", interval)
	logging.Info("  File watching:  %s", enabledString(watch))
	logging.Info("  Starting indexer...")
}

// LogIndexerStarted logs successful indexer start
func LogIndexerStarted() {
	logging.Info("  [OK] Indexer started")
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			pathTemplate, err = route.GetPathRegexp()
			if err != nil {
				return nil
			}
		}

		methods, err := route.GetMethods()
		if err != nil {
			// Route might not have methods specified (e.g., static file server)
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logStaticFiles, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		logging.Debug("")

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}
			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
			logging.Debug("")
		}
	}

	logging.Info("  HTTP logging enabled")
	if logStaticFiles {
		logging.Info("    Static file logging: ON")
	} else {
		logging.Info("    Static file logging: OFF (set LOG_STATIC_FILES=true to enable)")
	}
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")
	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}
	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Application:   http://0.0.0.0:%s", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

func printBanner() {
	banner := `
------------------------------------------------------------
                     _ _                  _
  _ __ ___   ___  __| (_) __ _      ___ | |_ _ __ ___  __ _ _ __ ___
 | '_ ' _ \ / _ \/ _' | |/ _' |____/ __|| __| '__/ _ \/ _' | '_ ' _ \
 | | | | | |  __/ (_| | | (_| |____\__ \| |_| | |  __/ (_| | | | | | |
 |_| |_| |_|\___|\__,_|_|\__,_|    |___/ \__|_|  \___|\__,_|_| |_| |_|

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}
	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

// checkTool resolves name on PATH and logs its version line. It returns the
// resolved path, or name unchanged on failure.
func checkTool(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return name, fmt.Errorf("%s not found in PATH", name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return path, fmt.Errorf("failed to get %s version: %w", name, err)
	}
	if line, _, _ := strings.Cut(string(output), "\n"); line != "" {
		logging.Debug("  %s", strings.TrimSpace(line))
	}
	return path, nil
}
