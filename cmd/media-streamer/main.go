package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"media-streamer/internal/filesystem"
	"media-streamer/internal/handlers"
	"media-streamer/internal/indexer"
	"media-streamer/internal/logging"
	"media-streamer/internal/media"
	"media-streamer/internal/memory"
	"media-streamer/internal/metrics"
	"media-streamer/internal/middleware"
	"media-streamer/internal/startup"
	"media-streamer/internal/subtitles"
	"media-streamer/internal/supervisor"
	"media-streamer/internal/telemetry"
	"media-streamer/internal/transcoder"
	"media-streamer/internal/workers"
)

const (
	serverReadTimeout   = 15 * time.Second
	serverIdleTimeout   = 60 * time.Second
	metricsReadTimeout  = 10 * time.Second
	metricsWriteTimeout = 10 * time.Second
	metricsIdleTimeout  = 60 * time.Second
	collectorInterval   = time.Minute
	shutdownTimeout     = 30 * time.Second
	serviceName         = "media-streamer"
)

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

type stopper interface {
	Stop()
}

type transcodeCanceller interface {
	Cleanup(ctx context.Context) error
}

// components are the parts torn down by shutdown. metrics and collector
// are nil when metrics are disabled.
type components struct {
	server     shutdowner
	metrics    shutdowner
	collector  stopper
	indexer    stopper
	transcoder transcodeCanceller
	supervisor shutdowner
	telemetry  telemetry.ShutdownFunc
}

func main() {
	startTime := time.Now()

	memory.ConfigureFromEnv()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	shutdownTracing, err := telemetry.Init(context.Background(), serviceName, startup.Version)
	if err != nil {
		logging.Warn("Tracing disabled: %v", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	filesystem.SetObserver(metrics.NewFilesystemObserver())
	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"media":     config.MediaDir,
		"subtitles": config.SubtitleDir,
		"cache":     config.CacheDir,
	}))

	procs := supervisor.New(supervisor.WithMaxRuntime(config.TranscodeTimeout))

	captions := subtitles.New(subtitles.Config{
		FFmpegPath:  config.FFmpegPath,
		FFprobePath: config.FFprobePath,
		CacheDir:    config.CaptionDir,
		SidecarDirs: []string{config.SubtitleDir},
		Runner:      procs,
		Retry:       filesystem.DefaultRetryConfig(),
	})

	startup.LogTranscoderInit(config.MaxConcurrentTranscodes, config.TranscodeTimeout)
	trans := transcoder.New(transcoder.Config{
		FFmpegPath:    config.FFmpegPath,
		FFprobePath:   config.FFprobePath,
		Cache:         transcoder.NewDirIndex(config.HLSDir),
		Runner:        procs,
		Subtitles:     captions,
		MaxConcurrent: config.MaxConcurrentTranscodes,
		MaxRuntime:    config.TranscodeTimeout,
		URLPrefix:     "/hls/",
		Retry:         filesystem.DefaultRetryConfig(),
	})
	trans.RefreshCacheMetrics()

	startup.LogIndexerInit(config.IndexInterval, config.WatchLibrary)
	thumbs := media.NewThumbnailGenerator(config.ThumbnailDir, config.FFmpegPath, config.ThumbnailWidth, procs)
	idx := indexer.New(media.NewScanner(config.MediaDir), thumbs, indexer.Config{
		IndexInterval:      config.IndexInterval,
		ThumbnailWorkers:   workers.ForIO("", 4),
		ThumbnailURLPrefix: "/thumbnails/",
		Watch:              config.WatchLibrary,
	})
	go func() {
		if err := idx.Start(); err != nil {
			logging.Error("Failed to start indexer: %v", err)
		}
	}()
	startup.LogIndexerStarted()

	h := handlers.New(handlers.Config{
		MediaDir:     config.MediaDir,
		ThumbnailDir: config.ThumbnailDir,
		HLSDir:       config.HLSDir,
		Library:      idx,
		Transcoder:   trans,
		Captions:     captions,
	})

	router := setupRouter(h, config)
	startup.LogHTTPRoutes(router, config.LogStaticFiles, config.LogHealthChecks)

	srv := &http.Server{
		Addr:        ":" + config.Port,
		Handler:     wrapHandler(router, config),
		ReadTimeout: serverReadTimeout,
		// Streams and transcodes manage their own write deadlines.
		WriteTimeout: 0,
		IdleTimeout:  serverIdleTimeout,
	}
	c := &components{
		server:     srv,
		indexer:    idx,
		transcoder: trans,
		supervisor: procs,
		telemetry:  shutdownTracing,
	}

	if config.MetricsEnabled {
		metrics.InitializeMetrics()
		info := startup.GetBuildInfo()
		metrics.SetAppInfo(info.Version, info.Commit, info.GoVersion)

		collector := metrics.NewCollector(&statsAdapter{library: idx, cache: trans}, collectorInterval)
		collector.Start()
		metricsSrv := newMetricsServer(config.MetricsPort, h)
		c.collector = collector
		c.metrics = metricsSrv
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	// ListenAndServe returns as soon as Shutdown begins; main must not exit
	// until the child processes have been reaped.
	done := make(chan struct{})
	go func() {
		defer close(done)
		handleShutdown(c)
	}()

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
	<-done
}

func setupRouter(h *handlers.Handlers, config *startup.Config) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Recovery)
	if config.MetricsEnabled {
		r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	}

	limit := middleware.RateLimit(middleware.RateLimitConfig{
		RPS:   config.StreamRateLimit,
		Burst: config.StreamRateBurst,
	})
	h.RegisterRoutes(r, limit)
	return r
}

// wrapHandler applies the outer middleware: tracing, then compression,
// then access logging.
func wrapHandler(router http.Handler, config *startup.Config) http.Handler {
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogStaticFiles = config.LogStaticFiles
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.Logger(loggingConfig)(router)

	handler = middleware.Compression(middleware.DefaultCompressionConfig())(handler)

	return otelhttp.NewHandler(handler, serviceName,
		otelhttp.WithFilter(func(r *http.Request) bool {
			switch r.URL.Path {
			case "/health", "/healthz", "/livez", "/readyz":
				return false
			}
			return true
		}),
	)
}

func newMetricsServer(port string, h *handlers.Handlers) *http.Server {
	routes := http.NewServeMux()
	routes.Handle("/metrics", h.MetricsHandler())
	routes.HandleFunc("/health", h.LivenessCheck)

	return &http.Server{
		Addr:         ":" + port,
		Handler:      routes,
		ReadTimeout:  metricsReadTimeout,
		WriteTimeout: metricsWriteTimeout,
		IdleTimeout:  metricsIdleTimeout,
	}
}

type videoCounter interface {
	Count() int
}

type cacheLister interface {
	CacheEntries() ([]transcoder.Entry, error)
}

// statsAdapter feeds the metrics collector from the indexer and the
// transcode cache.
type statsAdapter struct {
	library videoCounter
	cache   cacheLister
}

func (a *statsAdapter) GetStats() (metrics.Stats, error) {
	stats := metrics.Stats{Videos: a.library.Count()}

	entries, err := a.cache.CacheEntries()
	if err != nil {
		return stats, err
	}
	stats.CacheEntries = len(entries)
	for _, e := range entries {
		stats.CacheBytes += e.Size
	}
	return stats, nil
}

func handleShutdown(c *components) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	shutdown(ctx, c)
}

// shutdown tears the components down. Encodes and their child processes go
// first: they run in their own process groups and would outlive the server,
// and requests waiting on them hold the HTTP drain open.
func shutdown(ctx context.Context, c *components) {
	startup.LogShutdownStep("Cancelling transcodes")
	if err := c.transcoder.Cleanup(ctx); err != nil {
		logging.Warn("Transcoder cleanup: %v", err)
	}
	if err := c.supervisor.Shutdown(ctx); err != nil {
		logging.Warn("Process shutdown: %v", err)
	} else {
		startup.LogShutdownStepComplete("Child processes stopped")
	}

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := c.server.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if c.metrics != nil {
		if err := c.metrics.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		}
	}
	if c.collector != nil {
		c.collector.Stop()
	}

	startup.LogShutdownStep("Stopping indexer")
	c.indexer.Stop()
	startup.LogShutdownStepComplete("Indexer stopped")

	if c.telemetry != nil {
		if err := c.telemetry(ctx); err != nil {
			logging.Warn("Tracing shutdown: %v", err)
		}
	}

	startup.LogShutdownComplete()
}
