package transcoder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"media-streamer/internal/filesystem"
	"media-streamer/internal/flight"
	"media-streamer/internal/logging"
	"media-streamer/internal/metrics"
	"media-streamer/internal/supervisor"
)

const (
	// DefaultURLPrefix is where the HLS cache is mounted over HTTP.
	DefaultURLPrefix = "/hls"

	leaseRetryDelay = 250 * time.Millisecond
	maxAttempts     = 3
)

var tracer = otel.Tracer("media-streamer/internal/transcoder")

// Runner runs a supervised process and cancels it when ctx ends.
type Runner interface {
	Run(ctx context.Context, spec supervisor.Spec) supervisor.Outcome
}

// SubtitleDetector finds captions to burn into a rendition.
type SubtitleDetector interface {
	FindSidecar(sourcePath string) (string, bool)
	HasTrack(ctx context.Context, sourcePath string, index int) (bool, error)
}

// leaser is implemented by indexes that can name a lock file per key.
type leaser interface {
	LockPath(key string) string
}

// Result tells whether EnsureStream reused or produced the output.
type Result int

const (
	CacheHit Result = iota
	Generated
)

func (r Result) String() string {
	if r == Generated {
		return "generated"
	}
	return "cache_hit"
}

// StreamLocation is a playable rendition.
type StreamLocation struct {
	Key          string
	ManifestPath string
	URL          string
	Result       Result
	JobID        string
	Shared       bool
}

// Config wires an Orchestrator.
type Config struct {
	FFmpegPath    string
	FFprobePath   string
	Cache         CacheIndex
	Runner        Runner
	Subtitles     SubtitleDetector
	MaxConcurrent int
	MaxRuntime    time.Duration
	Encode        EncodeOptions
	URLPrefix     string
	Retry         filesystem.RetryConfig
}

// Orchestrator produces HLS renditions on demand.
type Orchestrator struct {
	ffmpeg    string
	ffprobe   string
	cache     CacheIndex
	runner    Runner
	subtitles SubtitleDetector
	slots     *semaphore.Weighted
	maxRun    time.Duration
	encode    EncodeOptions
	urlPrefix string
	retry     filesystem.RetryConfig

	flights flight.Group[StreamLocation]
	mu      sync.Mutex
	closed  bool
	jobs    sync.WaitGroup
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.URLPrefix == "" {
		cfg.URLPrefix = DefaultURLPrefix
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialBackoff == 0 {
		cfg.Retry = filesystem.DefaultRetryConfig()
	}
	o := &Orchestrator{
		ffmpeg:    cfg.FFmpegPath,
		ffprobe:   cfg.FFprobePath,
		cache:     cfg.Cache,
		runner:    cfg.Runner,
		subtitles: cfg.Subtitles,
		slots:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		maxRun:    cfg.MaxRuntime,
		encode:    cfg.Encode,
		urlPrefix: cfg.URLPrefix,
		retry:     cfg.Retry,
	}
	o.flights.OnShare = func(string) { metrics.TranscoderSharedWaits.Inc() }
	o.flights.OnAbandon = func(key string) {
		logging.Info("Abandoning transcode %s: no callers left", key)
	}
	return o
}

// EnsureStream returns a complete rendition of sourcePath, transcoding it
// first when the cache has none. If ctx ends before the rendition is ready
// the caller stops waiting; the encode itself is cancelled only when no
// other caller is waiting for the same source.
func (o *Orchestrator) EnsureStream(ctx context.Context, sourcePath string) (StreamLocation, error) {
	src := NormalizePath(sourcePath)
	key := CacheKey(src)

	ctx, span := tracer.Start(ctx, "transcoder.EnsureStream", trace.WithAttributes(
		attribute.String("media.source", src),
		attribute.String("transcode.key", key),
	))
	defer span.End()

	loc, err := o.ensure(ctx, key, src)
	if err != nil {
		if !errors.Is(err, ErrTranscodeCancelled) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("transcode.result", "error"))
		return StreamLocation{}, err
	}
	span.SetAttributes(
		attribute.String("transcode.result", loc.Result.String()),
		attribute.Bool("transcode.shared", loc.Shared),
	)
	return loc, nil
}

func (o *Orchestrator) ensure(ctx context.Context, key, src string) (StreamLocation, error) {
	info, err := filesystem.StatWithRetry(src, o.retry)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return StreamLocation{}, fmt.Errorf("%w: %s", ErrSourceNotFound, src)
		}
		return StreamLocation{}, fmt.Errorf("failed to stat source: %w", err)
	}
	if info.IsDir() {
		return StreamLocation{}, fmt.Errorf("%w: %s is a directory", ErrSourceNotFound, src)
	}

	if loc, ok := o.cache.Lookup(key); ok {
		metrics.TranscodeCacheLookups.WithLabelValues("hit").Inc()
		return o.streamLocation(loc, CacheHit, ""), nil
	}
	metrics.TranscodeCacheLookups.WithLabelValues("miss").Inc()

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		loc, err := o.await(ctx, key, src)
		if err == nil || !errors.Is(err, ErrTranscodeCancelled) || ctx.Err() != nil || o.isClosed() {
			return loc, err
		}
		// The shared job was torn down while this caller still wanted it.
		lastErr = err
	}
	return StreamLocation{}, lastErr
}

// await joins or starts the job for key and waits for it or for ctx.
func (o *Orchestrator) await(ctx context.Context, key, src string) (StreamLocation, error) {
	loc, shared, err := o.flights.Do(ctx, key, func(jobCtx context.Context) (StreamLocation, error) {
		return o.run(jobCtx, key, src)
	})
	if err != nil {
		if errors.Is(err, flight.ErrLeft) {
			return StreamLocation{}, fmt.Errorf("%w: %w", ErrTranscodeCancelled, ctx.Err())
		}
		return StreamLocation{}, err
	}
	loc.Shared = shared
	return loc, nil
}

func (o *Orchestrator) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func (o *Orchestrator) run(ctx context.Context, key, src string) (StreamLocation, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return StreamLocation{}, fmt.Errorf("%w: shutting down", ErrTranscodeCancelled)
	}
	o.jobs.Add(1)
	o.mu.Unlock()
	defer o.jobs.Done()

	return o.generate(ctx, key, src)
}

func cancelled(err error) error {
	return fmt.Errorf("%w: %w", ErrTranscodeCancelled, err)
}

func (o *Orchestrator) generate(ctx context.Context, key, src string) (StreamLocation, error) {
	ctx, span := tracer.Start(ctx, "transcoder.generate")
	defer span.End()

	release, err := o.lease(ctx, key)
	if err != nil {
		if ctx.Err() != nil {
			return StreamLocation{}, cancelled(ctx.Err())
		}
		return StreamLocation{}, &TranscodeError{Source: src, Key: key, ExitCode: -1, Reason: "lease unavailable", Err: err}
	}
	defer release()

	// Another process may have finished the entry while we waited.
	if loc, ok := o.cache.Lookup(key); ok {
		return o.streamLocation(loc, CacheHit, ""), nil
	}

	if err := o.slots.Acquire(ctx, 1); err != nil {
		return StreamLocation{}, cancelled(err)
	}
	defer o.slots.Release(1)

	loc, err := o.cache.Prepare(key)
	if err != nil {
		return StreamLocation{}, &TranscodeError{Source: src, Key: key, ExitCode: -1, Reason: "prepare output", Err: err}
	}

	job := NewEncodeJob(src, loc, o.chooseSubtitles(ctx, src))
	if err := ctx.Err(); err != nil {
		_ = job.Abandon()
		metrics.TranscoderJobsTotal.WithLabelValues("cancelled").Inc()
		return StreamLocation{}, cancelled(err)
	}
	if err := job.Start(); err != nil {
		return StreamLocation{}, &TranscodeError{Source: src, Key: key, ExitCode: -1, Reason: "job state", Err: err}
	}
	span.SetAttributes(
		attribute.String("transcode.job_id", job.ID),
		attribute.String("transcode.subtitles", job.Subtitle.Kind.String()),
	)

	metrics.TranscoderJobsInProgress.Inc()
	defer metrics.TranscoderJobsInProgress.Dec()

	logging.Info("Transcoding %s [%s] subtitles=%s", src, job.ID, job.Subtitle)
	out := o.runner.Run(ctx, supervisor.Spec{
		Name:       "ffmpeg-hls",
		Binary:     o.ffmpeg,
		Args:       BuildEncodeArgs(job, o.encode),
		MaxRuntime: o.maxRun,
	})
	if err := job.Resolve(out.State); err != nil {
		logging.Warn("Job %s: %v", job.ID, err)
	}
	metrics.TranscoderJobDuration.Observe(out.Duration().Seconds())

	switch out.State {
	case supervisor.Succeeded:
		if err := o.cache.Commit(key, loc); err != nil {
			metrics.TranscoderJobsTotal.WithLabelValues("failed").Inc()
			return StreamLocation{}, &TranscodeError{
				Source: src, Key: key, Reason: "encoder produced no usable manifest", Err: err,
			}
		}
		metrics.TranscoderJobsTotal.WithLabelValues("succeeded").Inc()
		logging.Info("Transcoded %s [%s] in %v", src, job.ID, out.Duration().Round(time.Millisecond))
		return o.streamLocation(loc, Generated, job.ID), nil

	case supervisor.Cancelled:
		metrics.TranscoderJobsTotal.WithLabelValues("cancelled").Inc()
		return StreamLocation{}, fmt.Errorf("%w: job %s", ErrTranscodeCancelled, job.ID)

	default:
		metrics.TranscoderJobsTotal.WithLabelValues("failed").Inc()
		span.SetStatus(codes.Error, out.Reason())
		return StreamLocation{}, &TranscodeError{
			Source:      src,
			Key:         key,
			ExitCode:    out.ExitCode,
			Reason:      out.Reason(),
			Diagnostics: out.Diagnostics,
			Err:         out.Err,
		}
	}
}

// lease takes the cross-process lock for key when the index provides one.
func (o *Orchestrator) lease(ctx context.Context, key string) (func(), error) {
	l, ok := o.cache.(leaser)
	if !ok {
		return func() {}, nil
	}
	lockPath := l.LockPath(key)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, err
	}

	fl := flock.New(lockPath)
	locked, err := fl.TryLockContext(ctx, leaseRetryDelay)
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, fmt.Errorf("lock %s not acquired", lockPath)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			logging.Warn("failed to release lease %s: %v", lockPath, err)
		}
	}, nil
}

// chooseSubtitles prefers a sidecar file, then embedded track 0. Probe
// failures fall back to no subtitles.
func (o *Orchestrator) chooseSubtitles(ctx context.Context, src string) SubtitleSource {
	if o.subtitles == nil {
		return NoSubtitles()
	}
	if sidecar, ok := o.subtitles.FindSidecar(src); ok {
		return ExternalSubtitles(sidecar)
	}
	found, err := o.subtitles.HasTrack(ctx, src, 0)
	if err != nil {
		if ctx.Err() == nil {
			logging.Warn("Subtitle probe failed for %s, continuing without: %v", src, err)
		}
		return NoSubtitles()
	}
	if found {
		return EmbeddedSubtitles(0)
	}
	return NoSubtitles()
}

func (o *Orchestrator) streamLocation(loc Location, result Result, jobID string) StreamLocation {
	return StreamLocation{
		Key:          loc.Key,
		ManifestPath: loc.ManifestPath,
		URL:          path.Join(o.urlPrefix, loc.Key, ManifestName),
		Result:       result,
		JobID:        jobID,
	}
}

// Cleanup cancels every in-flight job and waits for them to return or for
// ctx to end. Later EnsureStream calls fail with ErrTranscodeCancelled.
func (o *Orchestrator) Cleanup(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	for _, key := range o.flights.CancelAll() {
		logging.Info("Cancelling transcode for key %s", key)
	}

	done := make(chan struct{})
	go func() {
		o.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
