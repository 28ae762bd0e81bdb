package indexer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"media-streamer/internal/logging"
	"media-streamer/internal/media"
	"media-streamer/internal/metrics"
)

const (
	defaultIndexInterval = 30 * time.Minute
	defaultDebounce      = 2 * time.Second
)

// Source enumerates and watches the library.
type Source interface {
	Scan(ctx context.Context) ([]media.Video, error)
	Watch(ctx context.Context, onChange func(fsnotify.Event)) error
}

// Thumbnailer produces a thumbnail file name for a video.
type Thumbnailer interface {
	Generate(ctx context.Context, videoPath string) (string, error)
}

// Config tunes an Indexer.
type Config struct {
	IndexInterval time.Duration
	Debounce      time.Duration
	// ThumbnailWorkers bounds concurrent thumbnail generation.
	ThumbnailWorkers int
	// ThumbnailURLPrefix is prepended to thumbnail file names in records.
	ThumbnailURLPrefix string
	// Watch enables fsnotify-driven rescans.
	Watch bool
}

// Indexer manages the library snapshot.
type Indexer struct {
	source Source
	thumbs Thumbnailer
	config Config

	snapshotMu sync.RWMutex
	videos     []media.Video

	indexMu              sync.Mutex
	isIndexing           bool
	lastIndexTime        time.Time
	lastDuration         time.Duration
	initialIndexComplete bool
	initialIndexError    error
	startTime            time.Time

	trigger chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	onIndexComplete func([]media.Video)
}

// New creates a new Indexer instance. thumbs may be nil.
func New(source Source, thumbs Thumbnailer, config Config) *Indexer {
	if config.IndexInterval <= 0 {
		config.IndexInterval = defaultIndexInterval
	}
	if config.Debounce <= 0 {
		config.Debounce = defaultDebounce
	}
	if config.ThumbnailWorkers <= 0 {
		config.ThumbnailWorkers = 1
	}
	if config.ThumbnailURLPrefix == "" {
		config.ThumbnailURLPrefix = "/thumbnails/"
	}
	return &Indexer{
		source:    source,
		thumbs:    thumbs,
		config:    config,
		startTime: time.Now(),
		trigger:   make(chan struct{}, 1),
	}
}

// SetOnIndexComplete sets a callback invoked with each new snapshot.
func (idx *Indexer) SetOnIndexComplete(callback func([]media.Video)) {
	idx.onIndexComplete = callback
}

// Start runs the initial index in the background and begins periodic,
// triggered and (optionally) watcher-driven re-indexing.
func (idx *Indexer) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	idx.cancel = cancel

	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()
		logging.Info("Starting initial index in background...")
		if err := idx.Index(ctx); err != nil {
			logging.Error("Initial index error: %v", err)
			idx.indexMu.Lock()
			idx.initialIndexError = err
			idx.indexMu.Unlock()
		}
		idx.run(ctx)
	}()

	if idx.config.Watch {
		idx.wg.Add(1)
		go func() {
			defer idx.wg.Done()
			idx.watch(ctx)
		}()
	}
	return nil
}

// Stop ends background indexing and waits for it to finish.
func (idx *Indexer) Stop() {
	if idx.cancel == nil {
		return
	}
	idx.cancel()
	idx.wg.Wait()
}

func (idx *Indexer) run(ctx context.Context) {
	ticker := time.NewTicker(idx.config.IndexInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-idx.trigger:
		case <-ctx.Done():
			logging.Info("Indexer stopped")
			return
		}
		if err := idx.Index(ctx); err != nil && ctx.Err() == nil {
			logging.Error("Re-index failed: %v", err)
		}
	}
}

// watch coalesces bursts of filesystem events into one rescan.
func (idx *Indexer) watch(ctx context.Context) {
	changes := make(chan struct{}, 1)
	go func() {
		err := idx.source.Watch(ctx, func(event fsnotify.Event) {
			logging.Debug("Library change: %s", event)
			select {
			case changes <- struct{}{}:
			default:
			}
		})
		if err != nil {
			logging.Error("Library watcher stopped: %v", err)
		}
	}()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-changes:
			if timer == nil {
				timer = time.NewTimer(idx.config.Debounce)
			} else {
				timer.Reset(idx.config.Debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			logging.Info("File changes detected, triggering re-index")
			idx.TriggerIndex()
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// TriggerIndex requests a re-index. It reports false when one is already
// pending.
func (idx *Indexer) TriggerIndex() bool {
	select {
	case idx.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Index scans the library and replaces the snapshot. A concurrent call
// returns immediately.
func (idx *Indexer) Index(ctx context.Context) error {
	if !idx.tryStartIndexing() {
		logging.Info("Index already in progress, skipping...")
		return nil
	}
	defer idx.finishIndexing()

	metrics.LibraryScanRunning.Set(1)
	defer metrics.LibraryScanRunning.Set(0)

	start := time.Now()
	videos, err := idx.source.Scan(ctx)
	if err != nil {
		metrics.LibraryScanErrors.Inc()
		return fmt.Errorf("library scan failed: %w", err)
	}
	idx.attachThumbnails(ctx, videos)

	idx.snapshotMu.Lock()
	idx.videos = videos
	idx.snapshotMu.Unlock()

	duration := time.Since(start)
	metrics.LibraryScansTotal.Inc()
	metrics.LibraryScanDuration.Observe(duration.Seconds())
	metrics.LibraryVideos.Set(float64(len(videos)))

	idx.indexMu.Lock()
	idx.lastIndexTime = time.Now()
	idx.lastDuration = duration
	idx.initialIndexComplete = true
	idx.initialIndexError = nil
	idx.indexMu.Unlock()

	logging.Info("Indexing complete: %d videos in %v", len(videos), duration.Round(time.Millisecond))
	if idx.onIndexComplete != nil {
		idx.onIndexComplete(videos)
	}
	return nil
}

func (idx *Indexer) tryStartIndexing() bool {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()
	if idx.isIndexing {
		return false
	}
	idx.isIndexing = true
	return true
}

func (idx *Indexer) finishIndexing() {
	idx.indexMu.Lock()
	idx.isIndexing = false
	idx.indexMu.Unlock()
}

// Videos returns a copy of the current snapshot.
func (idx *Indexer) Videos() []media.Video {
	idx.snapshotMu.RLock()
	defer idx.snapshotMu.RUnlock()
	out := make([]media.Video, len(idx.videos))
	copy(out, idx.videos)
	return out
}

// Count returns the number of videos in the snapshot.
func (idx *Indexer) Count() int {
	idx.snapshotMu.RLock()
	defer idx.snapshotMu.RUnlock()
	return len(idx.videos)
}

// IsIndexing reports whether a scan is running.
func (idx *Indexer) IsIndexing() bool {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()
	return idx.isIndexing
}

// IsReady returns true once the first scan has completed.
func (idx *Indexer) IsReady() bool {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()
	return idx.initialIndexComplete
}

// HealthStatus contains health check information.
type HealthStatus struct {
	Ready             bool      `json:"ready"`
	Indexing          bool      `json:"indexing"`
	StartTime         time.Time `json:"startTime"`
	Uptime            string    `json:"uptime"`
	LastIndexed       time.Time `json:"lastIndexed,omitempty"`
	LastDuration      string    `json:"lastDuration,omitempty"`
	InitialIndexError string    `json:"initialIndexError,omitempty"`
	Videos            int       `json:"videos"`
}

// GetHealthStatus returns detailed health information.
func (idx *Indexer) GetHealthStatus() HealthStatus {
	count := idx.Count()

	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()

	status := HealthStatus{
		Ready:       idx.initialIndexComplete,
		Indexing:    idx.isIndexing,
		StartTime:   idx.startTime,
		Uptime:      time.Since(idx.startTime).Round(time.Second).String(),
		LastIndexed: idx.lastIndexTime,
		Videos:      count,
	}
	if idx.lastDuration > 0 {
		status.LastDuration = idx.lastDuration.Round(time.Millisecond).String()
	}
	if idx.initialIndexError != nil {
		status.InitialIndexError = idx.initialIndexError.Error()
	}
	return status
}
