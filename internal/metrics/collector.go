package metrics

import (
	"sync"
	"time"

	"media-streamer/internal/logging"
)

// StatsProvider supplies the values sampled by the Collector.
type StatsProvider interface {
	GetStats() (Stats, error)
}

// Stats is a point-in-time view of the library and the HLS cache.
type Stats struct {
	Videos       int
	CacheEntries int
	CacheBytes   int64
}

// Collector periodically samples a StatsProvider into gauges.
type Collector struct {
	provider StatsProvider
	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		provider: provider,
		interval: interval,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the collection loop.
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop ends the collection loop and waits for it to exit. Safe to call more
// than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
	<-c.done
}

func (c *Collector) collectLoop() {
	defer close(c.done)
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.provider == nil {
		return
	}
	stats, err := c.provider.GetStats()
	if err != nil {
		logging.Debug("Metrics collection failed: %v", err)
		return
	}
	LibraryVideos.Set(float64(stats.Videos))
	TranscodeCacheEntries.Set(float64(stats.CacheEntries))
	TranscodeCacheSizeBytes.Set(float64(stats.CacheBytes))
}
