package transcoder

import (
	"github.com/dustin/go-humanize"

	"media-streamer/internal/logging"
	"media-streamer/internal/metrics"
)

// maintainer is implemented by indexes that can enumerate and drop entries.
type maintainer interface {
	Entries() ([]Entry, error)
	Size() (int64, error)
	Clear(busy func(key string) bool) (int64, error)
}

// CacheEntries lists cached renditions.
func (o *Orchestrator) CacheEntries() ([]Entry, error) {
	m, ok := o.cache.(maintainer)
	if !ok {
		return nil, nil
	}
	return m.Entries()
}

// CacheSize returns the bytes held by the rendition cache.
func (o *Orchestrator) CacheSize() (int64, error) {
	m, ok := o.cache.(maintainer)
	if !ok {
		return 0, nil
	}
	return m.Size()
}

// ClearCache removes every cached rendition that no job is writing to,
// in this process or another, and returns the bytes freed.
func (o *Orchestrator) ClearCache() (int64, error) {
	m, ok := o.cache.(maintainer)
	if !ok {
		return 0, nil
	}
	busy := o.inFlight
	if l, ok := o.cache.(leaser); ok {
		busy = func(key string) bool {
			return o.inFlight(key) || leased(l.LockPath(key))
		}
	}
	freed, err := m.Clear(busy)
	if err != nil {
		return freed, err
	}
	logging.Info("Cleared transcode cache: freed %s", humanize.IBytes(uint64(freed)))
	o.RefreshCacheMetrics()
	return freed, nil
}

func (o *Orchestrator) inFlight(key string) bool {
	return o.flights.InFlight(key)
}

// RefreshCacheMetrics updates the cache size and entry gauges.
func (o *Orchestrator) RefreshCacheMetrics() {
	entries, err := o.CacheEntries()
	if err != nil {
		logging.Warn("Failed to list transcode cache: %v", err)
		return
	}
	var size int64
	ready := 0
	for _, e := range entries {
		size += e.Size
		if e.Ready {
			ready++
		}
	}
	metrics.TranscodeCacheEntries.Set(float64(ready))
	metrics.TranscodeCacheSizeBytes.Set(float64(size))
}
