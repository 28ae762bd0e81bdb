package handlers

import (
	"net/http"

	"github.com/dustin/go-humanize"

	"media-streamer/internal/logging"
	"media-streamer/internal/transcoder"
)

// CacheStatsResponse describes the HLS cache.
type CacheStatsResponse struct {
	Entries    []transcoder.Entry `json:"entries"`
	Count      int                `json:"count"`
	TotalBytes int64              `json:"totalBytes"`
	TotalHuman string             `json:"totalHuman"`
}

// GetCacheStats lists the HLS cache entries.
// GET /api/transcode/cache
func (h *Handlers) GetCacheStats(w http.ResponseWriter, _ *http.Request) {
	entries, err := h.transcoder.CacheEntries()
	if err != nil {
		logging.Error("Failed to list transcode cache: %v", err)
		http.Error(w, "Failed to list transcode cache", http.StatusInternalServerError)
		return
	}

	var total int64
	for _, e := range entries {
		total += e.Size
	}
	if entries == nil {
		entries = []transcoder.Entry{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, CacheStatsResponse{
		Entries:    entries,
		Count:      len(entries),
		TotalBytes: total,
		TotalHuman: humanize.IBytes(uint64(total)),
	})
}

// ClearTranscodeCache handles clearing the video transcode cache.
// POST /api/transcode/clear
func (h *Handlers) ClearTranscodeCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	freedBytes, err := h.transcoder.ClearCache()
	if err != nil {
		logging.Error("Failed to clear transcode cache: %v", err)
		http.Error(w, "Failed to clear transcode cache", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]interface{}{
		"success":    true,
		"freedBytes": freedBytes,
	})
}
