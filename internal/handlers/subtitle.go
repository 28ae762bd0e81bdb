package handlers

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gorilla/mux"

	"media-streamer/internal/filesystem"
	"media-streamer/internal/logging"
	"media-streamer/internal/subtitles"
)

// GetSubtitle serves an embedded subtitle track as WebVTT, extracting it on
// first request.
// GET /subtitle/{filename}/{index}.vtt
func (h *Handlers) GetSubtitle(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil || index < 0 {
		http.Error(w, "Invalid subtitle index", http.StatusBadRequest)
		return
	}

	path, ok := h.sourcePath(w, r)
	if !ok {
		return
	}

	caption, err := h.captions.ExtractTrack(r.Context(), path, index)
	switch {
	case err == nil:
	case r.Context().Err() != nil:
		logging.Debug("Subtitle request for %s #%d abandoned: %v", path, index, err)
		return
	case errors.Is(err, subtitles.ErrExtractionCancelled):
		logging.Warn("Subtitle extraction %s #%d cancelled: %v", path, index, err)
		http.Error(w, "Subtitle extraction unavailable", http.StatusServiceUnavailable)
		return
	case errors.Is(err, subtitles.ErrSourceNotFound), errors.Is(err, subtitles.ErrTrackNotFound):
		http.Error(w, "Subtitle not found", http.StatusNotFound)
		return
	default:
		logging.Error("Failed to extract subtitle %d from %s: %v", index, path, err)
		http.Error(w, "Failed to extract subtitle", http.StatusInternalServerError)
		return
	}

	f, err := filesystem.OpenWithRetry(caption.Path, filesystem.DefaultRetryConfig())
	if err != nil {
		logging.Error("Failed to open caption file %s: %v", caption.Path, err)
		http.Error(w, "Failed to read subtitle", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "Failed to read subtitle", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/vtt; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeContent(w, r, filepath.Base(caption.Path), info.ModTime(), f)
}
