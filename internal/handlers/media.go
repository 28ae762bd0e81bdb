package handlers

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/gorilla/mux"

	"media-streamer/internal/logging"
	"media-streamer/internal/media"
	"media-streamer/internal/streaming"
	"media-streamer/internal/transcoder"
)

// sourcePath resolves the {filename} route variable inside the media
// directory. On failure the response has been written.
func (h *Handlers) sourcePath(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := mux.Vars(r)["filename"]
	if name == "" {
		http.Error(w, "Filename is required", http.StatusBadRequest)
		return "", false
	}

	path, err := media.ResolvePath(h.mediaDir, name)
	if err != nil {
		if errors.Is(err, media.ErrOutsideLibrary) {
			logging.Warn("Rejected path outside media directory: %q", name)
			http.Error(w, "Forbidden", http.StatusForbidden)
		} else {
			http.Error(w, "Invalid path", http.StatusBadRequest)
		}
		return "", false
	}
	return path, true
}

// ServeVideo answers a Range request with a 206 byte window of the file.
// GET /video/{filename}
func (h *Handlers) ServeVideo(w http.ResponseWriter, r *http.Request) {
	path, ok := h.sourcePath(w, r)
	if !ok {
		return
	}

	_, err := h.bytes.Serve(w, r, path)
	if err == nil {
		return
	}

	var abort *streaming.AbortError
	switch {
	case errors.As(err, &abort):
		// Headers are gone; nothing more can be said to the client.
		if errors.Is(err, streaming.ErrClientGone) {
			logging.Debug("Video client left: %v", err)
		} else {
			logging.Warn("Video stream aborted for %s: %v", path, err)
		}
	case errors.Is(err, streaming.ErrRangeRequired):
		http.Error(w, "Requires Range header", http.StatusBadRequest)
	case errors.Is(err, streaming.ErrRangeNotSatisfiable):
		http.Error(w, "Range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
	case errors.Is(err, fs.ErrNotExist):
		http.Error(w, "Video not found", http.StatusNotFound)
	default:
		logging.Error("Failed to serve video %s: %v", path, err)
		http.Error(w, "Failed to read video", http.StatusInternalServerError)
	}
}

// StreamVideo makes sure an HLS rendition exists and redirects to its
// playlist. A request whose client disconnects gets no response; a
// transcode cancelled under a connected client (shutdown) is a 503.
// GET /stream/{filename}
func (h *Handlers) StreamVideo(w http.ResponseWriter, r *http.Request) {
	path, ok := h.sourcePath(w, r)
	if !ok {
		return
	}

	loc, err := h.transcoder.EnsureStream(r.Context(), path)
	switch {
	case err == nil:
		logging.Debug("Stream ready for %s (%s): %s", path, loc.Result, loc.URL)
		http.Redirect(w, r, loc.URL, http.StatusFound)
	case r.Context().Err() != nil:
		logging.Debug("Stream request for %s abandoned: %v", path, err)
	case errors.Is(err, transcoder.ErrTranscodeCancelled):
		logging.Warn("Transcode of %s cancelled: %v", path, err)
		http.Error(w, "Transcoding unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, transcoder.ErrSourceNotFound):
		http.Error(w, "Video not found", http.StatusNotFound)
	default:
		logging.Error("Failed to prepare stream for %s: %v", path, err)
		http.Error(w, "Failed to transcode video", http.StatusInternalServerError)
	}
}

// GetStreamInfo returns the probe summary of a video.
// GET /api/stream-info/{filename}
func (h *Handlers) GetStreamInfo(w http.ResponseWriter, r *http.Request) {
	path, ok := h.sourcePath(w, r)
	if !ok {
		return
	}

	info, err := h.transcoder.VideoInfo(r.Context(), path)
	if err != nil {
		if errors.Is(err, transcoder.ErrSourceNotFound) {
			http.Error(w, "Video not found", http.StatusNotFound)
			return
		}
		logging.Error("Failed to probe %s: %v", path, err)
		http.Error(w, "Failed to get video info", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, info)
}

// ListVideos returns the current library snapshot.
// GET /api/videos
func (h *Handlers) ListVideos(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, h.library.Videos())
}

// TriggerReindex requests a library rescan.
// POST /api/reindex
func (h *Handlers) TriggerReindex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.library.IsIndexing() {
		writeJSON(w, map[string]string{
			"status":  "already_running",
			"message": "Indexing is already in progress",
		})
		return
	}

	if !h.library.TriggerIndex() {
		writeJSON(w, map[string]string{
			"status":  "pending",
			"message": "Re-indexing is already queued",
		})
		return
	}

	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]string{
		"status":  "started",
		"message": "Re-indexing started",
	})
}
