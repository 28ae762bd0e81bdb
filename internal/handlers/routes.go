package handlers

import (
	"net/http"
	"path"
	"slices"
	"strings"

	"github.com/gorilla/mux"

	"media-streamer/internal/mediatypes"
	"media-streamer/internal/transcoder"
)

// RegisterRoutes mounts every application route on r. limit wraps the
// routes that may spawn ffmpeg or ffprobe; nil disables it.
func (h *Handlers) RegisterRoutes(r *mux.Router, limit func(http.Handler) http.Handler) {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}

	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")

	r.HandleFunc("/video/{filename:.+}", h.ServeVideo).Methods("GET").Name("video")
	r.Handle("/stream/{filename:.+}", limit(http.HandlerFunc(h.StreamVideo))).Methods("GET").Name("stream")
	r.Handle("/subtitle/{filename:.+}/{index:[0-9]+}.vtt", limit(http.HandlerFunc(h.GetSubtitle))).Methods("GET").Name("subtitle")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/videos", h.ListVideos).Methods("GET")
	api.Handle("/stream-info/{filename:.+}", limit(http.HandlerFunc(h.GetStreamInfo))).Methods("GET")
	api.HandleFunc("/reindex", h.TriggerReindex).Methods("POST")
	api.HandleFunc("/transcode/cache", h.GetCacheStats).Methods("GET")
	api.HandleFunc("/transcode/clear", h.ClearTranscodeCache).Methods("POST")
	api.HandleFunc("/version", h.GetVersion).Methods("GET")

	r.PathPrefix("/thumbnails/").Handler(staticFiles("/thumbnails/", h.thumbnailDir))
	// The staging playlist is incomplete until the encode commits it.
	r.PathPrefix("/hls/").Handler(staticFiles("/hls/", h.hlsDir, transcoder.StagingManifestName))
}

// staticFiles serves files below dir without directory listings, lock files
// or files named in hidden. Content types come from mediatypes because the
// platform table lacks HLS types.
func staticFiles(prefix, dir string, hidden ...string) http.Handler {
	files := http.StripPrefix(prefix, http.FileServer(http.Dir(dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		base := path.Base(r.URL.Path)
		if strings.HasSuffix(r.URL.Path, "/") || strings.HasSuffix(base, ".lock") ||
			slices.ContainsFunc(hidden, func(name string) bool { return strings.EqualFold(name, base) }) {
			http.NotFound(w, r)
			return
		}

		ext := strings.ToLower(path.Ext(r.URL.Path))
		w.Header().Set("Content-Type", mediatypes.GetMimeType(ext))
		if ext == ".m3u8" {
			w.Header().Set("Cache-Control", "no-cache")
		} else {
			w.Header().Set("Cache-Control", "public, max-age=86400")
		}
		files.ServeHTTP(w, r)
	})
}
