package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"

	"media-streamer/internal/subtitles"
)

type recordingCaptions struct {
	source string
	index  int
}

func (c *recordingCaptions) ExtractTrack(_ context.Context, src string, index int) (subtitles.CaptionLocation, error) {
	c.source, c.index = src, index
	return subtitles.CaptionLocation{}, subtitles.ErrTrackNotFound
}

func newRouter(t *testing.T, f *fixture, limit func(http.Handler) http.Handler) *mux.Router {
	t.Helper()
	r := mux.NewRouter()
	f.h.RegisterRoutes(r, limit)
	return r
}

func TestSubtitleRouteVariables(t *testing.T) {
	f := newFixture(t)
	rec := &recordingCaptions{}
	f.h.captions = rec
	r := newRouter(t, f, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/subtitle/shows/s01/e02.mkv/2.vtt", http.NoBody))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if want := filepath.Join(f.mediaDir, "shows", "s01", "e02.mkv"); rec.source != want {
		t.Errorf("source = %q, want %q", rec.source, want)
	}
	if rec.index != 2 {
		t.Errorf("index = %d, want 2", rec.index)
	}
}

func TestLimitWrapsSpawningRoutesOnly(t *testing.T) {
	f := newFixture(t)
	f.writeVideo(t, "clip.mp4", 10)
	limited := 0
	limit := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			limited++
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
	r := newRouter(t, f, limit)

	for _, target := range []string{"/stream/clip.mp4", "/subtitle/clip.mp4/0.vtt", "/api/stream-info/clip.mp4"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", target, http.NoBody))
		if w.Code != http.StatusTooManyRequests {
			t.Errorf("%s: status = %d, want 429", target, w.Code)
		}
	}

	req := httptest.NewRequest("GET", "/video/clip.mp4", http.NoBody)
	req.Header.Set("Range", "bytes=0-")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusPartialContent {
		t.Errorf("/video status = %d, want 206", w.Code)
	}
	if limited != 3 {
		t.Errorf("limited = %d, want 3", limited)
	}
}

func TestStaticHLSFiles(t *testing.T) {
	f := newFixture(t)
	dir := filepath.Join(f.cacheDir, "hls", "abc")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"index.m3u8":         "#EXTM3U\n#EXT-X-ENDLIST\n",
		"index.partial.m3u8": "#EXTM3U\n#EXTINF:10.0,\nsegment000.ts\n",
		"segment000.ts":      "ts",
		"transcode.lock":     "",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	r := newRouter(t, f, nil)

	tests := []struct {
		target      string
		wantStatus  int
		wantType    string
		wantCaching string
	}{
		{"/hls/abc/index.m3u8", http.StatusOK, "application/vnd.apple.mpegurl", "no-cache"},
		{"/hls/abc/segment000.ts", http.StatusOK, "video/mp2t", "public, max-age=86400"},
		{"/hls/abc/", http.StatusNotFound, "", ""},
		{"/hls/abc/transcode.lock", http.StatusNotFound, "", ""},
		{"/hls/abc/index.partial.m3u8", http.StatusNotFound, "", ""},
		{"/hls/abc/INDEX.partial.m3u8", http.StatusNotFound, "", ""},
		{"/hls/abc/missing.ts", http.StatusNotFound, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest("GET", tt.target, http.NoBody))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantType != "" && w.Header().Get("Content-Type") != tt.wantType {
				t.Errorf("Content-Type = %q, want %q", w.Header().Get("Content-Type"), tt.wantType)
			}
			if tt.wantCaching != "" && w.Header().Get("Cache-Control") != tt.wantCaching {
				t.Errorf("Cache-Control = %q, want %q", w.Header().Get("Cache-Control"), tt.wantCaching)
			}
		})
	}
}

func TestMethodRestrictions(t *testing.T) {
	f := newFixture(t)
	r := newRouter(t, f, nil)

	for _, target := range []string{"/api/reindex", "/api/transcode/clear"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", target, http.NoBody))
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("GET %s = %d, want 405", target, w.Code)
		}
	}
}
