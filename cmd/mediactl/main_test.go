package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/gofrs/flock"

	"media-streamer/internal/supervisor"
	"media-streamer/internal/transcoder"
)

const probeJSON = `{
  "streams": [
    {"index": 0, "codec_name": "hevc", "codec_type": "video", "width": 1920, "height": 1080},
    {"index": 1, "codec_name": "aac", "codec_type": "audio"},
    {"index": 2, "codec_name": "subrip", "codec_type": "subtitle", "tags": {"language": "eng"}, "disposition": {"default": 1}}
  ],
  "format": {"duration": "61.2", "bit_rate": "4000000"}
}`

// scriptedRunner answers ffprobe with probeJSON and makes ffmpeg HLS runs
// write a finished rendition.
type scriptedRunner struct {
	mu    sync.Mutex
	names []string
}

func (r *scriptedRunner) Run(_ context.Context, spec supervisor.Spec) supervisor.Outcome {
	r.mu.Lock()
	r.names = append(r.names, spec.Name)
	r.mu.Unlock()

	switch spec.Name {
	case "ffprobe":
		if spec.Stdout != nil {
			_, _ = io.WriteString(spec.Stdout, probeJSON)
		}
	case "ffmpeg-hls":
		args := spec.Args
		staging := args[len(args)-1]
		i := slices.Index(args, "-hls_segment_filename")
		seg := fmt.Sprintf(args[i+1], 0)
		_ = os.WriteFile(seg, []byte("ts"), 0o644)
		manifest := "#EXTM3U\n#EXTINF:10.0,\n" + filepath.Base(seg) + "\n#EXT-X-ENDLIST\n"
		_ = os.WriteFile(staging, []byte(manifest), 0o644)
	}
	return supervisor.Outcome{State: supervisor.Succeeded}
}

func (r *scriptedRunner) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, got := range r.names {
		if got == name {
			n++
		}
	}
	return n
}

type cliEnv struct {
	mediaDir string
	cacheDir string
	runner   *scriptedRunner
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	base := t.TempDir()
	env := &cliEnv{
		mediaDir: filepath.Join(base, "videos"),
		cacheDir: filepath.Join(base, "cache"),
		runner:   &scriptedRunner{},
	}
	if err := os.MkdirAll(env.mediaDir, 0o755); err != nil {
		t.Fatal(err)
	}
	return env
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	ctx := newCommandContext()
	ctx.runner = e.runner
	cmd := buildRootCommand(ctx)

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--media-dir", e.mediaDir, "--cache-dir", e.cacheDir}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *cliEnv) hlsIndex() *transcoder.DirIndex {
	return transcoder.NewDirIndex(filepath.Join(e.cacheDir, "hls"))
}

func writeRendition(t *testing.T, idx *transcoder.DirIndex, key string, ended bool) {
	t.Helper()
	loc, err := idx.Prepare(key)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(loc.Dir, "seg-00000.ts"), []byte("segment"), 0o644); err != nil {
		t.Fatal(err)
	}
	manifest := "#EXTM3U\n#EXTINF:10.0,\nseg-00000.ts\n"
	if ended {
		manifest += "#EXT-X-ENDLIST\n"
	}
	if err := os.WriteFile(loc.StagingPath, []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	if ended {
		if err := idx.Commit(key, loc); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCacheListEmpty(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "cache", "list")
	if err != nil {
		t.Fatalf("cache list: %v", err)
	}
	if !strings.Contains(out, "No cached renditions") {
		t.Errorf("output = %q", out)
	}

	out, err = env.run(t, "cache", "list", "--json")
	if err != nil {
		t.Fatalf("cache list --json: %v", err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Errorf("json output = %q, want []", out)
	}
}

func TestCacheListAndClear(t *testing.T) {
	env := newCLIEnv(t)
	idx := env.hlsIndex()
	writeRendition(t, idx, "done", true)
	writeRendition(t, idx, "broken", false)
	writeRendition(t, idx, "running", false)

	lease := flock.New(idx.LockPath("running"))
	if err := lease.Lock(); err != nil {
		t.Fatal(err)
	}
	defer lease.Unlock()

	out, err := env.run(t, "cache", "list")
	if err != nil {
		t.Fatalf("cache list: %v", err)
	}
	for _, want := range []string{"done", "ready", "broken", "partial", "running", "encoding", "3 renditions"} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(out, "+--") {
		t.Errorf("expected an ASCII table when not on a terminal:\n%s", out)
	}

	out, err = env.run(t, "cache", "list", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var entries []transcoder.Entry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(entries) != 3 {
		t.Errorf("entries = %d, want 3", len(entries))
	}

	out, err = env.run(t, "cache", "clear")
	if err != nil {
		t.Fatalf("cache clear: %v", err)
	}
	if !strings.HasPrefix(out, "Freed ") {
		t.Errorf("clear output = %q", out)
	}
	if _, ok := idx.Lookup("done"); ok {
		t.Error("ready rendition survived clear")
	}
	if _, err := os.Stat(filepath.Join(idx.Root(), "running")); err != nil {
		t.Errorf("leased rendition removed: %v", err)
	}
}

func TestPrewarm(t *testing.T) {
	env := newCLIEnv(t)
	if err := os.WriteFile(filepath.Join(env.mediaDir, "clip.mkv"), []byte("matroska"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(env.mediaDir, "clip.srt"), []byte("1\n00:00:01,000 --> 00:00:02,000\nhi\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := env.run(t, "prewarm", "clip.mkv")
	if err != nil {
		t.Fatalf("prewarm: %v\n%s", err, out)
	}
	if !strings.Contains(out, "clip.mkv: generated") {
		t.Errorf("first prewarm output = %q", out)
	}

	out, err = env.run(t, "prewarm", "clip.mkv")
	if err != nil {
		t.Fatalf("second prewarm: %v", err)
	}
	if !strings.Contains(out, "clip.mkv: cache_hit") {
		t.Errorf("second prewarm output = %q", out)
	}
	if n := env.runner.count("ffmpeg-hls"); n != 1 {
		t.Errorf("encodes = %d, want 1", n)
	}
	if n := env.runner.count("ffprobe"); n != 0 {
		t.Errorf("ffprobe runs = %d, sidecar should skip probing", n)
	}
}

func TestPrewarmReportsFailures(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "prewarm", "missing.mkv", "../outside.mkv")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "2 of 2 videos failed") {
		t.Errorf("error = %v", err)
	}
	if !strings.Contains(out, "missing.mkv:") || !strings.Contains(out, "../outside.mkv:") {
		t.Errorf("output = %q", out)
	}
}

func TestProbe(t *testing.T) {
	env := newCLIEnv(t)
	if err := os.WriteFile(filepath.Join(env.mediaDir, "movie.mkv"), []byte("matroska"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := env.run(t, "probe", "movie.mkv")
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	for _, want := range []string{"hevc 1920x1080", "Audio:     aac", "Duration:  1m1s", "Playback:  transcode", "not cached", "subrip", "eng"} {
		if !strings.Contains(out, want) {
			t.Errorf("probe output missing %q:\n%s", want, out)
		}
	}

	out, err = env.run(t, "probe", "movie.mkv", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var report probeReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Info == nil || len(report.Info.Subtitles) != 1 || !report.Info.Subtitles[0].Default {
		t.Errorf("report = %+v", report)
	}
}

func TestProbeMissingSource(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "probe", "absent.mkv")
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestVersion(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "mediactl dev") {
		t.Errorf("version output = %q", out)
	}
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	got := renderTable(&buf,
		[]string{"Key", "Size"},
		[][]string{{"abc", "1 KiB"}, {"short"}},
		[]columnAlignment{alignLeft, alignRight},
	)
	if !strings.Contains(got, "KEY") || !strings.Contains(got, "abc") || !strings.Contains(got, "short") {
		t.Errorf("table = %q", got)
	}
	if renderTable(&buf, nil, nil, nil) != "" {
		t.Error("table without headers should be empty")
	}
}
