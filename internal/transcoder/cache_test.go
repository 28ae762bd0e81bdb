package transcoder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
)

// writeRendition fills a staging manifest the way a finished encoder does.
func writeRendition(t *testing.T, loc Location, segments int, ended bool) {
	t.Helper()
	manifest := "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:10\n#EXT-X-PLAYLIST-TYPE:VOD\n"
	for i := 0; i < segments; i++ {
		name := fmt.Sprintf(SegmentPattern, i)
		if err := os.WriteFile(filepath.Join(loc.Dir, name), []byte("segment"), 0o644); err != nil {
			t.Fatalf("write segment: %v", err)
		}
		manifest += "#EXTINF:10.000000,\n" + name + "\n"
	}
	if ended {
		manifest += endListTag + "\n"
	}
	if err := os.WriteFile(loc.StagingPath, []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func TestDirIndexLifecycle(t *testing.T) {
	t.Parallel()

	idx := NewDirIndex(t.TempDir())
	key := "0123456789abcdef0123456789abcdef"

	if _, ok := idx.Lookup(key); ok {
		t.Fatal("Lookup() hit on empty index")
	}

	loc, err := idx.Prepare(key)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if info, err := os.Stat(loc.Dir); err != nil || !info.IsDir() {
		t.Fatalf("Prepare() did not create %s: %v", loc.Dir, err)
	}

	writeRendition(t, loc, 3, true)
	if _, ok := idx.Lookup(key); ok {
		t.Fatal("Lookup() hit before Commit")
	}

	if err := idx.Commit(key, loc); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	got, ok := idx.Lookup(key)
	if !ok {
		t.Fatal("Lookup() miss after Commit")
	}
	if got.ManifestPath != filepath.Join(idx.Root(), key, ManifestName) {
		t.Errorf("ManifestPath = %q", got.ManifestPath)
	}
	if _, err := os.Stat(loc.StagingPath); !os.IsNotExist(err) {
		t.Errorf("staging manifest still present: %v", err)
	}
}

func TestDirIndexCommitRejectsIncompleteOutput(t *testing.T) {
	t.Parallel()

	t.Run("missing manifest", func(t *testing.T) {
		idx := NewDirIndex(t.TempDir())
		loc, _ := idx.Prepare("k1")
		if err := idx.Commit("k1", loc); !errors.Is(err, ErrManifestMissing) {
			t.Errorf("Commit() err = %v, want ErrManifestMissing", err)
		}
	})

	t.Run("no end tag", func(t *testing.T) {
		idx := NewDirIndex(t.TempDir())
		loc, _ := idx.Prepare("k2")
		writeRendition(t, loc, 2, false)
		if err := idx.Commit("k2", loc); !errors.Is(err, ErrManifestIncomplete) {
			t.Errorf("Commit() err = %v, want ErrManifestIncomplete", err)
		}
		if _, ok := idx.Lookup("k2"); ok {
			t.Error("incomplete rendition reported ready")
		}
	})
}

func TestDirIndexLookupRequiresSegments(t *testing.T) {
	t.Parallel()

	idx := NewDirIndex(t.TempDir())
	loc, _ := idx.Prepare("k")
	writeRendition(t, loc, 2, true)
	if err := idx.Commit("k", loc); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if err := os.Remove(filepath.Join(loc.Dir, fmt.Sprintf(SegmentPattern, 1))); err != nil {
		t.Fatal(err)
	}
	if _, ok := idx.Lookup("k"); ok {
		t.Error("Lookup() hit with a missing segment")
	}
}

func TestDirIndexPrepareDropsStaleStaging(t *testing.T) {
	t.Parallel()

	idx := NewDirIndex(t.TempDir())
	loc, _ := idx.Prepare("k")
	writeRendition(t, loc, 1, true)

	if _, err := idx.Prepare("k"); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if _, err := os.Stat(loc.StagingPath); !os.IsNotExist(err) {
		t.Errorf("stale staging manifest survived Prepare: %v", err)
	}
}

func TestDirIndexInvalidKey(t *testing.T) {
	t.Parallel()

	idx := NewDirIndex(t.TempDir())
	for _, key := range []string{"", ".", "..", "../escape", `a\b`} {
		if _, err := idx.Prepare(key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Prepare(%q) err = %v, want ErrInvalidKey", key, err)
		}
		if _, ok := idx.Lookup(key); ok {
			t.Errorf("Lookup(%q) hit", key)
		}
	}
}

func TestCheckManifestRejectsForeignSegments(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := filepath.Join(dir, ManifestName)
	for _, uri := range []string{"../other/seg.ts", "/etc/passwd", "http://example.com/seg.ts"} {
		content := "#EXTM3U\n#EXTINF:10,\n" + uri + "\n#EXT-X-ENDLIST\n"
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := checkManifest(p); !errors.Is(err, ErrManifestIncomplete) {
			t.Errorf("checkManifest with %q: err = %v", uri, err)
		}
	}
}

func TestDirIndexEntriesAndClear(t *testing.T) {
	t.Parallel()

	idx := NewDirIndex(t.TempDir())

	ready, _ := idx.Prepare("ready")
	writeRendition(t, ready, 2, true)
	if err := idx.Commit("ready", ready); err != nil {
		t.Fatal(err)
	}
	partial, _ := idx.Prepare("partial")
	writeRendition(t, partial, 1, false)
	busy, _ := idx.Prepare("busy")
	writeRendition(t, busy, 1, false)
	if err := os.WriteFile(idx.LockPath("busy"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := idx.Entries()
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Entries() returned %d entries, want 3", len(entries))
	}
	byKey := map[string]Entry{}
	for _, e := range entries {
		byKey[e.Key] = e
	}
	if e := byKey["ready"]; !e.Ready || e.Segments != 2 || e.Size == 0 {
		t.Errorf("ready entry = %+v", e)
	}
	if e := byKey["partial"]; e.Ready {
		t.Errorf("partial entry reported ready: %+v", e)
	}

	total, err := idx.Size()
	if err != nil || total == 0 {
		t.Fatalf("Size() = %d, %v", total, err)
	}

	freed, err := idx.Clear(func(key string) bool { return key == "busy" })
	if err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if freed <= 0 {
		t.Errorf("Clear() freed %d bytes", freed)
	}
	if _, err := os.Stat(busy.Dir); err != nil {
		t.Errorf("busy entry removed: %v", err)
	}
	if _, err := os.Stat(ready.Dir); !os.IsNotExist(err) {
		t.Errorf("ready entry not removed: %v", err)
	}
	if _, err := os.Stat(idx.LockPath("busy")); err != nil {
		t.Errorf("lock file removed: %v", err)
	}
}

func TestDirIndexMissingRoot(t *testing.T) {
	t.Parallel()

	idx := NewDirIndex(filepath.Join(t.TempDir(), "absent"))
	if entries, err := idx.Entries(); err != nil || len(entries) != 0 {
		t.Errorf("Entries() = %v, %v", entries, err)
	}
	if size, err := idx.Size(); err != nil || size != 0 {
		t.Errorf("Size() = %d, %v", size, err)
	}
	if freed, err := idx.Clear(nil); err != nil || freed != 0 {
		t.Errorf("Clear() = %d, %v", freed, err)
	}
}

func TestDirIndexLeased(t *testing.T) {
	t.Parallel()

	idx := NewDirIndex(t.TempDir())
	if idx.Leased("none") {
		t.Error("key without a lock file reported leased")
	}

	if err := os.WriteFile(idx.LockPath("idle"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if idx.Leased("idle") {
		t.Error("unlocked lease reported held")
	}

	held := flock.New(idx.LockPath("held"))
	if err := held.Lock(); err != nil {
		t.Fatal(err)
	}
	defer held.Unlock()
	if !idx.Leased("held") {
		t.Error("held lease not reported")
	}
}
