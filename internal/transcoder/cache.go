package transcoder

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"media-streamer/internal/logging"
)

const (
	// ManifestName is the committed playlist inside an output directory.
	ManifestName = "index.m3u8"
	// StagingManifestName is the playlist the encoder writes to.
	StagingManifestName = "index.partial.m3u8"
	// SegmentPattern is the ffmpeg segment file template.
	SegmentPattern = "seg-%05d.ts"

	lockSuffix = ".lock"
	endListTag = "#EXT-X-ENDLIST"
)

// Location addresses the output of one cache entry.
type Location struct {
	Key          string
	Dir          string
	ManifestPath string
	StagingPath  string
}

// SegmentTemplate returns the segment filename template for ffmpeg.
func (l Location) SegmentTemplate() string {
	return filepath.Join(l.Dir, SegmentPattern)
}

// CacheIndex decides whether a rendition already exists and makes new ones
// visible.
type CacheIndex interface {
	// Lookup reports a complete entry for key.
	Lookup(key string) (Location, bool)
	// Prepare creates the output directory for a new job.
	Prepare(key string) (Location, error)
	// Commit publishes the staging manifest written by a successful job.
	Commit(key string, loc Location) error
}

// DirIndex is a CacheIndex backed by one directory per key. The files on
// disk are the only state.
type DirIndex struct {
	root string
}

// NewDirIndex returns an index rooted at root.
func NewDirIndex(root string) *DirIndex {
	return &DirIndex{root: root}
}

// Root returns the directory holding all entries.
func (d *DirIndex) Root() string {
	return d.root
}

// LockPath returns the lease file guarding key.
func (d *DirIndex) LockPath(key string) string {
	return filepath.Join(d.root, key+lockSuffix)
}

// Leased reports whether some process, this one included, holds the lease
// for key.
func (d *DirIndex) Leased(key string) bool {
	return leased(d.LockPath(key))
}

func leased(lockPath string) bool {
	if _, err := os.Stat(lockPath); err != nil {
		return false
	}
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil || !locked {
		return true
	}
	if err := fl.Unlock(); err != nil {
		logging.Warn("failed to release probe lock %s: %v", lockPath, err)
	}
	return false
}

func (d *DirIndex) location(key string) Location {
	dir := filepath.Join(d.root, key)
	return Location{
		Key:          key,
		Dir:          dir,
		ManifestPath: filepath.Join(dir, ManifestName),
		StagingPath:  filepath.Join(dir, StagingManifestName),
	}
}

func validKey(key string) bool {
	return key != "" && key != "." && key != ".." && !strings.ContainsAny(key, `/\`)
}

// Lookup implements CacheIndex.
func (d *DirIndex) Lookup(key string) (Location, bool) {
	if !validKey(key) {
		return Location{}, false
	}
	loc := d.location(key)
	if _, err := checkManifest(loc.ManifestPath); err != nil {
		if !os.IsNotExist(err) {
			logging.Debug("Cache entry %s not usable: %v", key, err)
		}
		return Location{}, false
	}
	return loc, true
}

// Prepare implements CacheIndex. A leftover staging manifest from an
// abandoned job is removed so it can never be committed.
func (d *DirIndex) Prepare(key string) (Location, error) {
	if !validKey(key) {
		return Location{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	loc := d.location(key)
	if err := os.MkdirAll(loc.Dir, 0o755); err != nil {
		return Location{}, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.Remove(loc.StagingPath); err != nil && !os.IsNotExist(err) {
		return Location{}, fmt.Errorf("failed to remove stale staging manifest: %w", err)
	}
	return loc, nil
}

// Commit implements CacheIndex. The staging manifest must be complete; it is
// renamed over the final manifest atomically.
func (d *DirIndex) Commit(key string, loc Location) error {
	if !validKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if _, err := checkManifest(loc.StagingPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrManifestMissing, loc.StagingPath)
		}
		return err
	}
	if err := os.Rename(loc.StagingPath, loc.ManifestPath); err != nil {
		return fmt.Errorf("failed to publish manifest: %w", err)
	}
	return nil
}

// checkManifest verifies that the playlist at path is finished and that
// every segment it references exists. It returns the segment count.
func checkManifest(manifestPath string) (int, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return 0, err
	}

	dir := filepath.Dir(manifestPath)
	segments := 0
	ended := false
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == endListTag:
			ended = true
		case strings.HasPrefix(line, "#"):
		default:
			if !localSegment(line) {
				return 0, fmt.Errorf("%w: unexpected segment %q", ErrManifestIncomplete, line)
			}
			if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(line))); err != nil {
				return 0, fmt.Errorf("%w: segment %s: %v", ErrManifestIncomplete, line, err)
			}
			segments++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read manifest: %w", err)
	}
	if !ended {
		return 0, fmt.Errorf("%w: no %s", ErrManifestIncomplete, endListTag)
	}
	return segments, nil
}

func localSegment(uri string) bool {
	if strings.Contains(uri, "://") || path.IsAbs(uri) {
		return false
	}
	clean := path.Clean(uri)
	return clean != ".." && !strings.HasPrefix(clean, "../")
}

// Entry describes one output directory.
type Entry struct {
	Key      string    `json:"key"`
	Ready    bool      `json:"ready"`
	Segments int       `json:"segments"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Entries lists every output directory, newest first. Directories without a
// complete manifest are reported with Ready false.
func (d *DirIndex) Entries() ([]Entry, error) {
	dirEntries, err := os.ReadDir(d.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read transcode cache directory: %w", err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}
		dir := filepath.Join(d.root, de.Name())
		entry := Entry{Key: de.Name()}
		if info, err := de.Info(); err == nil {
			entry.Modified = info.ModTime()
		}
		entry.Size, _ = dirSize(dir)
		if n, err := checkManifest(filepath.Join(dir, ManifestName)); err == nil {
			entry.Ready = true
			entry.Segments = n
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Modified.After(entries[j].Modified)
	})
	return entries, nil
}

// Size returns the total bytes held by the index.
func (d *DirIndex) Size() (int64, error) {
	size, err := dirSize(d.root)
	if os.IsNotExist(err) {
		return 0, nil
	}
	return size, err
}

// Clear removes every output directory for which busy reports false and
// returns the bytes freed. Lease files are left in place so a running job
// keeps its lock. A nil busy clears everything.
func (d *DirIndex) Clear(busy func(key string) bool) (int64, error) {
	dirEntries, err := os.ReadDir(d.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read transcode cache directory: %w", err)
	}

	var freed int64
	for _, de := range dirEntries {
		p := filepath.Join(d.root, de.Name())
		if !de.IsDir() {
			if strings.HasSuffix(de.Name(), lockSuffix) {
				continue
			}
			info, err := de.Info()
			if err != nil {
				logging.Warn("failed to get info for %s: %v", p, err)
				continue
			}
			if err := os.Remove(p); err != nil {
				logging.Warn("failed to remove file %s: %v", p, err)
				continue
			}
			freed += info.Size()
			continue
		}

		if busy != nil && busy(de.Name()) {
			logging.Debug("Keeping %s: job in progress", de.Name())
			continue
		}
		size, _ := dirSize(p)
		if err := os.RemoveAll(p); err != nil {
			logging.Warn("failed to remove directory %s: %v", p, err)
			continue
		}
		freed += size
	}
	return freed, nil
}

func dirSize(root string) (int64, error) {
	var size int64
	err := filepath.WalkDir(root, func(_ string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if de.IsDir() {
			return nil
		}
		info, err := de.Info()
		if err != nil {
			return nil
		}
		size += info.Size()
		return nil
	})
	return size, err
}
