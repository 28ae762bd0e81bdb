package media

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"

	"media-streamer/internal/logging"
	"media-streamer/internal/mediatypes"
	"media-streamer/internal/metrics"
)

// Scanner lists the videos under a media directory.
type Scanner struct {
	mediaDir string
}

// NewScanner creates a new Scanner instance.
func NewScanner(mediaDir string) *Scanner {
	return &Scanner{mediaDir: mediaDir}
}

// MediaDir returns the scanned root.
func (s *Scanner) MediaDir() string {
	return s.mediaDir
}

// Resolve maps a slash-separated path relative to the media directory onto
// the filesystem, rejecting anything that escapes the root.
func (s *Scanner) Resolve(relativePath string) (string, error) {
	return ResolvePath(s.mediaDir, relativePath)
}

// ResolvePath joins relativePath onto root, rejecting escapes.
func ResolvePath(root, relativePath string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	rel := filepath.FromSlash(strings.TrimPrefix(relativePath, "/"))
	full := filepath.Join(absRoot, rel)
	if full != absRoot && !strings.HasPrefix(full, absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideLibrary, relativePath)
	}
	return full, nil
}

// Scan walks the media directory and returns every video, ordered by
// relative path. Hidden files and directories are skipped. Unreadable
// entries are logged and skipped.
func (s *Scanner) Scan(ctx context.Context) ([]Video, error) {
	root, err := filepath.Abs(s.mediaDir)
	if err != nil {
		return nil, err
	}

	var videos []Video
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			logging.Warn("Skipping %s: %v", path, err)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(d.Name()))
		if !mediatypes.IsVideo(ext) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			logging.Warn("Skipping %s: %v", path, err)
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		videos = append(videos, Video{
			Title:        strings.TrimSuffix(d.Name(), filepath.Ext(d.Name())),
			Filename:     d.Name(),
			Path:         path,
			RelativePath: filepath.ToSlash(rel),
			Extension:    ext,
			Size:         info.Size(),
			ModifiedTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(videos, func(i, j int) bool {
		return videos[i].RelativePath < videos[j].RelativePath
	})
	return videos, nil
}

// Watch reports changes under the media directory to onChange until ctx
// ends. New directories are added to the watch set as they appear.
func (s *Scanner) Watch(ctx context.Context, onChange func(fsnotify.Event)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			logging.Error("failed to close file watcher: %v", err)
		}
	}()

	watchCount := s.addDirectoriesToWatcher(watcher, s.mediaDir)
	logging.Debug("Scanner watcher started, watching %d directories", watchCount)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if s.handleWatcherEvent(watcher, event) {
				onChange(event)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Error("Watcher error: %v", err)
		}
	}
}

func (s *Scanner) addDirectoriesToWatcher(watcher *fsnotify.Watcher, root string) int {
	watchCount := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if addErr := watcher.Add(path); addErr != nil {
			logging.Warn("failed to add path to watcher %s: %v", path, addErr)
		} else {
			watchCount++
		}
		return nil
	})
	if err != nil {
		logging.Error("failed to walk media directory for watcher: %v", err)
	}
	return watchCount
}

// handleWatcherEvent records the event and reports whether it can change
// the library listing.
func (s *Scanner) handleWatcherEvent(watcher *fsnotify.Watcher, event fsnotify.Event) bool {
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") {
		return false
	}
	metrics.WatcherEventsTotal.WithLabelValues(eventType(event.Op)).Inc()

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			n := s.addDirectoriesToWatcher(watcher, event.Name)
			logging.Debug("Added %d new directories to watcher under %s", n, event.Name)
			return true
		}
	}
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	// Removed or renamed directories have no extension.
	return mediatypes.IsVideo(ext) || (ext == "" && (event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)))
}

func eventType(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	case op.Has(fsnotify.Chmod):
		return "chmod"
	default:
		return "unknown"
	}
}
