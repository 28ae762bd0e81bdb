package subtitles

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"media-streamer/internal/mediatypes"
)

// FindSidecar returns the caption file belonging to sourcePath. The
// directory of the source is searched first, then dirs in order. An exact
// base-name match ("movie.srt") beats a language-tagged one ("movie.en.srt").
func FindSidecar(sourcePath string, dirs ...string) (string, bool) {
	base := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	if base == "" {
		return "", false
	}

	searched := make(map[string]bool)
	for _, dir := range append([]string{filepath.Dir(sourcePath)}, dirs...) {
		if dir == "" {
			continue
		}
		dir = filepath.Clean(dir)
		if searched[dir] {
			continue
		}
		searched[dir] = true

		if match, ok := sidecarIn(dir, base); ok {
			return match, true
		}
	}
	return "", false
}

func sidecarIn(dir, base string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}

	best := ""
	bestRank := -1
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		priority := slices.Index(mediatypes.SubtitleExtensions, ext)
		if priority < 0 {
			continue
		}

		stem := strings.TrimSuffix(name, filepath.Ext(name))
		rank := -1
		switch {
		case stem == base:
			rank = priority
		case strings.HasPrefix(stem, base+"."):
			rank = len(mediatypes.SubtitleExtensions) + priority
		default:
			continue
		}
		if bestRank < 0 || rank < bestRank || (rank == bestRank && name < filepath.Base(best)) {
			best = filepath.Join(dir, name)
			bestRank = rank
		}
	}
	return best, bestRank >= 0
}
