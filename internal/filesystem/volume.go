package filesystem

import (
	"path/filepath"
	"sort"
	"strings"
)

// VolumeResolver maps paths to volume labels by longest-prefix match.
type VolumeResolver struct {
	mounts []volumeMount
}

type volumeMount struct {
	path string // absolute, with trailing separator
	name string
}

// NewVolumeResolver creates a resolver from a map of volume name to directory.
func NewVolumeResolver(volumes map[string]string) *VolumeResolver {
	mounts := make([]volumeMount, 0, len(volumes))
	for name, path := range volumes {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		if !strings.HasSuffix(path, string(filepath.Separator)) {
			path += string(filepath.Separator)
		}
		mounts = append(mounts, volumeMount{path: path, name: name})
	}

	sort.Slice(mounts, func(i, j int) bool {
		return len(mounts[i].path) > len(mounts[j].path)
	})

	return &VolumeResolver{mounts: mounts}
}

// Resolve returns the volume label for path, or "unknown".
func (vr *VolumeResolver) Resolve(path string) string {
	if vr == nil {
		return "unknown"
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "unknown"
	}
	abs += string(filepath.Separator)
	for _, m := range vr.mounts {
		if strings.HasPrefix(abs, m.path) {
			return m.name
		}
	}
	return "unknown"
}

var defaultResolver *VolumeResolver

// SetDefaultVolumeResolver sets the package-level volume resolver.
func SetDefaultVolumeResolver(vr *VolumeResolver) {
	defaultResolver = vr
}
