package transcoder

import (
	"crypto/md5"
	"fmt"
	"path/filepath"

	"golang.org/x/text/unicode/norm"
)

// NormalizePath returns the identity form of a source path: absolute,
// cleaned and Unicode NFC normalized.
func NormalizePath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return norm.NFC.String(filepath.Clean(path))
}

// CacheKey derives the cache key for a source path.
func CacheKey(sourcePath string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(NormalizePath(sourcePath))))
}
