package transcoder

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSourceNotFound indicates the requested source video does not exist.
	ErrSourceNotFound = errors.New("source video not found")

	// ErrTranscodeFailed matches every failed transcode, including
	// *TranscodeError values.
	ErrTranscodeFailed = errors.New("transcode failed")

	// ErrTranscodeCancelled indicates the job was abandoned before it
	// finished. Nothing is committed to the cache.
	ErrTranscodeCancelled = errors.New("transcode cancelled")

	ErrInvalidKey         = errors.New("invalid cache key")
	ErrManifestMissing    = errors.New("manifest missing")
	ErrManifestIncomplete = errors.New("manifest incomplete")
)

// TranscodeError describes a failed encode.
type TranscodeError struct {
	Source      string
	Key         string
	ExitCode    int
	Reason      string
	Diagnostics []string
	Err         error
}

func (e *TranscodeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "transcode %s failed: %s", e.Source, e.Reason)
	if n := len(e.Diagnostics); n > 0 {
		fmt.Fprintf(&b, " (%s)", e.Diagnostics[n-1])
	}
	return b.String()
}

func (e *TranscodeError) Unwrap() error {
	return e.Err
}

// Is reports true for ErrTranscodeFailed.
func (e *TranscodeError) Is(target error) bool {
	return target == ErrTranscodeFailed
}
