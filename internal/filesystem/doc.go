/*
Package filesystem wraps os.Stat and os.Open with retries for ESTALE, the
"stale file handle" error an NFS-mounted media library returns after the
server side changes under an open handle.

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())

Only ESTALE is retried, with exponential backoff (50ms, 100ms, 200ms by
default, capped at MaxBackoff). Any other error is returned immediately and
unwrapped, so errors.Is(err, fs.ErrNotExist) keeps working for callers.

Metrics are reported through an Observer labelled by volume ("media",
"cache", "subtitles"), resolved by longest path prefix. The metrics package
provides the implementation; with no observer set nothing is recorded.
*/
package filesystem
