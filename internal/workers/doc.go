/*
Package workers sizes worker pools from GOMAXPROCS, which the Go runtime sets
from the container CPU quota, rather than runtime.NumCPU.

Each helper takes the name of an environment variable that overrides the
computed value and a hard upper limit (0 for none):

	// concurrent ffmpeg encodes: half a CPU each, at most 4
	n := workers.Count("MAX_CONCURRENT_TRANSCODES", 0.5, 4)

	// thumbnail generation is mixed CPU and I/O
	n := workers.ForMixed("THUMBNAIL_WORKERS", 8)

With a 2 CPU limit, ForCPU returns 2, ForMixed 3 and ForIO 4 (before
limits). The result is never below 1.
*/
package workers
