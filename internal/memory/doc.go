// Package memory sets GOMEMLIMIT from the container memory limit.
//
// Each transcode is an ffmpeg child with its own resident set, so the Go heap
// is given a fraction of the container limit (MEMORY_RATIO, default 0.75)
// and the remainder is left to the encoders. Call ConfigureFromEnv before
// the server starts allocating:
//
//	memory.ConfigureFromEnv()
//
// An explicit GOMEMLIMIT always wins; MEMORY_LIMIT is typically injected
// through the Kubernetes Downward API.
package memory
