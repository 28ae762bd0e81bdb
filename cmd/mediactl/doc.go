// Command mediactl maintains a media streamer installation from the
// command line.
//
//	mediactl cache list [--json]      list HLS renditions with state and size
//	mediactl cache clear              remove renditions not being encoded
//	mediactl prewarm <file>... [-j N] transcode videos ahead of playback
//	mediactl probe <file> [--json]    codecs, subtitle tracks and cache state
//	mediactl version                  build information
//
// mediactl reads the same configuration as the server (--config or
// CONFIG_FILE, then the environment) and may run next to it. Encodes are
// coordinated through the lock files in the HLS cache directory.
package main
