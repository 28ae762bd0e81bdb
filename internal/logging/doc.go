// Package logging provides the leveled logger used across media-streamer.
//
// Levels, from most to least verbose:
//   - DEBUG: encoder diagnostics, cache decisions, per-request detail
//   - INFO: lifecycle and job completion messages
//   - WARN: degraded behaviour (probe failures, retries)
//   - ERROR: failed jobs and handler errors
//
// The level is taken from DEBUG=true or LOG_LEVEL and can be overridden at
// runtime with SetLevel, which the config file overlay uses.
package logging
