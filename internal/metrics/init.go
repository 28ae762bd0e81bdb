package metrics

// InitializeMetrics pre-populates the expected label combinations so every
// series exists from the first scrape.
func InitializeMetrics() {
	for _, r := range []string{"served", "range_required", "not_satisfiable", "not_found", "error"} {
		RangeRequestsTotal.WithLabelValues(r)
	}
	for _, r := range []string{"client_gone", "write_timeout", "read_error"} {
		RangeStreamAborts.WithLabelValues(r)
	}

	for _, name := range []string{"ffmpeg-hls", "ffmpeg-subtitle", "ffmpeg-thumbnail", "ffprobe"} {
		ProcessesStarted.WithLabelValues(name)
		ProcessesActive.WithLabelValues(name)
		for _, o := range []string{"succeeded", "failed", "cancelled", "timeout", "launch_error"} {
			ProcessOutcomes.WithLabelValues(name, o)
		}
	}

	TranscodeCacheLookups.WithLabelValues("hit")
	TranscodeCacheLookups.WithLabelValues("miss")
	for _, s := range []string{"succeeded", "failed", "cancelled"} {
		TranscoderJobsTotal.WithLabelValues(s)
	}

	for _, s := range []string{"cached", "succeeded", "failed", "cancelled"} {
		SubtitleExtractionsTotal.WithLabelValues(s)
	}
	for _, r := range []string{"found", "absent", "error"} {
		SubtitleProbesTotal.WithLabelValues(r)
	}

	for _, s := range []string{"success", "cached", "error"} {
		ThumbnailGenerationsTotal.WithLabelValues(s)
	}

	for _, op := range []string{"stat", "open"} {
		for _, vol := range []string{"media", "cache", "subtitles", "unknown"} {
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
		}
	}
}
