package transcoder

import (
	"fmt"
	"strconv"
	"strings"
)

// SegmentSeconds is the target HLS segment duration.
const SegmentSeconds = 10

// EncodeOptions holds encoder settings shared by every job.
type EncodeOptions struct {
	Preset       string
	CRF          int
	AudioBitrate string
}

// DefaultEncodeOptions returns the settings used by the server.
func DefaultEncodeOptions() EncodeOptions {
	return EncodeOptions{
		Preset:       "veryfast",
		CRF:          23,
		AudioBitrate: "128k",
	}
}

func (o EncodeOptions) withDefaults() EncodeOptions {
	d := DefaultEncodeOptions()
	if o.Preset == "" {
		o.Preset = d.Preset
	}
	if o.CRF <= 0 {
		o.CRF = d.CRF
	}
	if o.AudioBitrate == "" {
		o.AudioBitrate = d.AudioBitrate
	}
	return o
}

// BuildEncodeArgs returns the ffmpeg argument vector for job. The encoder
// writes to the staging manifest; the cache publishes it after success.
func BuildEncodeArgs(job *EncodeJob, opts EncodeOptions) []string {
	opts = opts.withDefaults()

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", job.SourcePath,
	}
	if filter := subtitleFilter(job); filter != "" {
		args = append(args, "-vf", filter)
	}
	args = append(args,
		"-map", "0:v:0",
		"-map", "0:a:0?",
		"-c:v", "libx264",
		"-preset", opts.Preset,
		"-crf", strconv.Itoa(opts.CRF),
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", opts.AudioBitrate,
		"-ac", "2",
		"-f", "hls",
		"-hls_time", strconv.Itoa(SegmentSeconds),
		"-hls_playlist_type", "vod",
		"-hls_flags", "independent_segments",
		"-hls_segment_filename", job.SegmentPath,
		job.StagingPath,
	)
	return args
}

func subtitleFilter(job *EncodeJob) string {
	switch job.Subtitle.Kind {
	case SubtitleExternal:
		if job.Subtitle.Path == "" {
			return ""
		}
		return "subtitles=" + quoteFilterPath(job.Subtitle.Path)
	case SubtitleEmbedded:
		return fmt.Sprintf("subtitles=%s:si=%d", quoteFilterPath(job.SourcePath), job.Subtitle.Track)
	default:
		return ""
	}
}

// quoteFilterPath renders p as a filter option value. ffmpeg unescapes it
// twice: the graph parser takes everything between single quotes literally,
// then the option parser honours backslash escapes. A quote therefore has to
// be backslash-escaped for the option parser and then closed, escaped and
// reopened for the graph parser.
func quoteFilterPath(p string) string {
	p = strings.ReplaceAll(p, `\`, `/`)
	p = strings.NewReplacer(`'`, `\'`, ":", `\:`, "=", `\=`).Replace(p)
	return "'" + strings.ReplaceAll(p, `'`, `'\''`) + "'"
}
