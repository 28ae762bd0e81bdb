package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"media-streamer/internal/supervisor"
)

// ProbeTimeout bounds a single ffprobe run.
const ProbeTimeout = 30 * time.Second

// Runner runs a supervised process to completion.
type Runner interface {
	Run(ctx context.Context, spec supervisor.Spec) supervisor.Outcome
}

// Result is the decoded ffprobe output.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes one stream of the container.
type Stream struct {
	Index       int               `json:"index"`
	CodecName   string            `json:"codec_name"`
	CodecType   string            `json:"codec_type"`
	Width       int               `json:"width,omitempty"`
	Height      int               `json:"height,omitempty"`
	PixFmt      string            `json:"pix_fmt,omitempty"`
	SampleRate  string            `json:"sample_rate,omitempty"`
	Channels    int               `json:"channels,omitempty"`
	BitRate     string            `json:"bit_rate,omitempty"`
	Duration    string            `json:"duration,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	Disposition map[string]int    `json:"disposition,omitempty"`
}

// Language returns the stream's language tag, if any.
func (s Stream) Language() string {
	return s.Tags["language"]
}

// Title returns the stream's title tag, if any.
func (s Stream) Title() string {
	return s.Tags["title"]
}

// IsDefault reports the default disposition flag.
func (s Stream) IsDefault() bool {
	return s.Disposition["default"] == 1
}

// Format captures container-level metadata.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// InspectArgs returns the argument vector for a full inspection.
func InspectArgs(path string) []string {
	return []string{"-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path}
}

// SubtitleArgs returns the argument vector listing only subtitle streams.
func SubtitleArgs(path string) []string {
	return []string{"-v", "error", "-hide_banner", "-select_streams", "s",
		"-show_entries", "stream=index,codec_name,codec_type:stream_tags=language,title:stream_disposition=default,forced",
		"-of", "json", "--", path}
}

// Parse decodes ffprobe JSON output.
func Parse(data []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// Inspect probes streams and format of path.
func Inspect(ctx context.Context, r Runner, binary, path string) (Result, error) {
	return run(ctx, r, binary, path, InspectArgs(path))
}

// SubtitleStreams probes only the subtitle streams of path, in container
// order. The n-th element is subtitle track n.
func SubtitleStreams(ctx context.Context, r Runner, binary, path string) ([]Stream, error) {
	result, err := run(ctx, r, binary, path, SubtitleArgs(path))
	if err != nil {
		return nil, err
	}
	return result.Streams, nil
}

func run(ctx context.Context, r Runner, binary, path string, args []string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	if strings.TrimSpace(path) == "" {
		return Result{}, errors.New("ffprobe: empty path")
	}

	var stdout bytes.Buffer
	out := r.Run(ctx, supervisor.Spec{
		Name:       "ffprobe",
		Binary:     binary,
		Args:       args,
		Stdout:     &stdout,
		MaxRuntime: ProbeTimeout,
	})
	switch out.State {
	case supervisor.Succeeded:
		return Parse(stdout.Bytes())
	case supervisor.Cancelled:
		return Result{}, fmt.Errorf("ffprobe %s: %w", path, context.Canceled)
	default:
		return Result{}, fmt.Errorf("ffprobe %s: %s", path, out.Reason())
	}
}

// StreamsOfType returns the streams whose codec_type matches.
func (r Result) StreamsOfType(codecType string) []Stream {
	var out []Stream
	for _, s := range r.Streams {
		if strings.EqualFold(s.CodecType, codecType) {
			out = append(out, s)
		}
	}
	return out
}

// FirstOfType returns the first stream of the given type.
func (r Result) FirstOfType(codecType string) (Stream, bool) {
	for _, s := range r.Streams {
		if strings.EqualFold(s.CodecType, codecType) {
			return s, true
		}
	}
	return Stream{}, false
}

// DurationSeconds returns the container duration, 0 when absent and NaN when
// unparsable.
func (r Result) DurationSeconds() float64 {
	return parseFloat(r.Format.Duration)
}

// BitRate returns the container bitrate in bits per second, or 0.
func (r Result) BitRate() int64 {
	rate := parseFloat(r.Format.BitRate)
	if math.IsNaN(rate) || rate < 0 {
		return 0
	}
	return int64(rate)
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
