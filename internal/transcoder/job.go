package transcoder

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"media-streamer/internal/supervisor"
)

// SubtitleKind selects how captions are burned into a rendition.
type SubtitleKind int

const (
	SubtitleNone SubtitleKind = iota
	SubtitleExternal
	SubtitleEmbedded
)

func (k SubtitleKind) String() string {
	switch k {
	case SubtitleExternal:
		return "external"
	case SubtitleEmbedded:
		return "embedded"
	default:
		return "none"
	}
}

// SubtitleSource is the caption choice of a job. Path is set for external
// files, Track for embedded subtitle streams.
type SubtitleSource struct {
	Kind  SubtitleKind
	Path  string
	Track int
}

// NoSubtitles burns nothing.
func NoSubtitles() SubtitleSource {
	return SubtitleSource{Kind: SubtitleNone}
}

// ExternalSubtitles burns a sidecar caption file.
func ExternalSubtitles(path string) SubtitleSource {
	return SubtitleSource{Kind: SubtitleExternal, Path: path}
}

// EmbeddedSubtitles burns subtitle track index of the source itself.
func EmbeddedSubtitles(index int) SubtitleSource {
	return SubtitleSource{Kind: SubtitleEmbedded, Track: index}
}

func (s SubtitleSource) String() string {
	switch s.Kind {
	case SubtitleExternal:
		return "external:" + s.Path
	case SubtitleEmbedded:
		return fmt.Sprintf("embedded:%d", s.Track)
	default:
		return "none"
	}
}

// JobState is the lifecycle state of an EncodeJob.
type JobState int

const (
	JobPending JobState = iota
	JobRunning
	JobSucceeded
	JobFailed
	JobCancelled
)

func (s JobState) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobRunning:
		return "running"
	case JobSucceeded:
		return "succeeded"
	case JobFailed:
		return "failed"
	case JobCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobCancelled
}

// ErrInvalidTransition is returned when a job is moved out of a terminal
// state or skips a step.
var ErrInvalidTransition = errors.New("invalid job state transition")

// EncodeJob is one encode of a source into a cache entry.
type EncodeJob struct {
	ID           string
	Key          string
	SourcePath   string
	OutputDir    string
	ManifestPath string
	StagingPath  string
	SegmentPath  string
	Subtitle     SubtitleSource

	mu    sync.Mutex
	state JobState
}

// NewEncodeJob creates a pending job writing into loc.
func NewEncodeJob(sourcePath string, loc Location, subtitle SubtitleSource) *EncodeJob {
	return &EncodeJob{
		ID:           uuid.NewString(),
		Key:          loc.Key,
		SourcePath:   sourcePath,
		OutputDir:    loc.Dir,
		ManifestPath: loc.ManifestPath,
		StagingPath:  loc.StagingPath,
		SegmentPath:  loc.SegmentTemplate(),
		Subtitle:     subtitle,
	}
}

// State returns the current state.
func (j *EncodeJob) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Start moves a pending job to running.
func (j *EncodeJob) Start() error {
	return j.transition(JobRunning)
}

// Resolve applies a supervisor outcome. Only terminal outcomes are accepted.
func (j *EncodeJob) Resolve(state supervisor.State) error {
	switch state {
	case supervisor.Succeeded:
		return j.transition(JobSucceeded)
	case supervisor.Failed:
		return j.transition(JobFailed)
	case supervisor.Cancelled:
		return j.transition(JobCancelled)
	default:
		return fmt.Errorf("%w: outcome %s is not terminal", ErrInvalidTransition, state)
	}
}

// Abandon cancels a job that never reached the encoder.
func (j *EncodeJob) Abandon() error {
	return j.transition(JobCancelled)
}

func (j *EncodeJob) transition(to JobState) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	from := j.state
	allowed := false
	switch from {
	case JobPending:
		allowed = to == JobRunning || to == JobCancelled || to == JobFailed
	case JobRunning:
		allowed = to.Terminal()
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	j.state = to
	return nil
}
