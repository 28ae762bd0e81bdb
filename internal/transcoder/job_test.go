package transcoder

import (
	"errors"
	"testing"

	"media-streamer/internal/supervisor"
)

func TestEncodeJobTransitions(t *testing.T) {
	t.Parallel()

	t.Run("success path", func(t *testing.T) {
		job := testJob("/media/a.mkv", NoSubtitles())
		if job.ID == "" {
			t.Fatal("job has no ID")
		}
		if job.State() != JobPending {
			t.Fatalf("initial state = %s", job.State())
		}
		if err := job.Start(); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if err := job.Resolve(supervisor.Succeeded); err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if job.State() != JobSucceeded {
			t.Errorf("state = %s, want succeeded", job.State())
		}
	})

	t.Run("terminal states are final", func(t *testing.T) {
		for _, state := range []supervisor.State{supervisor.Succeeded, supervisor.Failed, supervisor.Cancelled} {
			job := testJob("/media/a.mkv", NoSubtitles())
			_ = job.Start()
			if err := job.Resolve(state); err != nil {
				t.Fatalf("Resolve(%s) error = %v", state, err)
			}
			before := job.State()
			if err := job.Resolve(supervisor.Succeeded); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("second Resolve after %s: err = %v, want ErrInvalidTransition", state, err)
			}
			if err := job.Start(); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("Start after %s: err = %v, want ErrInvalidTransition", state, err)
			}
			if job.State() != before {
				t.Errorf("state changed from %s to %s", before, job.State())
			}
		}
	})

	t.Run("running outcome refused", func(t *testing.T) {
		job := testJob("/media/a.mkv", NoSubtitles())
		_ = job.Start()
		if err := job.Resolve(supervisor.Running); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Resolve(Running) err = %v", err)
		}
	})

	t.Run("pending cannot succeed", func(t *testing.T) {
		job := testJob("/media/a.mkv", NoSubtitles())
		if err := job.Resolve(supervisor.Succeeded); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Resolve on pending job err = %v", err)
		}
	})

	t.Run("abandon before start", func(t *testing.T) {
		job := testJob("/media/a.mkv", NoSubtitles())
		if err := job.Abandon(); err != nil {
			t.Fatalf("Abandon() error = %v", err)
		}
		if job.State() != JobCancelled {
			t.Errorf("state = %s, want cancelled", job.State())
		}
	})
}
