package supervisor

import (
	"errors"
	"fmt"
	"time"
)

// State is the lifecycle state of a supervised process.
type State int

const (
	// Running means no terminal event has happened yet.
	Running State = iota
	// Succeeded means the process exited with status 0.
	Succeeded
	// Failed means a non-zero exit, a launch error or a timeout.
	Failed
	// Cancelled means Cancel won the race and the process was killed.
	Cancelled
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s != Running
}

// ErrTimeout is wrapped by the Err of a process killed for exceeding its
// maximum runtime.
var ErrTimeout = errors.New("maximum runtime exceeded")

// ErrCancelled is the Err of a Cancelled outcome.
var ErrCancelled = errors.New("process cancelled")

// ErrShuttingDown is the Err of a spec started after Shutdown. It matches
// ErrCancelled.
var ErrShuttingDown = fmt.Errorf("supervisor shutting down: %w", ErrCancelled)

// LaunchError reports a process that could not be started.
type LaunchError struct {
	Binary string
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Binary, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Outcome is the single terminal result of a supervised process.
type Outcome struct {
	State State
	// ExitCode is the exit status, or -1 when the process did not exit on
	// its own (launch error, kill).
	ExitCode    int
	Err         error
	Started     time.Time
	Finished    time.Time
	Diagnostics []string
}

// Duration returns the wall-clock runtime.
func (o Outcome) Duration() time.Duration {
	return o.Finished.Sub(o.Started)
}

// Reason describes the outcome for logs and error messages.
func (o Outcome) Reason() string {
	switch {
	case o.State == Succeeded:
		return "exit status 0"
	case o.Err != nil:
		return o.Err.Error()
	case o.ExitCode >= 0:
		return fmt.Sprintf("exit status %d", o.ExitCode)
	default:
		return o.State.String()
	}
}

// LastDiagnostic returns the final stderr line, if any.
func (o Outcome) LastDiagnostic() string {
	if len(o.Diagnostics) == 0 {
		return ""
	}
	return o.Diagnostics[len(o.Diagnostics)-1]
}
