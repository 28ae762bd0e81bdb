package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"media-streamer/internal/logging"
	"media-streamer/internal/metrics"
)

const (
	// DefaultMaxRuntime bounds every supervised process unless overridden.
	DefaultMaxRuntime = 5 * time.Minute

	defaultDiagnosticLines = 20

	// waitDelay bounds how long Wait keeps draining stderr after the
	// process has gone.
	waitDelay = 2 * time.Second
)

// Spec describes one external process invocation.
type Spec struct {
	// Name labels metrics and log lines ("ffmpeg-hls", "ffprobe").
	Name   string
	Binary string
	Args   []string
	Dir    string
	// Stdout receives the process's standard output. Nil discards it.
	Stdout io.Writer
	// MaxRuntime overrides the supervisor default when positive.
	MaxRuntime time.Duration
}

// DiagnosticSink receives stderr lines of supervised processes.
type DiagnosticSink func(source, line string)

// Supervisor starts and tracks external processes.
type Supervisor struct {
	maxRuntime time.Duration
	sink       DiagnosticSink
	diagLines  int

	mu     sync.Mutex
	active map[string]*Process
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithMaxRuntime sets the default maximum runtime.
func WithMaxRuntime(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.maxRuntime = d
		}
	}
}

// WithDiagnosticSink replaces the default debug-log sink.
func WithDiagnosticSink(sink DiagnosticSink) Option {
	return func(s *Supervisor) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithDiagnosticLines sets how many trailing stderr lines an Outcome keeps.
func WithDiagnosticLines(n int) Option {
	return func(s *Supervisor) {
		if n > 0 {
			s.diagLines = n
		}
	}
}

// New creates a Supervisor.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		maxRuntime: DefaultMaxRuntime,
		sink:       logging.DebugLine,
		diagLines:  defaultDiagnosticLines,
		active:     make(map[string]*Process),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxRuntime returns the default maximum runtime.
func (s *Supervisor) MaxRuntime() time.Duration {
	return s.maxRuntime
}

// Process is the handle of one supervised invocation.
type Process struct {
	ID        string
	Spec      Spec
	StartTime time.Time
	Deadline  time.Time

	cmd      *exec.Cmd
	stderr   *lineWriter
	diag     *ring
	cancelCh chan struct{}
	cancel   sync.Once
	done     chan struct{}
	outcome  Outcome
}

// Start launches spec and begins supervising it. It never returns an error:
// a launch failure is reported as a Failed outcome, and a spec started after
// Shutdown is reported as Cancelled with ErrShuttingDown.
func (s *Supervisor) Start(spec Spec) *Process {
	maxRuntime := spec.MaxRuntime
	if maxRuntime <= 0 {
		maxRuntime = s.maxRuntime
	}
	if spec.Name == "" {
		spec.Name = spec.Binary
	}

	p := &Process{
		ID:       uuid.NewString(),
		Spec:     spec,
		diag:     newRing(s.diagLines),
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
	p.stderr = &lineWriter{emit: func(line string) {
		p.diag.add(line)
		s.sink(spec.Name, line)
	}}

	cmd := exec.Command(spec.Binary, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Stdout = spec.Stdout
	cmd.Stderr = p.stderr
	cmd.WaitDelay = waitDelay
	configureProcessGroup(cmd)

	p.StartTime = time.Now()
	p.Deadline = p.StartTime.Add(maxRuntime)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		p.finish(Outcome{State: Cancelled, ExitCode: -1, Err: ErrShuttingDown}, "refused")
		return p
	}
	s.wg.Add(1)
	s.mu.Unlock()

	metrics.ProcessesStarted.WithLabelValues(spec.Name).Inc()

	if err := cmd.Start(); err != nil {
		s.wg.Done()
		p.finish(Outcome{
			State:    Failed,
			ExitCode: -1,
			Err:      &LaunchError{Binary: spec.Binary, Err: err},
		}, "launch_error")
		return p
	}
	p.cmd = cmd

	s.track(p)
	logging.Debug("Started %s [%s] pid=%d", spec.Name, p.ID, cmd.Process.Pid)
	go s.supervise(p, maxRuntime)
	return p
}

// Run starts spec, cancels it if ctx ends first, and returns its outcome.
func (s *Supervisor) Run(ctx context.Context, spec Spec) Outcome {
	p := s.Start(spec)
	select {
	case <-p.done:
	case <-ctx.Done():
		p.Cancel()
		<-p.done
	}
	return p.outcome
}

func (s *Supervisor) supervise(p *Process, maxRuntime time.Duration) {
	defer s.untrack(p)

	exited := make(chan error, 1)
	go func() { exited <- p.cmd.Wait() }()

	timer := time.NewTimer(maxRuntime)
	defer timer.Stop()

	var out Outcome
	var label string
	select {
	case err := <-exited:
		out, label = exitOutcome(p.cmd, err)
	case <-p.cancelCh:
		p.kill()
		<-exited
		out = Outcome{State: Cancelled, ExitCode: -1, Err: ErrCancelled}
		label = "cancelled"
	case <-timer.C:
		p.kill()
		<-exited
		out = Outcome{
			State:    Failed,
			ExitCode: -1,
			Err:      fmt.Errorf("%s killed after %v: %w", p.Spec.Name, maxRuntime, ErrTimeout),
		}
		label = "timeout"
	}

	p.stderr.Flush()
	p.finish(out, label)
}

func exitOutcome(cmd *exec.Cmd, err error) (Outcome, string) {
	state := cmd.ProcessState
	if err == nil || (errors.Is(err, exec.ErrWaitDelay) && state != nil && state.Success()) {
		return Outcome{State: Succeeded, ExitCode: 0}, "succeeded"
	}

	code := -1
	if state != nil {
		code = state.ExitCode()
	}
	return Outcome{State: Failed, ExitCode: code, Err: err}, "failed"
}

func (p *Process) kill() {
	if err := killProcess(p.cmd); err != nil {
		logging.Warn("Failed to kill %s [%s]: %v", p.Spec.Name, p.ID, err)
	}
}

func (p *Process) finish(out Outcome, label string) {
	out.Started = p.StartTime
	out.Finished = time.Now()
	out.Diagnostics = p.diag.snapshot()
	p.outcome = out
	close(p.done)

	metrics.ProcessOutcomes.WithLabelValues(p.Spec.Name, label).Inc()
	metrics.ProcessRuntime.WithLabelValues(p.Spec.Name).Observe(out.Duration().Seconds())

	switch out.State {
	case Succeeded:
		logging.Debug("%s [%s] succeeded in %v", p.Spec.Name, p.ID, out.Duration().Round(time.Millisecond))
	case Cancelled:
		logging.Info("%s [%s] cancelled after %v", p.Spec.Name, p.ID, out.Duration().Round(time.Millisecond))
	default:
		if last := out.LastDiagnostic(); last != "" {
			logging.Warn("%s [%s] failed: %s (%s)", p.Spec.Name, p.ID, out.Reason(), last)
		} else {
			logging.Warn("%s [%s] failed: %s", p.Spec.Name, p.ID, out.Reason())
		}
	}
}

// Cancel kills the process if it is still running. It is safe to call any
// number of times, from any goroutine, before or after the outcome.
func (p *Process) Cancel() {
	p.cancel.Do(func() { close(p.cancelCh) })
}

// Done is closed once the outcome is known.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the outcome is known or ctx ends. Ending ctx does not
// cancel the process.
func (p *Process) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-p.done:
		return p.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Outcome blocks until the process reaches a terminal state.
func (p *Process) Outcome() Outcome {
	<-p.done
	return p.outcome
}

// Pid returns the OS process id, or 0 if the process never started.
func (p *Process) Pid() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// track registers a started process. The WaitGroup slot was reserved in
// Start; a process that raced Shutdown is cancelled here.
func (s *Supervisor) track(p *Process) {
	s.mu.Lock()
	s.active[p.ID] = p
	closed := s.closed
	s.mu.Unlock()

	metrics.ProcessesActive.WithLabelValues(p.Spec.Name).Inc()
	if closed {
		p.Cancel()
	}
}

func (s *Supervisor) untrack(p *Process) {
	s.mu.Lock()
	delete(s.active, p.ID)
	s.mu.Unlock()
	metrics.ProcessesActive.WithLabelValues(p.Spec.Name).Dec()
	s.wg.Done()
}

// ProcessInfo describes a running process.
type ProcessInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Pid       int       `json:"pid"`
	StartTime time.Time `json:"startTime"`
	Deadline  time.Time `json:"deadline"`
}

// Active lists running processes, oldest first.
func (s *Supervisor) Active() []ProcessInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]ProcessInfo, 0, len(s.active))
	for _, p := range s.active {
		infos = append(infos, ProcessInfo{
			ID:        p.ID,
			Name:      p.Spec.Name,
			Pid:       p.Pid(),
			StartTime: p.StartTime,
			Deadline:  p.Deadline,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartTime.Before(infos[j].StartTime)
	})
	return infos
}

// Shutdown cancels every running process and waits until all of them have
// been reaped or ctx ends. Later Starts are refused.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	procs := make([]*Process, 0, len(s.active))
	for _, p := range s.active {
		procs = append(procs, p)
	}
	s.mu.Unlock()

	if len(procs) > 0 {
		logging.Info("Cancelling %d supervised process(es)", len(procs))
	}
	for _, p := range procs {
		p.Cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
