package supervisor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"
)

func requireShell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func shellSpec(sh, script string) Spec {
	return Spec{Name: "test", Binary: sh, Args: []string{"-c", script}}
}

type sinkRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *sinkRecorder) sink(source, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, source+": "+line)
}

func (r *sinkRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func waitOutcome(t *testing.T, p *Process, within time.Duration) Outcome {
	t.Helper()
	select {
	case <-p.Done():
		return p.Outcome()
	case <-time.After(within):
		t.Fatalf("process %s did not reach a terminal state within %v", p.ID, within)
		return Outcome{}
	}
}

func TestSucceeded(t *testing.T) {
	sh := requireShell(t)
	s := New()

	out := s.Run(context.Background(), shellSpec(sh, "exit 0"))

	if out.State != Succeeded {
		t.Fatalf("Expected Succeeded, got %v (%s)", out.State, out.Reason())
	}
	if out.ExitCode != 0 || out.Err != nil {
		t.Errorf("Expected exit 0 and no error, got %d, %v", out.ExitCode, out.Err)
	}
	if out.Finished.Before(out.Started) {
		t.Error("Finished must not precede Started")
	}
}

func TestFailedExitCodeAndDiagnostics(t *testing.T) {
	sh := requireShell(t)
	rec := &sinkRecorder{}
	s := New(WithDiagnosticSink(rec.sink))

	out := s.Run(context.Background(), shellSpec(sh, "echo first >&2; echo 'Invalid data found' >&2; exit 3"))

	if out.State != Failed {
		t.Fatalf("Expected Failed, got %v", out.State)
	}
	if out.ExitCode != 3 {
		t.Errorf("Expected exit code 3, got %d", out.ExitCode)
	}
	if out.LastDiagnostic() != "Invalid data found" {
		t.Errorf("Unexpected last diagnostic %q", out.LastDiagnostic())
	}
	lines := rec.all()
	if len(lines) != 2 || lines[0] != "test: first" {
		t.Errorf("Unexpected sink lines %v", lines)
	}
}

func TestLaunchFailure(t *testing.T) {
	s := New()
	p := s.Start(Spec{Name: "missing", Binary: "/nonexistent/encoder-binary"})

	select {
	case <-p.Done():
	default:
		t.Fatal("A launch failure must resolve immediately")
	}

	out := p.Outcome()
	if out.State != Failed {
		t.Fatalf("Expected Failed, got %v", out.State)
	}
	var launchErr *LaunchError
	if !errors.As(out.Err, &launchErr) {
		t.Fatalf("Expected LaunchError, got %v", out.Err)
	}
	if out.ExitCode != -1 {
		t.Errorf("Expected exit code -1, got %d", out.ExitCode)
	}
	if p.Pid() != 0 {
		t.Errorf("Expected pid 0 for a process that never started, got %d", p.Pid())
	}

	p.Cancel()
	if p.Outcome().State != Failed {
		t.Error("Cancel after a terminal outcome must not change it")
	}
	if len(s.Active()) != 0 {
		t.Error("A process that never started must not be tracked")
	}
}

func TestCancel(t *testing.T) {
	sh := requireShell(t)
	s := New()

	p := s.Start(shellSpec(sh, "sleep 30"))
	if len(s.Active()) != 1 {
		t.Fatalf("Expected 1 active process, got %d", len(s.Active()))
	}

	p.Cancel()
	out := waitOutcome(t, p, 5*time.Second)

	if out.State != Cancelled {
		t.Fatalf("Expected Cancelled, got %v", out.State)
	}
	if !errors.Is(out.Err, ErrCancelled) {
		t.Errorf("Expected ErrCancelled, got %v", out.Err)
	}
	if out.Duration() > 5*time.Second {
		t.Errorf("Cancellation took too long: %v", out.Duration())
	}
	if len(s.Active()) != 0 {
		t.Errorf("Expected no active processes, got %v", s.Active())
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	sh := requireShell(t)
	s := New()

	p := s.Start(shellSpec(sh, "exit 0"))
	out := waitOutcome(t, p, 5*time.Second)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Cancel()
		}()
	}
	wg.Wait()

	if got := p.Outcome(); got.State != out.State || got.State != Succeeded {
		t.Errorf("Outcome changed after Cancel: %v -> %v", out.State, got.State)
	}
}

func TestTimeoutReportsFailed(t *testing.T) {
	sh := requireShell(t)
	s := New(WithMaxRuntime(200 * time.Millisecond))

	p := s.Start(shellSpec(sh, "sleep 30"))
	out := waitOutcome(t, p, 5*time.Second)

	if out.State != Failed {
		t.Fatalf("Expected Failed, got %v", out.State)
	}
	if !errors.Is(out.Err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", out.Err)
	}
	if out.Duration() < 200*time.Millisecond {
		t.Errorf("Process resolved before its deadline: %v", out.Duration())
	}
}

func TestSpecMaxRuntimeOverridesDefault(t *testing.T) {
	sh := requireShell(t)
	s := New()

	spec := shellSpec(sh, "sleep 30")
	spec.MaxRuntime = 100 * time.Millisecond
	out := waitOutcome(t, s.Start(spec), 5*time.Second)

	if !errors.Is(out.Err, ErrTimeout) {
		t.Errorf("Expected the per-spec runtime to apply, got %v", out.Err)
	}
}

func TestRunCancelledByContext(t *testing.T) {
	sh := requireShell(t)
	s := New()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	out := s.Run(ctx, shellSpec(sh, "sleep 30"))
	if out.State != Cancelled {
		t.Errorf("Expected Cancelled when the caller leaves, got %v", out.State)
	}
}

func TestStdoutCapture(t *testing.T) {
	sh := requireShell(t)
	s := New()

	var stdout bytes.Buffer
	spec := shellSpec(sh, `printf '{"streams":[]}'`)
	spec.Stdout = &stdout

	if out := s.Run(context.Background(), spec); out.State != Succeeded {
		t.Fatalf("Expected Succeeded, got %v", out.State)
	}
	if stdout.String() != `{"streams":[]}` {
		t.Errorf("Unexpected stdout %q", stdout.String())
	}
}

func TestWaitHonoursContextWithoutCancelling(t *testing.T) {
	sh := requireShell(t)
	s := New()

	p := s.Start(shellSpec(sh, "sleep 30"))
	defer p.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := p.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected DeadlineExceeded, got %v", err)
	}
	select {
	case <-p.Done():
		t.Error("Wait returning must not terminate the process")
	default:
	}
}

func TestOutcomeDeliveredOnceToAllWaiters(t *testing.T) {
	sh := requireShell(t)
	s := New()
	p := s.Start(shellSpec(sh, "sleep 0.1; exit 4"))

	results := make(chan Outcome, 5)
	for range 5 {
		go func() {
			out, _ := p.Wait(context.Background())
			results <- out
		}()
	}

	first := <-results
	for range 4 {
		if got := <-results; got.State != first.State || got.ExitCode != first.ExitCode || !got.Finished.Equal(first.Finished) {
			t.Errorf("Waiters observed different outcomes: %+v vs %+v", first, got)
		}
	}
	if first.ExitCode != 4 {
		t.Errorf("Expected exit code 4, got %d", first.ExitCode)
	}
}

func TestShutdownCancelsActive(t *testing.T) {
	sh := requireShell(t)
	s := New()

	procs := []*Process{
		s.Start(shellSpec(sh, "sleep 30")),
		s.Start(shellSpec(sh, "sleep 30")),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	for _, p := range procs {
		if got := p.Outcome().State; got != Cancelled {
			t.Errorf("Expected Cancelled after shutdown, got %v", got)
		}
	}
}

func TestStartAfterShutdownIsRefused(t *testing.T) {
	sh := requireShell(t)
	s := New()
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	p := s.Start(shellSpec(sh, "sleep 30"))
	out := waitOutcome(t, p, time.Second)
	if out.State != Cancelled {
		t.Errorf("Expected Cancelled, got %v", out.State)
	}
	if !errors.Is(out.Err, ErrShuttingDown) || !errors.Is(out.Err, ErrCancelled) {
		t.Errorf("Expected ErrShuttingDown wrapping ErrCancelled, got %v", out.Err)
	}
	if p.Pid() != 0 {
		t.Errorf("Expected no process to be spawned, got pid %d", p.Pid())
	}
	if n := len(s.Active()); n != 0 {
		t.Errorf("Expected no active processes, got %d", n)
	}
}

func TestStartRacingShutdown(t *testing.T) {
	sh := requireShell(t)
	s := New()

	var wg sync.WaitGroup
	procs := make([]*Process, 8)
	for i := range procs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			procs[i] = s.Start(shellSpec(sh, "sleep 30"))
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	wg.Wait()

	for _, p := range procs {
		out := waitOutcome(t, p, 5*time.Second)
		if out.State != Cancelled {
			t.Errorf("Expected Cancelled, got %v", out.State)
		}
	}
}

func TestOutcomeReason(t *testing.T) {
	tests := []struct {
		name string
		out  Outcome
		want string
	}{
		{"success", Outcome{State: Succeeded}, "exit status 0"},
		{"exit code", Outcome{State: Failed, ExitCode: 1}, "exit status 1"},
		{"error", Outcome{State: Failed, ExitCode: -1, Err: ErrTimeout}, "maximum runtime exceeded"},
		{"cancelled without error", Outcome{State: Cancelled, ExitCode: -1}, "cancelled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.out.Reason(); got != tt.want {
				t.Errorf("Reason() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLineWriter(t *testing.T) {
	var lines []string
	lw := &lineWriter{emit: func(l string) { lines = append(lines, l) }}

	lw.Write([]byte("frame=  1 fps=0\rframe=  2"))
	lw.Write([]byte(" fps=1\nError opening input\r\n\npartial"))
	lw.Flush()

	want := []string{"frame=  1 fps=0", "frame=  2 fps=1", "Error opening input", "partial"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Errorf("Lines = %q, want %q", lines, want)
	}
}

func TestLineWriterSplitsOverlongLines(t *testing.T) {
	var lines []string
	lw := &lineWriter{emit: func(l string) { lines = append(lines, l) }}

	lw.Write(bytes.Repeat([]byte("x"), maxLineLength+10))
	if len(lines) != 1 {
		t.Fatalf("Expected an overlong line to be emitted, got %d lines", len(lines))
	}
}

func TestRing(t *testing.T) {
	r := newRing(3)
	if got := r.snapshot(); len(got) != 0 {
		t.Errorf("Expected empty snapshot, got %v", got)
	}
	for _, l := range []string{"a", "b", "c", "d", "e"} {
		r.add(l)
	}
	if got := strings.Join(r.snapshot(), ""); got != "cde" {
		t.Errorf("Expected the last 3 lines in order, got %q", got)
	}
}
