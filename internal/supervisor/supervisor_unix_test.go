//go:build unix

package supervisor

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// processGone reports whether pid has exited. Zombies count as gone.
func processGone(pid int) bool {
	if err := unix.Kill(pid, 0); errors.Is(err, unix.ESRCH) {
		return true
	}
	stat, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return os.IsNotExist(err)
	}
	return strings.Contains(string(stat), ") Z ")
}

func waitGone(pid int, within time.Duration) bool {
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if processGone(pid) {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return processGone(pid)
}

func TestCancelKillsProcessGroup(t *testing.T) {
	sh := requireShell(t)
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	s := New()

	p := s.Start(shellSpec(sh, "sleep 30 & echo $! > "+pidFile+"; wait"))

	var childPid int
	deadline := time.Now().Add(5 * time.Second)
	for childPid == 0 && time.Now().Before(deadline) {
		if raw, err := os.ReadFile(pidFile); err == nil {
			childPid, _ = strconv.Atoi(strings.TrimSpace(string(raw)))
		}
		time.Sleep(10 * time.Millisecond)
	}
	if childPid == 0 {
		p.Cancel()
		t.Fatal("child pid was never written")
	}

	leader := p.Pid()
	p.Cancel()
	if out := waitOutcome(t, p, 5*time.Second); out.State != Cancelled {
		t.Fatalf("Expected Cancelled, got %v", out.State)
	}

	if !waitGone(leader, 2*time.Second) {
		t.Errorf("Process %d still running after cancel", leader)
	}
	if !waitGone(childPid, 2*time.Second) {
		t.Errorf("Grandchild %d survived the process group kill", childPid)
	}
}

func TestTimeoutLeavesNoOrphan(t *testing.T) {
	sh := requireShell(t)
	s := New(WithMaxRuntime(150 * time.Millisecond))

	p := s.Start(shellSpec(sh, "sleep 30"))
	pid := p.Pid()
	waitOutcome(t, p, 5*time.Second)

	if !waitGone(pid, 2*time.Second) {
		t.Errorf("Process %d still running after timeout", pid)
	}
}
