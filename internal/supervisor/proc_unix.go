//go:build unix

package supervisor

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureProcessGroup starts the child as the leader of a new process
// group so a kill reaches anything it spawned.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcess(cmd *exec.Cmd) error {
	pid := cmd.Process.Pid
	err := unix.Kill(-pid, unix.SIGKILL)
	if err == nil || errors.Is(err, unix.ESRCH) {
		return nil
	}
	return cmd.Process.Kill()
}
