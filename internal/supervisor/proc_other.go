//go:build !unix

package supervisor

import "os/exec"

func configureProcessGroup(*exec.Cmd) {}

func killProcess(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
