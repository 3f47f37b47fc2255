//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

func sendStop(cmd *exec.Cmd) error {
	return cmd.Process.Signal(syscall.SIGSTOP)
}

func sendContinue(cmd *exec.Cmd) error {
	return cmd.Process.Signal(syscall.SIGCONT)
}

func sendTerminate(cmd *exec.Cmd) error {
	return cmd.Process.Signal(syscall.SIGTERM)
}
