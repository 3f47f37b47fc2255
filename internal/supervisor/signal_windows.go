//go:build windows

package supervisor

import "os/exec"

// Windows has no SIGSTOP/SIGCONT equivalent, so these return
// ErrSignalUnsupported. The engine's PauseLoop detects it with errors.Is,
// stops the process instead, and records the pause as cross-session, so
// the next resume is a fresh spawn.
func sendStop(cmd *exec.Cmd) error {
	return ErrSignalUnsupported
}

func sendContinue(cmd *exec.Cmd) error {
	return ErrSignalUnsupported
}

func sendTerminate(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
