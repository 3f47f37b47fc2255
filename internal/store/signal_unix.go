//go:build !windows

package store

import (
	"os"
	"syscall"
)

// signalZero probes liveness via signal 0, which delivers no signal but
// still reports ESRCH for a dead process.
func signalZero(proc *os.Process) error {
	return proc.Signal(syscall.Signal(0))
}
