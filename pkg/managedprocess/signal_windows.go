//go:build windows

package managedprocess

import (
	"os"
	"syscall"
)

func newSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// Windows has no SIGTERM; the graceful phase is skipped and Kill does the work
func sendTerminationSignal(proc *os.Process) error {
	return proc.Kill()
}

func forceKill(proc *os.Process) error {
	err := proc.Kill()
	if err == os.ErrProcessDone {
		return nil
	}
	return err
}
