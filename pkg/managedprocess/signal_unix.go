//go:build !windows

package managedprocess

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// Children lead their own process group so signals reach their descendants too
func newSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func sendTerminationSignal(proc *os.Process) error {
	return signalGroup(proc, unix.SIGTERM)
}

func forceKill(proc *os.Process) error {
	return signalGroup(proc, unix.SIGKILL)
}

func signalGroup(proc *os.Process, sig unix.Signal) error {
	err := unix.Kill(-proc.Pid, sig)
	if err == unix.ESRCH {
		// group already gone; the leader may still be waiting to be reaped
		err = unix.Kill(proc.Pid, sig)
	}
	if err == unix.ESRCH {
		return nil
	}
	return err
}
