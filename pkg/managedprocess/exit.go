package managedprocess

import (
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// ExitResult describes how a child exited
type ExitResult struct {
	Code     int       // -1 when terminated by a signal or never waited
	Signal   string    // non-empty when terminated by a signal
	Err      error     // wait failure unrelated to the exit status
	ExitedAt time.Time
}

// Success reports a clean zero exit
func (r ExitResult) Success() bool {
	return r.Err == nil && r.Signal == "" && r.Code == 0
}

func (r ExitResult) String() string {
	if r.Success() {
		return "exited normally"
	}
	bits := []string{fmt.Sprintf("status=%d", r.Code)}
	if r.Signal != "" {
		bits = append(bits, "signal="+r.Signal)
	}
	if r.Err != nil {
		bits = append(bits, "error="+r.Err.Error())
	}
	return "exited with " + strings.Join(bits, ", ")
}

func newExitResult(state *os.ProcessState, waitErr error) ExitResult {
	result := ExitResult{
		Code:     -1,
		ExitedAt: time.Now(),
	}

	if state == nil {
		result.Err = waitErr
		return result
	}

	result.Code = state.ExitCode()
	if status, ok := state.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		result.Signal = status.Signal().String()
	}

	// ExitError only repeats the status; ErrWaitDelay means output pipes outlived the child
	var exitErr *exec.ExitError
	if waitErr != nil && !stderrors.As(waitErr, &exitErr) && !stderrors.Is(waitErr, exec.ErrWaitDelay) {
		result.Err = waitErr
	}

	return result
}
