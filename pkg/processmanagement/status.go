package processmanagement

import (
	"time"

	"github.com/core-tools/hsu-procsup-go/pkg/processmanagement/processstatemachine"
)

type ProcessState = processstatemachine.ProcessState

const (
	ProcessStateStopped  = processstatemachine.ProcessStateStopped
	ProcessStateStarting = processstatemachine.ProcessStateStarting
	ProcessStateRunning  = processstatemachine.ProcessStateRunning
	ProcessStateStopping = processstatemachine.ProcessStateStopping
	ProcessStateCrashed  = processstatemachine.ProcessStateCrashed
)

// ProcessStatus is a point-in-time snapshot of one handle
type ProcessStatus struct {
	Name             string        `json:"name"`
	State            ProcessState  `json:"state"`
	PID              int           `json:"pid,omitempty"`
	RunID            string        `json:"run_id,omitempty"`
	StartedAt        time.Time     `json:"started_at,omitempty"`
	LastExitCode     *int          `json:"last_exit_code,omitempty"`
	LastSignal       string        `json:"last_signal,omitempty"`
	RestartCount     int           `json:"restart_count"`
	LastTransition   time.Time     `json:"last_transition"`
	RestartScheduled bool          `json:"restart_scheduled"`
	NextRestartAt    time.Time     `json:"next_restart_at,omitempty"`
	NextRestartDelay time.Duration `json:"next_restart_delay,omitempty"`
	LastError        string        `json:"last_error,omitempty"`
	AutoRestart      bool          `json:"auto_restart"`
	Command          string        `json:"command"`
}

// Uptime returns how long the current run has lasted, zero when not running
func (s ProcessStatus) Uptime(now time.Time) time.Duration {
	if s.State != ProcessStateRunning || s.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(s.StartedAt)
}
