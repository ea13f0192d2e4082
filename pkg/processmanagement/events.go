package processmanagement

import (
	"time"

	"github.com/core-tools/hsu-procsup-go/pkg/processmanagement/processstatemachine"
)

// EventType classifies supervisor events
type EventType string

const (
	EventRegistered       EventType = "registered"
	EventRemoved          EventType = "removed"
	EventStateChanged     EventType = "state_changed"
	EventRestartScheduled EventType = "restart_scheduled"
	EventRestartCancelled EventType = "restart_cancelled"
	EventSpawnFailed      EventType = "spawn_failed"
)

// Operation names recorded on transitions and events
const (
	OperationRegister    = "register"
	OperationStart       = processstatemachine.OperationStart
	OperationStop        = processstatemachine.OperationStop
	OperationRestart     = processstatemachine.OperationRestart
	OperationRemove      = processstatemachine.OperationRemove
	OperationExit        = "exit"
	OperationAutoRestart = "auto_restart"
	OperationShutdown    = "shutdown"
)

// Event is published asynchronously for every lifecycle change
type Event struct {
	Type      EventType     `json:"type"`
	Process   string        `json:"process"`
	RunID     string        `json:"run_id,omitempty"`
	From      ProcessState  `json:"from,omitempty"`
	To        ProcessState  `json:"to,omitempty"`
	Operation string        `json:"operation,omitempty"`
	ExitCode  *int          `json:"exit_code,omitempty"`
	Signal    string        `json:"signal,omitempty"`
	Delay     time.Duration `json:"delay,omitempty"`
	Error     string        `json:"error,omitempty"`
	Time      time.Time     `json:"time"`
}
