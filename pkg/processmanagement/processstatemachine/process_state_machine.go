package processstatemachine

import (
	"fmt"
	"sync"
	"time"

	"github.com/core-tools/hsu-procsup-go/pkg/errors"
	"github.com/core-tools/hsu-procsup-go/pkg/logging"
)

// ProcessState represents the current state of a process in its lifecycle
type ProcessState string

const (
	// ProcessStateStopped is the initial state and the state after a clean stop
	ProcessStateStopped ProcessState = "stopped"

	// ProcessStateStarting means a spawn is in progress
	ProcessStateStarting ProcessState = "starting"

	// ProcessStateRunning means the child is alive
	ProcessStateRunning ProcessState = "running"

	// ProcessStateStopping means the termination signal was sent and the exit is awaited
	ProcessStateStopping ProcessState = "stopping"

	// ProcessStateCrashed means the child exited unexpectedly or an automatic respawn failed
	ProcessStateCrashed ProcessState = "crashed"
)

// AllStates lists every state, in lifecycle order
var AllStates = []ProcessState{
	ProcessStateStopped,
	ProcessStateStarting,
	ProcessStateRunning,
	ProcessStateStopping,
	ProcessStateCrashed,
}

// Operations validated by IsOperationAllowed
const (
	OperationStart   = "start"
	OperationStop    = "stop"
	OperationRestart = "restart"
	OperationRemove  = "remove"
)

// DefaultHistoryLimit bounds the number of retained transitions
const DefaultHistoryLimit = 64

// ProcessStateTransition represents a state transition with metadata
type ProcessStateTransition struct {
	ProcessName string
	From        ProcessState
	To          ProcessState
	Operation   string
	Timestamp   time.Time
	Error       error
}

// TransitionListener is notified after every successful transition, outside the machine's lock
type TransitionListener func(transition ProcessStateTransition)

// ProcessStateMachine manages process state transitions with validation
type ProcessStateMachine struct {
	processName      string
	currentState     ProcessState
	transitions      []ProcessStateTransition
	transitionCount  int
	historyLimit     int
	validTransitions map[ProcessState][]ProcessState
	listener         TransitionListener
	mutex            sync.RWMutex
	logger           logging.Logger
}

// NewProcessStateMachine creates a machine in the stopped state
func NewProcessStateMachine(processName string, logger logging.Logger, listener TransitionListener) *ProcessStateMachine {
	sm := &ProcessStateMachine{
		processName:  processName,
		currentState: ProcessStateStopped,
		transitions:  make([]ProcessStateTransition, 0),
		historyLimit: DefaultHistoryLimit,
		listener:     listener,
		logger:       logger,
	}

	sm.validTransitions = map[ProcessState][]ProcessState{
		ProcessStateStopped: {
			ProcessStateStarting, // Start
		},
		ProcessStateStarting: {
			ProcessStateRunning, // spawn success
			ProcessStateStopped, // explicit start failed to spawn
			ProcessStateCrashed, // automatic restart failed to spawn
		},
		ProcessStateRunning: {
			ProcessStateStopping, // Stop
			ProcessStateCrashed,  // unexpected exit
			ProcessStateStopped,  // clean exit on its own
		},
		ProcessStateStopping: {
			ProcessStateStopped, // exit observed
		},
		ProcessStateCrashed: {
			ProcessStateStarting, // restart policy or explicit start
			ProcessStateStopped,  // Stop cancels a pending restart
		},
	}

	return sm
}

// SetHistoryLimit changes how many transitions are retained; values below 1 are ignored
func (sm *ProcessStateMachine) SetHistoryLimit(limit int) {
	if limit < 1 {
		return
	}
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	sm.historyLimit = limit
	sm.trimUnsafe()
}

// GetCurrentState returns the current state (thread-safe)
func (sm *ProcessStateMachine) GetCurrentState() ProcessState {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

// CanTransition checks if a state transition is valid (thread-safe)
func (sm *ProcessStateMachine) CanTransition(to ProcessState) bool {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.canTransitionUnsafe(to)
}

// Transition changes the process state with validation (thread-safe)
func (sm *ProcessStateMachine) Transition(to ProcessState, operation string, err error) error {
	sm.mutex.Lock()

	if !sm.canTransitionUnsafe(to) {
		from := sm.currentState
		sm.mutex.Unlock()
		return errors.NewInternalError(
			fmt.Sprintf("invalid state transition from '%s' to '%s'", from, to),
			nil,
		).WithContext("name", sm.processName).
			WithContext("from_state", string(from)).
			WithContext("to_state", string(to)).
			WithContext("operation", operation)
	}

	transition := ProcessStateTransition{
		ProcessName: sm.processName,
		From:        sm.currentState,
		To:          to,
		Operation:   operation,
		Timestamp:   time.Now(),
		Error:       err,
	}

	sm.transitions = append(sm.transitions, transition)
	sm.transitionCount++
	sm.trimUnsafe()
	sm.currentState = to
	listener := sm.listener

	sm.mutex.Unlock()

	if err != nil {
		sm.logger.Warnf("Process state transition, name: %s, %s->%s, operation: %s, error: %v",
			sm.processName, transition.From, to, operation, err)
	} else {
		sm.logger.Infof("Process state transition, name: %s, %s->%s, operation: %s",
			sm.processName, transition.From, to, operation)
	}

	if listener != nil {
		listener(transition)
	}

	return nil
}

func (sm *ProcessStateMachine) trimUnsafe() {
	if excess := len(sm.transitions) - sm.historyLimit; excess > 0 {
		sm.transitions = append(sm.transitions[:0:0], sm.transitions[excess:]...)
	}
}

func (sm *ProcessStateMachine) canTransitionUnsafe(to ProcessState) bool {
	for _, validState := range sm.validTransitions[sm.currentState] {
		if validState == to {
			return true
		}
	}
	return false
}

// GetTransitionHistory returns the retained transition history, oldest first
func (sm *ProcessStateMachine) GetTransitionHistory() []ProcessStateTransition {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	history := make([]ProcessStateTransition, len(sm.transitions))
	copy(history, sm.transitions)
	return history
}

// GetStateInfo returns comprehensive state information
func (sm *ProcessStateMachine) GetStateInfo() ProcessStateInfo {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	var lastTransition *ProcessStateTransition
	if len(sm.transitions) > 0 {
		last := sm.transitions[len(sm.transitions)-1]
		lastTransition = &last
	}

	nextStates := make([]ProcessState, len(sm.validTransitions[sm.currentState]))
	copy(nextStates, sm.validTransitions[sm.currentState])

	return ProcessStateInfo{
		ProcessName:     sm.processName,
		CurrentState:    sm.currentState,
		LastTransition:  lastTransition,
		TransitionCount: sm.transitionCount,
		ValidNextStates: nextStates,
	}
}

// ProcessStateInfo provides comprehensive information about process state
type ProcessStateInfo struct {
	ProcessName     string
	CurrentState    ProcessState
	LastTransition  *ProcessStateTransition
	TransitionCount int
	ValidNextStates []ProcessState
}

// IsOperationAllowed checks if a lifecycle operation is allowed in the current state.
// Restart-pending checks belong to the caller.
func (sm *ProcessStateMachine) IsOperationAllowed(operation string) bool {
	currentState := sm.GetCurrentState()

	switch operation {
	case OperationStart:
		return sm.CanTransition(ProcessStateStarting)
	case OperationStop:
		return currentState == ProcessStateRunning ||
			currentState == ProcessStateStopping ||
			currentState == ProcessStateCrashed
	case OperationRestart:
		return currentState != ProcessStateStarting
	case OperationRemove:
		return currentState == ProcessStateStopped || currentState == ProcessStateCrashed
	default:
		return false
	}
}

// ValidateOperation checks if an operation can be performed and returns a typed error
func (sm *ProcessStateMachine) ValidateOperation(operation string) error {
	if sm.IsOperationAllowed(operation) {
		return nil
	}

	currentState := sm.GetCurrentState()
	message := fmt.Sprintf("operation '%s' not allowed in current state '%s'", operation, currentState)

	var err *errors.DomainError
	switch operation {
	case OperationStart:
		err = errors.NewAlreadyRunningError(message, nil)
	case OperationStop:
		err = errors.NewNotRunningError(message, nil)
	default:
		err = errors.NewValidationError(message, nil)
	}

	return err.WithContext("name", sm.processName).
		WithContext("current_state", string(currentState)).
		WithContext("operation", operation)
}
