package processstatemachine

import (
	"sync"
	"testing"

	"github.com/core-tools/hsu-procsup-go/pkg/errors"
	"github.com/core-tools/hsu-procsup-go/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMachine(listener TransitionListener) *ProcessStateMachine {
	return NewProcessStateMachine("web", logging.NewNullLogger(), listener)
}

func TestProcessStateMachine_InitialState(t *testing.T) {
	sm := newTestMachine(nil)

	assert.Equal(t, ProcessStateStopped, sm.GetCurrentState())
	assert.Empty(t, sm.GetTransitionHistory())

	info := sm.GetStateInfo()
	assert.Equal(t, "web", info.ProcessName)
	assert.Nil(t, info.LastTransition)
	assert.Equal(t, []ProcessState{ProcessStateStarting}, info.ValidNextStates)
}

func TestProcessStateMachine_Lifecycle(t *testing.T) {
	sm := newTestMachine(nil)

	steps := []struct {
		to        ProcessState
		operation string
	}{
		{ProcessStateStarting, "start"},
		{ProcessStateRunning, "start"},
		{ProcessStateCrashed, "exit"},
		{ProcessStateStarting, "restart"},
		{ProcessStateRunning, "restart"},
		{ProcessStateStopping, "stop"},
		{ProcessStateStopped, "stop"},
	}

	for _, step := range steps {
		require.NoError(t, sm.Transition(step.to, step.operation, nil), "transition to %s", step.to)
	}

	history := sm.GetTransitionHistory()
	require.Len(t, history, len(steps))
	assert.Equal(t, ProcessStateStopped, history[0].From)
	assert.Equal(t, ProcessStateStarting, history[0].To)
	assert.Equal(t, "web", history[0].ProcessName)
	assert.Equal(t, ProcessStateStopped, history[len(history)-1].To)
}

func TestProcessStateMachine_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []ProcessState
		to   ProcessState
	}{
		{"stopped to running", nil, ProcessStateRunning},
		{"stopped to crashed", nil, ProcessStateCrashed},
		{"stopped to stopping", nil, ProcessStateStopping},
		{"stopping to crashed", []ProcessState{ProcessStateStarting, ProcessStateRunning, ProcessStateStopping}, ProcessStateCrashed},
		{"crashed to running", []ProcessState{ProcessStateStarting, ProcessStateRunning, ProcessStateCrashed}, ProcessStateRunning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := newTestMachine(nil)
			for _, state := range tt.path {
				require.NoError(t, sm.Transition(state, "setup", nil))
			}

			before := sm.GetCurrentState()
			err := sm.Transition(tt.to, "invalid", nil)
			require.Error(t, err)
			assert.True(t, errors.IsInternalError(err))
			assert.Equal(t, before, sm.GetCurrentState())
		})
	}
}

func TestProcessStateMachine_ListenerCalledAfterTransition(t *testing.T) {
	var mu sync.Mutex
	var seen []ProcessStateTransition

	var sm *ProcessStateMachine
	sm = newTestMachine(func(transition ProcessStateTransition) {
		// reading state from the listener must not deadlock
		assert.Equal(t, transition.To, sm.GetCurrentState())
		mu.Lock()
		seen = append(seen, transition)
		mu.Unlock()
	})

	require.NoError(t, sm.Transition(ProcessStateStarting, "start", nil))
	require.NoError(t, sm.Transition(ProcessStateStopped, "start", assert.AnError))
	assert.Error(t, sm.Transition(ProcessStateRunning, "start", nil))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.Equal(t, ProcessStateStarting, seen[0].To)
	assert.Equal(t, assert.AnError, seen[1].Error)
}

func TestProcessStateMachine_HistoryIsBounded(t *testing.T) {
	sm := newTestMachine(nil)
	sm.SetHistoryLimit(4)

	for i := 0; i < 5; i++ {
		require.NoError(t, sm.Transition(ProcessStateStarting, "start", nil))
		require.NoError(t, sm.Transition(ProcessStateStopped, "start", nil))
	}

	history := sm.GetTransitionHistory()
	require.Len(t, history, 4)
	assert.Equal(t, 10, sm.GetStateInfo().TransitionCount)
	assert.Equal(t, ProcessStateStopped, history[3].To)

	sm.SetHistoryLimit(0)
	assert.Len(t, sm.GetTransitionHistory(), 4)
}

func TestProcessStateMachine_ValidateOperation(t *testing.T) {
	sm := newTestMachine(nil)

	assert.NoError(t, sm.ValidateOperation(OperationStart))
	assert.NoError(t, sm.ValidateOperation(OperationRemove))
	assert.True(t, errors.IsNotRunningError(sm.ValidateOperation(OperationStop)))

	require.NoError(t, sm.Transition(ProcessStateStarting, "start", nil))
	require.NoError(t, sm.Transition(ProcessStateRunning, "start", nil))

	assert.True(t, errors.IsAlreadyRunningError(sm.ValidateOperation(OperationStart)))
	assert.True(t, errors.IsValidationError(sm.ValidateOperation(OperationRemove)))
	assert.NoError(t, sm.ValidateOperation(OperationStop))
	assert.NoError(t, sm.ValidateOperation(OperationRestart))

	require.NoError(t, sm.Transition(ProcessStateCrashed, "exit", nil))
	assert.NoError(t, sm.ValidateOperation(OperationStart))
	assert.NoError(t, sm.ValidateOperation(OperationStop))
	assert.NoError(t, sm.ValidateOperation(OperationRemove))

	assert.True(t, errors.IsValidationError(sm.ValidateOperation("unknown")))
}
