package main

import (
	"fmt"
	"testing"
	"time"

	"github.com/core-tools/hsu-procsup-go/pkg/errors"
	"github.com/core-tools/hsu-procsup-go/pkg/processmanagement"

	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"success", nil, exitOK},
		{"usage", &usageError{message: "bad"}, exitUsage},
		{"connection", errors.NewIOError("control request failed", nil), exitUsage},
		{"not found", errors.NewNotFoundError("process not found", nil), exitNotFound},
		{"not running", errors.NewNotRunningError("not running", nil), exitFailed},
		{"termination timeout", errors.NewTerminationTimeoutError("killed", nil), exitFailed},
		{"partial bulk", &partialError{failed: 1, total: 3}, exitPartialBulk},
		{"whole bulk failed", &partialError{failed: 2, total: 2}, exitFailed},
		{"wrapped not found", fmt.Errorf("status: %w", errors.NewNotFoundError("x", nil)), exitNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, exitCode(tt.err))
		})
	}
}

func TestReportBulk(t *testing.T) {
	err := reportBulk(processmanagement.BulkResult{
		Operation: processmanagement.OperationStop,
		Entries: []processmanagement.BulkEntry{
			{Name: "web"},
			{Name: "api", Err: errors.NewNotRunningError("not running", nil)},
		},
	})
	assert.NoError(t, err)

	err = reportBulk(processmanagement.BulkResult{
		Operation: processmanagement.OperationStart,
		Entries: []processmanagement.BulkEntry{
			{Name: "web"},
			{Name: "api", Err: errors.NewSpawnError("failed to spawn", nil)},
		},
	})
	assert.Equal(t, exitPartialBulk, exitCode(err))
}

func TestOperationCommand_RequiresTarget(t *testing.T) {
	command := &operationCommand{operation: processmanagement.OperationStart}
	assert.Equal(t, exitUsage, exitCode(command.Execute(nil)))

	command.All = true
	assert.Equal(t, exitUsage, exitCode(command.Execute([]string{"web"})))
}

func TestDeleteCommand_RequiresOneName(t *testing.T) {
	command := &deleteCommand{}
	assert.Equal(t, exitUsage, exitCode(command.Execute(nil)))
	assert.Equal(t, exitUsage, exitCode(command.Execute([]string{"web", "api"})))
}

func TestStatusColumns(t *testing.T) {
	now := time.Now()
	code := 1

	running := processmanagement.ProcessStatus{
		State:     processmanagement.ProcessStateRunning,
		PID:       42,
		StartedAt: now.Add(-90 * time.Second),
	}
	assert.Equal(t, "42", pidColumn(running.PID))
	assert.Equal(t, "1m30s", uptimeColumn(running, now))
	assert.Equal(t, "-", exitColumn(running))
	assert.Equal(t, "-", nextRestartColumn(running))

	crashed := processmanagement.ProcessStatus{
		State:            processmanagement.ProcessStateCrashed,
		LastExitCode:     &code,
		RestartScheduled: true,
		NextRestartDelay: 2 * time.Second,
	}
	assert.Equal(t, "-", pidColumn(crashed.PID))
	assert.Equal(t, "-", uptimeColumn(crashed, now))
	assert.Equal(t, "1", exitColumn(crashed))
	assert.Equal(t, "in 2s", nextRestartColumn(crashed))

	crashed.LastSignal = "SIGKILL"
	assert.Equal(t, "SIGKILL", exitColumn(crashed))
}
