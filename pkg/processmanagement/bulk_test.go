package processmanagement

import (
	"testing"

	"github.com/core-tools/hsu-procsup-go/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestBulkResult_Aggregation(t *testing.T) {
	result := BulkResult{Operation: OperationStop}
	result.add("web", nil)
	result.add("idle", errors.NewNotRunningError("process is not running", nil))
	result.add("api", errors.NewTerminationTimeoutError("killed", nil))
	result.add("ghost", errors.NewNotFoundError("process not found", nil))

	assert.True(t, result.HasFailures())
	assert.Len(t, result.Errors(), 3)

	failed := result.Failed()
	require.Len(t, failed, 2)
	assert.Equal(t, "api", failed[0].Name)
	assert.Equal(t, "ghost", failed[1].Name)

	err := result.Err()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Contains(t, err.Error(), "api: ")
	assert.Contains(t, err.Error(), "ghost: ")
	assert.NotContains(t, err.Error(), "idle")
	assert.True(t, errors.IsTerminationTimeoutError(multierr.Errors(err)[0]))

	_, ok := result.Lookup("missing")
	assert.False(t, ok)
}

func TestBulkResult_Empty(t *testing.T) {
	result := BulkResult{}
	assert.False(t, result.HasFailures())
	assert.NoError(t, result.Err())
	assert.Empty(t, result.Errors())
}

func TestBulkEntry_Fatal(t *testing.T) {
	assert.False(t, BulkEntry{Name: "a"}.Fatal())
	assert.False(t, BulkEntry{Name: "a", Err: errors.NewAlreadyRunningError("running", nil)}.Fatal())
	assert.False(t, BulkEntry{Name: "a", Err: errors.NewNotRunningError("stopped", nil)}.Fatal())
	assert.True(t, BulkEntry{Name: "a", Err: errors.NewSpawnError("spawn", nil)}.Fatal())
}

func TestBulkResult_ErrReportsEveryKind(t *testing.T) {
	result := BulkResult{Operation: OperationStart}
	result.add("web", errors.NewSpawnError("failed to start process", nil))
	result.add("api", errors.NewNotFoundError("process not found", nil))
	result.add("worker", nil)

	err := result.Err()
	require.Error(t, err)
	assert.True(t, errors.IsSpawnError(err))
	assert.True(t, errors.IsNotFoundError(err))
	assert.False(t, errors.IsValidationError(err))
}
