package managedprocess

import (
	"testing"

	"github.com/core-tools/hsu-procsup-go/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateProcessName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"web", true},
		{"agent-manager", true},
		{"arq_ui.2", true},
		{"", false},
		{"-leading", false},
		{"has space", false},
		{"slash/name", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProcessName(tt.name)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, errors.IsValidationError(err))
			}
		})
	}
}

func TestValidateProcessSpec(t *testing.T) {
	assert.NoError(t, ValidateProcessSpec(ProcessSpec{Name: "web", Command: "pnpm"}))

	err := ValidateProcessSpec(ProcessSpec{Name: "web", Command: "  "})
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))

	err = ValidateProcessSpec(ProcessSpec{Name: "web", Command: "pnpm", Environment: map[string]string{"A=B": "x"}})
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestProcessSpec_CloneIsDeep(t *testing.T) {
	spec := ProcessSpec{
		Name:        "api",
		Command:     "uv",
		Arguments:   []string{"run", "uvicorn"},
		Environment: map[string]string{"PYTHONUNBUFFERED": "1"},
	}

	clone := spec.Clone()
	clone.Arguments[0] = "changed"
	clone.Environment["PYTHONUNBUFFERED"] = "0"

	assert.Equal(t, "run", spec.Arguments[0])
	assert.Equal(t, "1", spec.Environment["PYTHONUNBUFFERED"])
	assert.Equal(t, "uv run uvicorn", spec.CommandLine())
}

func TestMergeEnvironment(t *testing.T) {
	base := []string{"PATH=/usr/bin", "HOME=/root", "NODE_ENV=production"}
	merged := MergeEnvironment(base, map[string]string{
		"NODE_ENV":   "development",
		"ZETA":       "z",
		"LOCAL_MODE": "true",
	})

	assert.Equal(t, []string{
		"PATH=/usr/bin",
		"HOME=/root",
		"NODE_ENV=development",
		"LOCAL_MODE=true",
		"ZETA=z",
	}, merged)
}

func TestMergeEnvironment_DuplicateInheritedKeys(t *testing.T) {
	base := []string{"A=1", "B=2", "A=3"}
	merged := MergeEnvironment(base, map[string]string{"A": "x"})
	assert.Equal(t, []string{"A=x", "B=2"}, merged)

	// no overrides leaves base untouched (duplicates included)
	assert.Equal(t, base, MergeEnvironment(base, nil))
}
