package managedprocess

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/core-tools/hsu-procsup-go/pkg/errors"
)

// ProcessSpec describes one supervised process. It is immutable once registered.
type ProcessSpec struct {
	Name             string            `yaml:"name" json:"name"`
	WorkingDirectory string            `yaml:"working_directory,omitempty" json:"workingDirectory,omitempty"`
	Command          string            `yaml:"command" json:"command"`
	Arguments        []string          `yaml:"arguments,omitempty" json:"arguments,omitempty"`
	Environment      map[string]string `yaml:"environment,omitempty" json:"environment,omitempty"`
	AutoRestart      bool              `yaml:"auto_restart" json:"autoRestart"`

	// Watch is accepted for compatibility with ecosystem files; file watching is not implemented
	Watch bool `yaml:"watch,omitempty" json:"watch,omitempty"`
}

var processNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateProcessName checks that a name is usable as a handle key and in URLs
func ValidateProcessName(name string) error {
	if name == "" {
		return errors.NewValidationError("process name cannot be empty", nil)
	}
	if len(name) > 128 {
		return errors.NewValidationError("process name is too long", nil).
			WithContext("name", name).
			WithContext("max_length", 128)
	}
	if !processNamePattern.MatchString(name) {
		return errors.NewValidationError(
			fmt.Sprintf("invalid process name '%s'", name),
			nil,
		).WithContext("allowed", "letters, digits, '.', '_', '-'; must start with a letter or digit")
	}
	return nil
}

// ValidateProcessSpec validates the fields required to spawn the process
func ValidateProcessSpec(spec ProcessSpec) error {
	if err := ValidateProcessName(spec.Name); err != nil {
		return err
	}
	if strings.TrimSpace(spec.Command) == "" {
		return errors.NewValidationError("command cannot be empty", nil).WithContext("name", spec.Name)
	}
	for key := range spec.Environment {
		if key == "" || strings.ContainsAny(key, "=\x00") {
			return errors.NewValidationError(
				fmt.Sprintf("invalid environment variable name '%s'", key),
				nil,
			).WithContext("name", spec.Name)
		}
	}
	return nil
}

// Clone returns a deep copy so callers cannot mutate registered specs
func (spec ProcessSpec) Clone() ProcessSpec {
	clone := spec
	if spec.Arguments != nil {
		clone.Arguments = append([]string(nil), spec.Arguments...)
	}
	if spec.Environment != nil {
		clone.Environment = make(map[string]string, len(spec.Environment))
		for k, v := range spec.Environment {
			clone.Environment[k] = v
		}
	}
	return clone
}

// CommandLine renders the command for diagnostics
func (spec ProcessSpec) CommandLine() string {
	parts := append([]string{spec.Command}, spec.Arguments...)
	return strings.Join(parts, " ")
}

// MergeEnvironment overlays overrides onto base ("KEY=VALUE" entries).
// Inherited variables keep their position; new variables are appended in key order.
func MergeEnvironment(base []string, overrides map[string]string) []string {
	result := make([]string, 0, len(base)+len(overrides))
	applied := make(map[string]bool, len(overrides))

	for _, entry := range base {
		key := entry
		if i := strings.IndexByte(entry, '='); i >= 0 {
			key = entry[:i]
		}
		if applied[key] {
			// drop duplicate inherited keys once overridden
			continue
		}
		if value, ok := overrides[key]; ok {
			result = append(result, key+"="+value)
			applied[key] = true
			continue
		}
		result = append(result, entry)
	}

	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		if !applied[key] {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		result = append(result, key+"="+overrides[key])
	}

	return result
}
