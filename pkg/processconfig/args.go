package processconfig

import (
	"fmt"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"
)

// Args holds an app's arguments. YAML accepts either a sequence or a single
// string split with shell-like quoting rules.
type Args []string

func (a *Args) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var line string
		if err := value.Decode(&line); err != nil {
			return err
		}
		parts, err := shlex.Split(line)
		if err != nil {
			return fmt.Errorf("line %d: invalid args %q: %w", value.Line, line, err)
		}
		*a = parts
		return nil

	case yaml.SequenceNode:
		var parts []string
		if err := value.Decode(&parts); err != nil {
			return err
		}
		*a = parts
		return nil

	default:
		return fmt.Errorf("line %d: args must be a string or a list of strings", value.Line)
	}
}
