package processconfig

import (
	"fmt"
	"strings"

	"github.com/core-tools/hsu-procsup-go/pkg/errors"
	"github.com/core-tools/hsu-procsup-go/pkg/managedprocess"
)

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"console", "json"}
	validTransports = []string{TransportUDS, TransportTCP, TransportNone}
)

// ValidateConfig validates the entire configuration structure and reports
// every problem found, not only the first.
func ValidateConfig(config *Config) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	problems := errors.NewErrorCollection()
	problems.Add(validateSupervisorConfig(&config.Supervisor))
	problems.Add(validateAppsConfig(config.Apps))

	if problems.HasErrors() {
		return errors.NewValidationError("invalid configuration", problems.ToError())
	}
	return nil
}

func validateSupervisorConfig(config *SupervisorConfig) error {
	problems := errors.NewErrorCollection()

	if !contains(validLogLevels, config.LogLevel) {
		problems.Add(errors.NewValidationError(
			fmt.Sprintf("invalid log level: %s", config.LogLevel),
			nil,
		).WithContext("valid_levels", strings.Join(validLogLevels, ", ")))
	}
	if !contains(validLogFormats, config.LogFormat) {
		problems.Add(errors.NewValidationError(
			fmt.Sprintf("invalid log format: %s", config.LogFormat),
			nil,
		).WithContext("valid_formats", strings.Join(validLogFormats, ", ")))
	}

	problems.Add(durationField("graceful_timeout", config.GracefulTimeout))
	problems.Add(durationField("kill_timeout", config.KillTimeout))
	problems.Add(durationField("restart.base_delay", config.Restart.BaseDelay))
	problems.Add(durationField("restart.max_delay", config.Restart.MaxDelay))
	problems.Add(durationField("restart.stability_threshold", config.Restart.StabilityThreshold))
	if config.Restart.BaseDelay > 0 && config.Restart.MaxDelay > 0 && config.Restart.MaxDelay < config.Restart.BaseDelay {
		problems.Add(errors.NewValidationError("restart.max_delay must not be below restart.base_delay", nil).
			WithContext("base_delay", config.Restart.BaseDelay.String()).
			WithContext("max_delay", config.Restart.MaxDelay.String()))
	}

	switch config.Control.Transport {
	case TransportUDS:
		if config.Control.SocketPath == "" {
			problems.Add(errors.NewValidationError("control.socket_path is required for the uds transport", nil))
		}
	case TransportTCP:
		if config.Control.TCPAddress == "" {
			problems.Add(errors.NewValidationError("control.tcp_address is required for the tcp transport", nil))
		}
	case TransportNone:
	default:
		problems.Add(errors.NewValidationError(
			fmt.Sprintf("invalid control transport: %s", config.Control.Transport),
			nil,
		).WithContext("valid_transports", strings.Join(validTransports, ", ")))
	}

	return problems.ToError()
}

func validateAppsConfig(apps []AppConfig) error {
	problems := errors.NewErrorCollection()

	// Check for duplicate names
	seenNames := make(map[string]int)
	for i, app := range apps {
		if err := managedprocess.ValidateProcessName(app.Name); err != nil {
			problems.Add(errors.NewValidationError(
				fmt.Sprintf("invalid app name at index %d", i),
				err,
			).WithContext("name", app.Name))
		} else if prevIndex, exists := seenNames[app.Name]; exists {
			problems.Add(errors.NewValidationError(
				fmt.Sprintf("duplicate app name '%s' found at indices %d and %d", app.Name, prevIndex, i),
				nil,
			))
		} else {
			seenNames[app.Name] = i
		}

		if strings.TrimSpace(app.Script) == "" {
			problems.Add(errors.NewValidationError(
				fmt.Sprintf("app at index %d has no script", i),
				nil,
			).WithContext("name", app.Name))
		}

		problems.Add(validateEnvironment(app.Name, "env", app.Env))
		for profile, env := range app.EnvProfiles {
			if profile == "" {
				problems.Add(errors.NewValidationError("environment profile name cannot be empty", nil).
					WithContext("name", app.Name))
				continue
			}
			problems.Add(validateEnvironment(app.Name, "env_profiles."+profile, env))
		}
	}

	return problems.ToError()
}

func validateEnvironment(app, field string, env map[string]string) error {
	for key := range env {
		if key == "" || strings.ContainsAny(key, "=\x00") {
			return errors.NewValidationError(
				fmt.Sprintf("invalid environment variable name %q", key),
				nil,
			).WithContext("name", app).WithContext("field", field)
		}
	}
	return nil
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
