// Package processconfig loads the YAML ecosystem file describing the
// supervisor and the apps it runs.
package processconfig

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/core-tools/hsu-procsup-go/pkg/errors"
	"github.com/core-tools/hsu-procsup-go/pkg/processmanagement"

	"gopkg.in/yaml.v3"
)

// Control transports
const (
	TransportUDS  = "uds"
	TransportTCP  = "tcp"
	TransportNone = "none"
)

const (
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "console"
	DefaultSocketPath = "/tmp/procsup.sock"
	DefaultTCPAddress = "127.0.0.1:17960"
)

// Config represents the top-level configuration file structure
type Config struct {
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Apps       []AppConfig      `yaml:"apps"`

	// directory of the loaded file; relative cwds resolve against it
	baseDir string
}

// SupervisorConfig represents supervisor-level configuration
type SupervisorConfig struct {
	LogLevel        string                           `yaml:"log_level,omitempty"`
	LogFormat       string                           `yaml:"log_format,omitempty"`
	GracefulTimeout time.Duration                    `yaml:"graceful_timeout,omitempty"`
	KillTimeout     time.Duration                    `yaml:"kill_timeout,omitempty"`
	Restart         processmanagement.RestartOptions `yaml:"restart,omitempty"`
	Control         ControlConfig                    `yaml:"control,omitempty"`
	Metrics         *bool                            `yaml:"metrics,omitempty"` // Pointer to distinguish unset from false
}

// ControlConfig selects where the control API listens
type ControlConfig struct {
	Transport  string `yaml:"transport,omitempty"`
	SocketPath string `yaml:"socket_path,omitempty"`
	TCPAddress string `yaml:"tcp_address,omitempty"`
}

// AppConfig represents a single app entry
type AppConfig struct {
	Name        string                       `yaml:"name"`
	Cwd         string                       `yaml:"cwd,omitempty"`
	Script      string                       `yaml:"script"`
	Args        Args                         `yaml:"args,omitempty"`
	Env         map[string]string            `yaml:"env,omitempty"`
	EnvProfiles map[string]map[string]string `yaml:"env_profiles,omitempty"`
	AutoRestart *bool                        `yaml:"autorestart,omitempty"`
	Enabled     *bool                        `yaml:"enabled,omitempty"`
	Watch       bool                         `yaml:"watch,omitempty"`
}

// LoadConfigFromFile loads and defaults the configuration in filename.
// Validation is left to ValidateConfig.
func LoadConfigFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
	}

	abs, err := filepath.Abs(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to resolve configuration path", err).WithContext("filename", filename)
	}

	config, err := ParseConfig(data, filepath.Dir(abs))
	if err != nil {
		var domainErr *errors.DomainError
		if stderrors.As(err, &domainErr) {
			return nil, domainErr.WithContext("filename", filename)
		}
		return nil, err
	}
	return config, nil
}

// ParseConfig decodes YAML data; baseDir anchors relative app cwds
func ParseConfig(data []byte, baseDir string) (*Config, error) {
	var config Config

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil && !stderrors.Is(err, io.EOF) {
		return nil, errors.NewValidationError("failed to parse YAML configuration", err)
	}

	config.baseDir = baseDir
	setConfigDefaults(&config)
	return &config, nil
}

// BaseDir returns the directory relative app cwds resolve against
func (c *Config) BaseDir() string {
	return c.baseDir
}

// MetricsEnabled reports whether the /metrics route is served
func (c *Config) MetricsEnabled() bool {
	return c.Supervisor.Metrics == nil || *c.Supervisor.Metrics
}

// SupervisorOptions converts the supervisor block; Output is left for the caller to wire
func (c *Config) SupervisorOptions() processmanagement.SupervisorOptions {
	return processmanagement.SupervisorOptions{
		GracefulTimeout: c.Supervisor.GracefulTimeout,
		KillTimeout:     c.Supervisor.KillTimeout,
		Restart:         c.Supervisor.Restart,
	}
}

// setConfigDefaults applies default values to configuration
func setConfigDefaults(config *Config) {
	sup := &config.Supervisor
	if sup.LogLevel == "" {
		sup.LogLevel = DefaultLogLevel
	}
	if sup.LogFormat == "" {
		sup.LogFormat = DefaultLogFormat
	}
	if sup.GracefulTimeout == 0 {
		sup.GracefulTimeout = processmanagement.DefaultGracefulTimeout
	}
	if sup.KillTimeout == 0 {
		sup.KillTimeout = processmanagement.DefaultKillTimeout
	}
	if sup.Restart.BaseDelay == 0 {
		sup.Restart.BaseDelay = processmanagement.DefaultRestartBaseDelay
	}
	if sup.Restart.MaxDelay == 0 {
		sup.Restart.MaxDelay = processmanagement.DefaultRestartMaxDelay
	}
	if sup.Restart.StabilityThreshold == 0 {
		sup.Restart.StabilityThreshold = processmanagement.DefaultRestartStabilityThreshold
	}

	if sup.Control.Transport == "" {
		sup.Control.Transport = TransportUDS
	}
	if sup.Control.SocketPath == "" {
		sup.Control.SocketPath = DefaultSocketPath
	}
	if sup.Control.TCPAddress == "" {
		sup.Control.TCPAddress = DefaultTCPAddress
	}

	for i := range config.Apps {
		app := &config.Apps[i]

		// PM2 restarts by default
		if app.AutoRestart == nil {
			autoRestart := true
			app.AutoRestart = &autoRestart
		}
		if app.Enabled == nil {
			enabled := true
			app.Enabled = &enabled
		}
	}
}

func durationField(name string, value time.Duration) error {
	if value < 0 {
		return errors.NewValidationError(fmt.Sprintf("%s must not be negative", name), nil).
			WithContext("value", value.String())
	}
	return nil
}
