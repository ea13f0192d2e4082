package processconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/core-tools/hsu-procsup-go/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "procsup.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		validate    func(*testing.T, *Config)
	}{
		{
			name: "valid comprehensive config",
			configYAML: `
supervisor:
  log_level: debug
  log_format: json
  graceful_timeout: 3s
  kill_timeout: 1s
  restart:
    base_delay: 500ms
    max_delay: 10s
    stability_threshold: 30s
  control:
    transport: tcp
    tcp_address: 127.0.0.1:9000
  metrics: false
apps:
  - name: web
    cwd: ./arkraft-web
    script: pnpm
    args: "dev -p 3000"
    env:
      NODE_ENV: development
    env_profiles:
      docker:
        API_HOST: api
  - name: api
    script: uvicorn
    args: ["main:app", "--port", "8000"]
    autorestart: false
    watch: true
`,
			validate: func(t *testing.T, config *Config) {
				sup := config.Supervisor
				assert.Equal(t, "debug", sup.LogLevel)
				assert.Equal(t, "json", sup.LogFormat)
				assert.Equal(t, 3*time.Second, sup.GracefulTimeout)
				assert.Equal(t, 1*time.Second, sup.KillTimeout)
				assert.Equal(t, 500*time.Millisecond, sup.Restart.BaseDelay)
				assert.Equal(t, 10*time.Second, sup.Restart.MaxDelay)
				assert.Equal(t, 30*time.Second, sup.Restart.StabilityThreshold)
				assert.Equal(t, TransportTCP, sup.Control.Transport)
				assert.Equal(t, "127.0.0.1:9000", sup.Control.TCPAddress)
				assert.False(t, config.MetricsEnabled())

				require.Len(t, config.Apps, 2)
				web := config.Apps[0]
				assert.Equal(t, "web", web.Name)
				assert.Equal(t, Args{"dev", "-p", "3000"}, web.Args)
				assert.Equal(t, map[string]string{"NODE_ENV": "development"}, web.Env)
				assert.True(t, *web.AutoRestart)

				api := config.Apps[1]
				assert.Equal(t, Args{"main:app", "--port", "8000"}, api.Args)
				assert.False(t, *api.AutoRestart)
				assert.True(t, api.Watch)
			},
		},
		{
			name: "defaults applied",
			configYAML: `
apps:
  - name: worker
    script: ./worker.sh
`,
			validate: func(t *testing.T, config *Config) {
				sup := config.Supervisor
				assert.Equal(t, DefaultLogLevel, sup.LogLevel)
				assert.Equal(t, DefaultLogFormat, sup.LogFormat)
				assert.Equal(t, 10*time.Second, sup.GracefulTimeout)
				assert.Equal(t, 5*time.Second, sup.KillTimeout)
				assert.Equal(t, 1*time.Second, sup.Restart.BaseDelay)
				assert.Equal(t, 30*time.Second, sup.Restart.MaxDelay)
				assert.Equal(t, 60*time.Second, sup.Restart.StabilityThreshold)
				assert.Equal(t, TransportUDS, sup.Control.Transport)
				assert.Equal(t, DefaultSocketPath, sup.Control.SocketPath)
				assert.True(t, config.MetricsEnabled())

				require.Len(t, config.Apps, 1)
				require.NotNil(t, config.Apps[0].AutoRestart)
				assert.True(t, *config.Apps[0].AutoRestart)
				require.NotNil(t, config.Apps[0].Enabled)
				assert.True(t, *config.Apps[0].Enabled)
			},
		},
		{
			name:       "empty file",
			configYAML: "",
			validate: func(t *testing.T, config *Config) {
				assert.Empty(t, config.Apps)
				assert.Equal(t, DefaultLogLevel, config.Supervisor.LogLevel)
			},
		},
		{
			name: "quoted args string",
			configYAML: `
apps:
  - name: echo
    script: echo
    args: "--greeting 'hello world' \"a b\""
`,
			validate: func(t *testing.T, config *Config) {
				assert.Equal(t, Args{"--greeting", "hello world", "a b"}, config.Apps[0].Args)
			},
		},
		{
			name: "unknown field",
			configYAML: `
apps:
  - name: web
    script: pnpm
    instances: 4
`,
			expectError: true,
		},
		{
			name: "args mapping",
			configYAML: `
apps:
  - name: web
    script: pnpm
    args:
      port: 3000
`,
			expectError: true,
		},
		{
			name: "unterminated quote in args",
			configYAML: `
apps:
  - name: web
    script: pnpm
    args: "dev 'oops"
`,
			expectError: true,
		},
		{
			name: "invalid duration",
			configYAML: `
supervisor:
  graceful_timeout: soon
`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.configYAML)

			config, err := LoadConfigFromFile(path)
			if tt.expectError {
				require.Error(t, err)
				assert.True(t, errors.IsValidationError(err))
				return
			}

			require.NoError(t, err)
			require.NotNil(t, config)
			if tt.validate != nil {
				tt.validate(t, config)
			}
		})
	}
}

func TestLoadConfigFromFile_Missing(t *testing.T) {
	_, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsIOError(err))
}

func TestLoadConfigFromFile_BaseDir(t *testing.T) {
	path := writeConfig(t, "apps: []\n")
	config, err := LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Dir(path), config.BaseDir())
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		contains    []string
	}{
		{
			name: "valid",
			configYAML: `
apps:
  - name: web
    script: pnpm
  - name: api
    script: uvicorn
`,
		},
		{
			name:       "no apps is valid",
			configYAML: "supervisor:\n  log_level: warn\n",
		},
		{
			name: "duplicate names",
			configYAML: `
apps:
  - name: web
    script: pnpm
  - name: web
    script: node
`,
			expectError: true,
			contains:    []string{"duplicate app name 'web'"},
		},
		{
			name: "missing script and bad name",
			configYAML: `
apps:
  - name: "bad name"
    script: pnpm
  - name: api
`,
			expectError: true,
			contains:    []string{"invalid app name at index 0", "app at index 1 has no script"},
		},
		{
			name: "bad log level",
			configYAML: `
supervisor:
  log_level: verbose
`,
			expectError: true,
			contains:    []string{"invalid log level: verbose"},
		},
		{
			name: "bad log format",
			configYAML: `
supervisor:
  log_format: xml
`,
			expectError: true,
			contains:    []string{"invalid log format: xml"},
		},
		{
			name: "bad transport",
			configYAML: `
supervisor:
  control:
    transport: grpc
`,
			expectError: true,
			contains:    []string{"invalid control transport: grpc"},
		},
		{
			name: "transport none",
			configYAML: `
supervisor:
  control:
    transport: none
`,
		},
		{
			name: "negative duration",
			configYAML: `
supervisor:
  kill_timeout: -1s
`,
			expectError: true,
			contains:    []string{"kill_timeout must not be negative"},
		},
		{
			name: "max delay below base delay",
			configYAML: `
supervisor:
  restart:
    base_delay: 5s
    max_delay: 1s
`,
			expectError: true,
			contains:    []string{"restart.max_delay must not be below restart.base_delay"},
		},
		{
			name: "bad env name in profile",
			configYAML: `
apps:
  - name: web
    script: pnpm
    env_profiles:
      docker:
        "A=B": x
`,
			expectError: true,
			contains:    []string{"invalid environment variable name"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := ParseConfig([]byte(tt.configYAML), t.TempDir())
			require.NoError(t, err)

			err = ValidateConfig(config)
			if !tt.expectError {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, errors.IsValidationError(err))
			for _, fragment := range tt.contains {
				assert.Contains(t, err.Error(), fragment)
			}
		})
	}
}

func TestValidateConfig_Nil(t *testing.T) {
	err := ValidateConfig(nil)
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestValidateConfig_ReportsEveryProblem(t *testing.T) {
	config, err := ParseConfig([]byte(`
supervisor:
  log_level: loud
apps:
  - name: web
  - name: web
    script: pnpm
`), "")
	require.NoError(t, err)

	err = ValidateConfig(config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level: loud")
	assert.Contains(t, err.Error(), "app at index 0 has no script")
	assert.Contains(t, err.Error(), "duplicate app name 'web'")
}

func TestSupervisorOptions(t *testing.T) {
	config, err := ParseConfig([]byte(`
supervisor:
  graceful_timeout: 2s
  kill_timeout: 1s
  restart:
    base_delay: 100ms
    max_delay: 1s
    stability_threshold: 5s
`), "")
	require.NoError(t, err)

	options := config.SupervisorOptions()
	assert.Equal(t, 2*time.Second, options.GracefulTimeout)
	assert.Equal(t, 1*time.Second, options.KillTimeout)
	assert.Equal(t, 100*time.Millisecond, options.Restart.BaseDelay)
	assert.Equal(t, 1*time.Second, options.Restart.MaxDelay)
	assert.Equal(t, 5*time.Second, options.Restart.StabilityThreshold)
	assert.Nil(t, options.Output)
}
