package processconfig

import (
	"path/filepath"
	"testing"

	"github.com/core-tools/hsu-procsup-go/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ecosystemYAML = `
apps:
  - name: web
    cwd: ./arkraft-web
    script: pnpm
    args: "dev -p 3000"
    env:
      NODE_ENV: development
      API_HOST: localhost
    env_profiles:
      docker:
        API_HOST: api
  - name: api
    cwd: /srv/api
    script: uvicorn
    args: ["main:app"]
    autorestart: false
    env_profiles:
      staging:
        LOG_LEVEL: debug
  - name: docs
    script: mkdocs
    enabled: false
`

func parseEcosystem(t *testing.T, baseDir string) *Config {
	t.Helper()
	config, err := ParseConfig([]byte(ecosystemYAML), baseDir)
	require.NoError(t, err)
	require.NoError(t, ValidateConfig(config))
	return config
}

func TestSpecs_Defaults(t *testing.T) {
	baseDir := t.TempDir()
	config := parseEcosystem(t, baseDir)

	specs, err := config.Specs("", nil)
	require.NoError(t, err)
	require.Len(t, specs, 2, "disabled apps are skipped")

	web := specs[0]
	assert.Equal(t, "web", web.Name)
	assert.Equal(t, filepath.Join(baseDir, "arkraft-web"), web.WorkingDirectory)
	assert.Equal(t, "pnpm", web.Command)
	assert.Equal(t, []string{"dev", "-p", "3000"}, web.Arguments)
	assert.Equal(t, map[string]string{"NODE_ENV": "development", "API_HOST": "localhost"}, web.Environment)
	assert.True(t, web.AutoRestart)

	api := specs[1]
	assert.Equal(t, "/srv/api", api.WorkingDirectory)
	assert.False(t, api.AutoRestart)
	assert.Empty(t, api.Environment)
}

func TestSpecs_EmptyCwdUsesBaseDir(t *testing.T) {
	baseDir := t.TempDir()
	config, err := ParseConfig([]byte("apps:\n  - name: a\n    script: node\n"), baseDir)
	require.NoError(t, err)

	specs, err := config.Specs("", nil)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, baseDir, specs[0].WorkingDirectory)
}

func TestSpecs_Profile(t *testing.T) {
	config := parseEcosystem(t, t.TempDir())

	specs, err := config.Specs("docker", nil)
	require.NoError(t, err)
	require.Len(t, specs, 2)

	assert.Equal(t, "api", specs[0].Environment["API_HOST"], "profile overrides the base env")
	assert.Equal(t, "development", specs[0].Environment["NODE_ENV"])
	assert.Empty(t, specs[1].Environment, "apps without the profile keep their base env")
}

func TestSpecs_UnknownProfile(t *testing.T) {
	config := parseEcosystem(t, t.TempDir())

	_, err := config.Specs("production", nil)
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
	assert.Contains(t, err.Error(), "unknown environment profile: production")
}

func TestSpecs_Only(t *testing.T) {
	config := parseEcosystem(t, t.TempDir())

	t.Run("keeps file order", func(t *testing.T) {
		specs, err := config.Specs("", []string{"api", "web"})
		require.NoError(t, err)
		require.Len(t, specs, 2)
		assert.Equal(t, "web", specs[0].Name)
		assert.Equal(t, "api", specs[1].Name)
	})

	t.Run("includes disabled apps named explicitly", func(t *testing.T) {
		specs, err := config.Specs("", []string{"docs"})
		require.NoError(t, err)
		require.Len(t, specs, 1)
		assert.Equal(t, "docs", specs[0].Name)
	})

	t.Run("unknown names", func(t *testing.T) {
		_, err := config.Specs("", []string{"web", "worker", "cron"})
		require.Error(t, err)
		assert.True(t, errors.IsValidationError(err))
		assert.Contains(t, err.Error(), "unknown app names: cron, worker")
	})
}

func TestSpecs_DoNotAliasConfig(t *testing.T) {
	config := parseEcosystem(t, t.TempDir())

	specs, err := config.Specs("", nil)
	require.NoError(t, err)
	specs[0].Arguments[0] = "changed"
	specs[0].Environment["NODE_ENV"] = "changed"

	assert.Equal(t, "dev", config.Apps[0].Args[0])
	assert.Equal(t, "development", config.Apps[0].Env["NODE_ENV"])
}

func TestProfiles(t *testing.T) {
	config := parseEcosystem(t, t.TempDir())
	assert.Equal(t, []string{"docker", "staging"}, config.Profiles())
}

func TestResolve(t *testing.T) {
	app := AppConfig{
		Env:         map[string]string{"A": "1", "B": "2"},
		EnvProfiles: map[string]map[string]string{"p": {"B": "3", "C": "4"}},
	}

	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, app.Resolve(""))
	assert.Equal(t, map[string]string{"A": "1", "B": "3", "C": "4"}, app.Resolve("p"))
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, app.Resolve("other"))
}
