package processconfig

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/core-tools/hsu-procsup-go/pkg/errors"
	"github.com/core-tools/hsu-procsup-go/pkg/managedprocess"
)

// Resolve returns the app's base env with the named profile overlaid.
// An empty profile, or one this app does not define, yields the base env.
func (a AppConfig) Resolve(profile string) map[string]string {
	env := make(map[string]string, len(a.Env))
	for k, v := range a.Env {
		env[k] = v
	}
	if profile == "" {
		return env
	}
	for k, v := range a.EnvProfiles[profile] {
		env[k] = v
	}
	return env
}

// Profiles lists every environment profile defined by any app, sorted
func (c *Config) Profiles() []string {
	seen := make(map[string]struct{})
	for _, app := range c.Apps {
		for profile := range app.EnvProfiles {
			seen[profile] = struct{}{}
		}
	}
	profiles := make([]string, 0, len(seen))
	for profile := range seen {
		profiles = append(profiles, profile)
	}
	sort.Strings(profiles)
	return profiles
}

// Specs converts the apps into process specs in file order. profile selects
// an environment profile and must be defined by at least one app. A non-empty
// only restricts the result to the named apps, which must all exist; an app
// named in only is included even when disabled.
func (c *Config) Specs(profile string, only []string) ([]managedprocess.ProcessSpec, error) {
	if profile != "" && !contains(c.Profiles(), profile) {
		return nil, errors.NewValidationError(
			fmt.Sprintf("unknown environment profile: %s", profile),
			nil,
		).WithContext("known_profiles", strings.Join(c.Profiles(), ", "))
	}

	selected := make(map[string]bool, len(only))
	for _, name := range only {
		selected[name] = false
	}
	for _, app := range c.Apps {
		if _, ok := selected[app.Name]; ok {
			selected[app.Name] = true
		}
	}
	var unknown []string
	for name, found := range selected {
		if !found {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, errors.NewValidationError(
			fmt.Sprintf("unknown app names: %s", strings.Join(unknown, ", ")),
			nil,
		)
	}

	specs := make([]managedprocess.ProcessSpec, 0, len(c.Apps))
	for _, app := range c.Apps {
		if len(only) > 0 {
			if !selected[app.Name] {
				continue
			}
		} else if app.Enabled != nil && !*app.Enabled {
			continue
		}
		specs = append(specs, c.spec(app, profile))
	}
	return specs, nil
}

func (c *Config) spec(app AppConfig, profile string) managedprocess.ProcessSpec {
	cwd := app.Cwd
	switch {
	case cwd == "":
		cwd = c.baseDir
	case !filepath.IsAbs(cwd) && c.baseDir != "":
		cwd = filepath.Join(c.baseDir, cwd)
	}

	autoRestart := app.AutoRestart == nil || *app.AutoRestart

	return managedprocess.ProcessSpec{
		Name:             app.Name,
		WorkingDirectory: cwd,
		Command:          app.Script,
		Arguments:        append([]string(nil), app.Args...),
		Environment:      app.Resolve(profile),
		AutoRestart:      autoRestart,
		Watch:            app.Watch,
	}
}
