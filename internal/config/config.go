// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"

	"github.com/spf13/viper"
	"mvdan.cc/sh/v3/shell"

	"ocibox/internal/issue"
)

// AppName is the application name, used for env prefixes and lock names.
const AppName = "ocibox"

// Config are the process-wide harness settings.
type Config struct {
	// Engine is the engine preference: "auto", "podman" or "docker".
	Engine string
	// PullAlways forces a pull of pull-based images even when they are
	// present locally.
	PullAlways bool
	// LogLevel is the log verbosity ("debug", "info", "warn", "error").
	LogLevel string

	// ExtraRunArgs are appended to every container launch.
	ExtraRunArgs []string
	// ExtraBuildArgs are appended to every image build.
	ExtraBuildArgs []string
	// ExtraPodCreateArgs are appended to every pod creation.
	ExtraPodCreateArgs []string
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Engine:     "auto",
		PullAlways: true,
		LogLevel:   "info",
	}
}

// Load reads the settings from the environment. Malformed extra argument
// strings are configuration errors.
func Load() (*Config, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault("engine", defaults.Engine)
	v.SetDefault("pull_always", defaults.PullAlways)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("extra_run_args", "")
	v.SetDefault("extra_build_args", "")
	v.SetDefault("extra_pod_create_args", "")

	v.SetEnvPrefix("OCIBOX")
	v.AutomaticEnv()
	// CONTAINER_RUNTIME is the engine preference variable established by
	// other container tooling; OCIBOX_ENGINE wins when both are set.
	if err := v.BindEnv("engine", "OCIBOX_ENGINE", "CONTAINER_RUNTIME"); err != nil {
		return nil, fmt.Errorf("bind engine env: %w", err)
	}

	cfg := &Config{
		Engine:     v.GetString("engine"),
		PullAlways: v.GetBool("pull_always"),
		LogLevel:   v.GetString("log_level"),
	}

	for _, extra := range []struct {
		key    string
		target *[]string
	}{
		{"extra_run_args", &cfg.ExtraRunArgs},
		{"extra_build_args", &cfg.ExtraBuildArgs},
		{"extra_pod_create_args", &cfg.ExtraPodCreateArgs},
	} {
		args, err := splitArgs(v.GetString(extra.key))
		if err != nil {
			return nil, &issue.ConfigurationError{
				Resource: "OCIBOX_" + viperKeyToEnv(extra.key),
				Reason:   err.Error(),
			}
		}
		*extra.target = args
	}

	return cfg, nil
}

// splitArgs splits a shell-quoted argument string into words, so values
// like `--security-opt "seccomp=unconfined"` survive intact.
func splitArgs(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	fields, err := shell.Fields(s, nil)
	if err != nil {
		return nil, fmt.Errorf("split arguments %q: %w", s, err)
	}
	return fields, nil
}

func viperKeyToEnv(key string) string {
	out := make([]byte, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
