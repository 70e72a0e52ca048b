package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/grovetools/buildhub/errors"
)

// Validate checks semantic constraints the schema cannot express.
func (c *Config) Validate() error {
	if c.Daemon != nil {
		durations := map[string]string{
			"daemon.debounce":         c.Daemon.Debounce,
			"daemon.write_timeout":    c.Daemon.WriteTimeout,
			"daemon.shutdown_timeout": c.Daemon.ShutdownTimeout,
			"daemon.reap_interval":    c.Daemon.ReapInterval,
		}
		for field, value := range durations {
			if err := validateDuration(field, value); err != nil {
				return err
			}
		}
		if c.Daemon.BroadcastDir != "" && !isAbsOrHome(c.Daemon.BroadcastDir) {
			return errors.ConfigInvalid("daemon.broadcast_dir must be absolute").
				WithDetail("value", c.Daemon.BroadcastDir)
		}
	}

	if c.Build != nil {
		if strings.ContainsAny(c.Build.Tool, " \t") {
			return errors.ConfigInvalid("build.tool must be a single binary; use build.extra_args for flags").
				WithDetail("value", c.Build.Tool)
		}
		if c.Build.CacheDir != "" && !isAbsOrHome(c.Build.CacheDir) {
			return errors.ConfigInvalid("build.cache_dir must be absolute").
				WithDetail("value", c.Build.CacheDir)
		}
	}

	if c.Generators != nil {
		for name, cmd := range map[string][]string{"xcodegen": c.Generators.XcodeGen, "tuist": c.Generators.Tuist} {
			if len(cmd) > 0 && strings.TrimSpace(cmd[0]) == "" {
				return errors.ConfigInvalid(fmt.Sprintf("generators.%s must start with a binary name", name))
			}
		}
	}

	return nil
}

func validateDuration(field, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return errors.ConfigInvalid(fmt.Sprintf("%s is not a duration", field)).
			WithDetail("value", value)
	}
	if d <= 0 {
		return errors.ConfigInvalid(fmt.Sprintf("%s must be positive", field)).
			WithDetail("value", value)
	}
	return nil
}

func isAbsOrHome(path string) bool {
	return filepath.IsAbs(path) || strings.HasPrefix(path, "~") || strings.HasPrefix(path, "$")
}
