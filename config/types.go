package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// DaemonConfig holds settings for the daemon process itself.
type DaemonConfig struct {
	BroadcastDir    string `yaml:"broadcast_dir,omitempty" toml:"broadcast_dir,omitempty" jsonschema:"description=Directory holding per-project broadcast sockets (default: runtime dir)"`
	Debounce        string `yaml:"debounce,omitempty" toml:"debounce,omitempty" jsonschema:"description=Quiet period before a burst of file events triggers a build (default: 300ms)"`
	WriteTimeout    string `yaml:"write_timeout,omitempty" toml:"write_timeout,omitempty" jsonschema:"description=Per-client broadcast write deadline; slower clients are dropped (default: 2s)"`
	ShutdownTimeout string `yaml:"shutdown_timeout,omitempty" toml:"shutdown_timeout,omitempty" jsonschema:"description=Grace period for in-flight requests on shutdown (default: 5s)"`
	ReapInterval    string `yaml:"reap_interval,omitempty" toml:"reap_interval,omitempty" jsonschema:"description=How often to release projects whose editors have exited (default: 5s)"`
	CompileOnOpen   *bool  `yaml:"compile_on_open,omitempty" toml:"compile_on_open,omitempty" jsonschema:"description=Generate the compile database when a project without one is opened (default: true)"`
	ServerConfig    *bool  `yaml:"server_config,omitempty" toml:"server_config,omitempty" jsonschema:"description=Write buildServer.json for the language server when a project is opened (default: true)"`
}

// BuildConfig holds settings for the external build tool.
type BuildConfig struct {
	Tool          string   `yaml:"tool,omitempty" toml:"tool,omitempty" jsonschema:"description=Build tool binary (default: xcodebuild)"`
	ExtraArgs     []string `yaml:"extra_args,omitempty" toml:"extra_args,omitempty" jsonschema:"description=Arguments appended to every build invocation"`
	CacheDir      string   `yaml:"cache_dir,omitempty" toml:"cache_dir,omitempty" jsonschema:"description=Root for build products (default: cache dir/builds)"`
	ServerCommand string   `yaml:"server_command,omitempty" toml:"server_command,omitempty" jsonschema:"description=Language server binary recorded in buildServer.json (default: xcode-build-server)"`
}

// GeneratorsConfig overrides the commands used to regenerate projects.
type GeneratorsConfig struct {
	XcodeGen []string `yaml:"xcodegen,omitempty" toml:"xcodegen,omitempty" jsonschema:"description=Command regenerating XcodeGen projects (default: xcodegen generate -c)"`
	Tuist    []string `yaml:"tuist,omitempty" toml:"tuist,omitempty" jsonschema:"description=Command regenerating Tuist projects (default: tuist generate --no-open)"`
}

// WatchConfig tunes the filesystem watch.
type WatchConfig struct {
	Ignore []string `yaml:"ignore,omitempty" toml:"ignore,omitempty" jsonschema:"description=Additional ignore patterns in .dockerignore syntax relative to the project root"`
}

// Config represents buildhub.toml / buildhub.yml.
type Config struct {
	Version    string            `yaml:"version,omitempty" toml:"version,omitempty" jsonschema:"description=Configuration version (e.g. 1.0)"`
	Daemon     *DaemonConfig     `yaml:"daemon,omitempty" toml:"daemon,omitempty" jsonschema:"description=Daemon process settings"`
	Build      *BuildConfig      `yaml:"build,omitempty" toml:"build,omitempty" jsonschema:"description=Build tool settings"`
	Generators *GeneratorsConfig `yaml:"generators,omitempty" toml:"generators,omitempty" jsonschema:"description=Project generator commands"`
	Watch      *WatchConfig      `yaml:"watch,omitempty" toml:"watch,omitempty" jsonschema:"description=Filesystem watch settings"`

	// Extensions captures all other top-level keys, such as logging.
	Extensions map[string]interface{} `yaml:",inline" toml:"-" jsonschema:"-"`
}

// Default returns a configuration with every section populated.
func Default() *Config {
	c := &Config{}
	c.SetDefaults()
	return c
}

// SetDefaults fills in unset values.
func (c *Config) SetDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.Daemon == nil {
		c.Daemon = &DaemonConfig{}
	}
	if c.Daemon.Debounce == "" {
		c.Daemon.Debounce = "300ms"
	}
	if c.Daemon.WriteTimeout == "" {
		c.Daemon.WriteTimeout = "2s"
	}
	if c.Daemon.ShutdownTimeout == "" {
		c.Daemon.ShutdownTimeout = "5s"
	}
	if c.Daemon.ReapInterval == "" {
		c.Daemon.ReapInterval = "5s"
	}
	if c.Daemon.CompileOnOpen == nil {
		trueVal := true
		c.Daemon.CompileOnOpen = &trueVal
	}
	if c.Daemon.ServerConfig == nil {
		trueVal := true
		c.Daemon.ServerConfig = &trueVal
	}
	if c.Build == nil {
		c.Build = &BuildConfig{}
	}
	if c.Build.Tool == "" {
		c.Build.Tool = "xcodebuild"
	}
	if c.Build.ServerCommand == "" {
		c.Build.ServerCommand = "xcode-build-server"
	}
	if c.Generators == nil {
		c.Generators = &GeneratorsConfig{}
	}
	if len(c.Generators.XcodeGen) == 0 {
		c.Generators.XcodeGen = []string{"xcodegen", "generate", "-c"}
	}
	if len(c.Generators.Tuist) == 0 {
		c.Generators.Tuist = []string{"tuist", "generate", "--no-open"}
	}
	if c.Watch == nil {
		c.Watch = &WatchConfig{}
	}
}

// DebounceDuration returns the parsed debounce window.
func (d *DaemonConfig) DebounceDuration() time.Duration {
	return parseDuration(d.Debounce, 300*time.Millisecond)
}

// WriteTimeoutDuration returns the parsed broadcast write deadline.
func (d *DaemonConfig) WriteTimeoutDuration() time.Duration {
	return parseDuration(d.WriteTimeout, 2*time.Second)
}

// ShutdownTimeoutDuration returns the parsed shutdown grace period.
func (d *DaemonConfig) ShutdownTimeoutDuration() time.Duration {
	return parseDuration(d.ShutdownTimeout, 5*time.Second)
}

// ReapIntervalDuration returns the parsed reap interval.
func (d *DaemonConfig) ReapIntervalDuration() time.Duration {
	return parseDuration(d.ReapInterval, 5*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// UnmarshalExtension decodes a top-level section not modelled by Config into
// target, which must be a pointer. A missing key leaves target untouched.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}
