package logging

// Config is the "logging" extension section of buildhub.toml or buildhub.yml.
type Config struct {
	// Level is the minimum level: trace, debug, info, warn or error.
	// BUILDHUB_LOG_LEVEL takes precedence.
	Level string `yaml:"level"`

	// Components overrides Level per component, e.g. {broadcast: debug}.
	Components map[string]string `yaml:"components"`

	// ReportCaller adds file, line and function to every entry.
	ReportCaller bool `yaml:"report_caller"`

	File   FileSinkConfig `yaml:"file"`
	Format FormatConfig   `yaml:"format"`
}

// FileSinkConfig controls the per-component log file.
type FileSinkConfig struct {
	Disabled bool   `yaml:"disabled"`
	Path     string `yaml:"path"`
}

// FormatConfig controls how entries are rendered.
type FormatConfig struct {
	// Preset is "default", "simple" or "json".
	Preset           string `yaml:"preset"`
	DisableTimestamp bool   `yaml:"disable_timestamp"`
	DisableComponent bool   `yaml:"disable_component"`
	// StructuredToStderr is "auto", "always" or "never". In auto mode
	// entries reach stderr only when debugging or when stderr is not a
	// terminal.
	StructuredToStderr string `yaml:"structured_to_stderr"`
}
