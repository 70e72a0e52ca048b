package config

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/grovetools/buildhub/errors"
	"github.com/grovetools/buildhub/pkg/paths"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a configuration file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// EnvConfigPath overrides the configuration file location.
const EnvConfigPath = "BUILDHUB_CONFIG"

var configNames = []string{"buildhub.toml", "buildhub.yml", "buildhub.yaml"}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads and parses a configuration file. The format is chosen by
// extension.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}

	cfg, err := LoadFromBytes(data, FormatFor(path))
	if err != nil {
		if ge := errors.As(err); ge != nil {
			return nil, ge.WithDetail("path", path)
		}
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads the file named by BUILDHUB_CONFIG, or the first
// buildhub.{toml,yml,yaml} in the config directory. Without a file it
// returns defaults.
func LoadDefault() (*Config, error) {
	path, err := FindConfigFile()
	if err != nil {
		if errors.Is(err, errors.ErrCodeConfigNotFound) {
			return Default(), nil
		}
		return nil, err
	}
	return Load(path)
}

// FindConfigFile returns the active configuration file path.
func FindConfigFile() (string, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", errors.ConfigNotFound(path)
		}
		return path, nil
	}

	dir := paths.ConfigDir()
	for _, name := range configNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", errors.ConfigNotFound(dir).WithDetail("searched", configNames)
}

// FormatFor returns the format implied by a file name.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// LoadFromBytes parses, validates and defaults a configuration document.
func LoadFromBytes(data []byte, format Format) (*Config, error) {
	expanded := []byte(expandEnvVars(string(data)))

	raw, err := decodeRaw(expanded, format)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse configuration").
			WithDetail("format", string(format))
	}

	validator, err := NewSchemaValidator()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create validator")
	}
	if err := validator.Validate(raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "schema validation failed")
	}

	var cfg Config
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(expanded, &cfg); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to decode TOML configuration")
		}
		cfg.Extensions = extensions(raw)
	default:
		if err := yaml.Unmarshal(expanded, &cfg); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to decode YAML configuration")
		}
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Marshal encodes the configuration in the given format.
func (c *Config) Marshal(format Format) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatTOML:
		enc := toml.NewEncoder(&buf)
		enc.SetIndentTables(true)
		if err := enc.Encode(c); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode TOML configuration")
		}
	default:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(c); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode YAML configuration")
		}
		enc.Close()
	}
	return buf.Bytes(), nil
}

func decodeRaw(data []byte, format Format) (map[string]interface{}, error) {
	raw := map[string]interface{}{}
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	default:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

// known lists the top-level keys decoded into Config fields.
var known = map[string]bool{
	"version":    true,
	"daemon":     true,
	"build":      true,
	"generators": true,
	"watch":      true,
}

func extensions(raw map[string]interface{}) map[string]interface{} {
	ext := map[string]interface{}{}
	for k, v := range raw {
		if !known[k] {
			ext[k] = v
		}
	}
	if len(ext) == 0 {
		return nil
	}
	return ext
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment values.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := envVarRegex.FindStringSubmatch(match)[1]

		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]
		defaultValue := ""
		if len(parts) > 1 {
			defaultValue = parts[1]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}
