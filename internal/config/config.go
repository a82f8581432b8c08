// internal/config/config.go
//
// This package handles the .configcrunch.yaml project file and the
// .configcrunch state directory.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/kingrea/configcrunch/document"
)

const (
	// FileName is the default project configuration file.
	FileName = ".configcrunch.yaml"

	// StateDir holds logs and other generated files.
	StateDir = ".configcrunch"

	// EnvPrefix prefixes environment overrides, e.g. CONFIGCRUNCH_LOG_LEVEL.
	EnvPrefix = "CONFIGCRUNCH"
)

const defaultConfigYAML = `# configcrunch project configuration
version: 1

# Repositories searched for $ref documents, later entries win.
# Use a directory or s3://bucket/prefix.
lookup_paths:
  - repository

# Directory of Go helper scripts exposed to templates.
helpers_dir: ""

output: yaml
concurrency: 4

log:
  level: info
  format: text
  file: false

s3:
  endpoint: ""
  region: ""
  access_key_id: ""
  secret_access_key: ""

types:
  - header: project
    subdocuments:
      - key: services
        type: service
        many: true
    required: [name]
  - header: service
`

// LogConfig configures logrus.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	File   bool   `yaml:"file" mapstructure:"file"`
}

// S3Config holds credentials for s3:// lookup paths.
type S3Config struct {
	Endpoint        string `yaml:"endpoint" mapstructure:"endpoint"`
	Region          string `yaml:"region" mapstructure:"region"`
	AccessKeyID     string `yaml:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" mapstructure:"secret_access_key"`
}

// SubdocumentConfig declares a typed sub-document of a configured type.
type SubdocumentConfig struct {
	Key  string `yaml:"key" mapstructure:"key"`
	Type string `yaml:"type" mapstructure:"type"`
	Many bool   `yaml:"many,omitempty" mapstructure:"many"`
}

// TypeConfig declares a document type.
type TypeConfig struct {
	Header       string              `yaml:"header" mapstructure:"header"`
	Subdocuments []SubdocumentConfig `yaml:"subdocuments,omitempty" mapstructure:"subdocuments"`
	Required     []string            `yaml:"required,omitempty" mapstructure:"required"`
}

// Config holds the runtime configuration for the crunch CLI.
type Config struct {
	Version     int          `yaml:"version" mapstructure:"version"`
	LookupPaths []string     `yaml:"lookup_paths" mapstructure:"lookup_paths"`
	HelpersDir  string       `yaml:"helpers_dir" mapstructure:"helpers_dir"`
	Output      string       `yaml:"output" mapstructure:"output"`
	Concurrency int          `yaml:"concurrency" mapstructure:"concurrency"`
	Log         LogConfig    `yaml:"log" mapstructure:"log"`
	S3          S3Config     `yaml:"s3" mapstructure:"s3"`
	Types       []TypeConfig `yaml:"types" mapstructure:"types"`

	// ProjectDir is the directory relative paths are resolved against.
	ProjectDir string `yaml:"-" mapstructure:"-"`

	// Path is the config file that was read, empty when only defaults apply.
	Path string `yaml:"-" mapstructure:"-"`
}

// InitConfigFile writes the default configuration to projectDir and creates
// the state directory. An existing file is left untouched.
//
// Structure created:
// .configcrunch.yaml
// .configcrunch/
// └── logs/
func InitConfigFile(projectDir string) (string, error) {
	if err := os.MkdirAll(filepath.Join(projectDir, StateDir, "logs"), 0755); err != nil {
		return "", err
	}
	path := filepath.Join(projectDir, FileName)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0644); err != nil {
		return "", fmt.Errorf("config: write %s: %w", path, err)
	}
	return path, nil
}

// Load reads the configuration for projectDir. path overrides the default
// file location; a missing default file is not an error. Values from a .env
// file in projectDir and CONFIGCRUNCH_* variables override the file.
func Load(projectDir, path string) (*Config, error) {
	if err := loadDotEnv(filepath.Join(projectDir, ".env")); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(defaultConfigYAML)); err != nil {
		return nil, fmt.Errorf("config: parse defaults: %w", err)
	}

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = filepath.Join(projectDir, FileName)
	} else {
		path = resolvePath(projectDir, path)
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		path = ""
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{ProjectDir: projectDir, Path: path}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.ProjectDir, StateDir, "logs")
}

// HelpersPath returns the absolute helper directory, empty when unset.
func (c *Config) HelpersPath() string {
	return resolvePath(c.ProjectDir, c.HelpersDir)
}

func (c *Config) normalize() {
	c.Output = strings.ToLower(strings.TrimSpace(c.Output))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	paths := c.LookupPaths[:0]
	for _, p := range c.LookupPaths {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			paths = append(paths, trimmed)
		}
	}
	c.LookupPaths = paths
	for i := range c.Types {
		c.Types[i].Header = strings.TrimSpace(c.Types[i].Header)
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Version != 1 {
		return fmt.Errorf("version must be 1, got %d", c.Version)
	}
	switch c.Output {
	case "yaml", "json":
	default:
		return fmt.Errorf("output must be 'yaml' or 'json'")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be 'text' or 'json'")
	}
	headers := map[string]bool{}
	for i, typ := range c.Types {
		if typ.Header == "" {
			return fmt.Errorf("types[%d]: header is required", i)
		}
		if headers[typ.Header] {
			return fmt.Errorf("types[%d]: duplicate header %s", i, typ.Header)
		}
		headers[typ.Header] = true
	}
	for _, typ := range c.Types {
		for j, sub := range typ.Subdocuments {
			if strings.TrimSpace(sub.Key) == "" {
				return fmt.Errorf("types[%s].subdocuments[%d]: key is required", typ.Header, j)
			}
			if !headers[sub.Type] {
				return fmt.Errorf("types[%s].subdocuments[%d]: unknown type %q", typ.Header, j, sub.Type)
			}
		}
	}
	return nil
}

// Registry builds a document registry from the declared types.
func (c *Config) Registry() (*document.Registry, error) {
	declared := make(map[string]*document.GenericType, len(c.Types))
	for _, typ := range c.Types {
		declared[typ.Header] = &document.GenericType{
			Name:     typ.Header,
			Required: append([]string(nil), typ.Required...),
		}
	}
	reg := document.NewRegistry()
	for _, typ := range c.Types {
		gt := declared[typ.Header]
		for _, sub := range typ.Subdocuments {
			target, ok := declared[sub.Type]
			if !ok {
				return nil, fmt.Errorf("config: type %s: unknown sub-document type %q", typ.Header, sub.Type)
			}
			gt.Subdocs = append(gt.Subdocs, document.Subdocument{Key: sub.Key, Type: target, Many: sub.Many})
		}
		if err := reg.Register(gt); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	return reg, nil
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}
