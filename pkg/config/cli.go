package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/thomyg/TeamsFx/pkg/telemetry"
)

// FileName is the CLI config file looked up under <project>/.fx.
const FileName = "fx.yaml"

// CLIConfig is the content of fx.yaml.
type CLIConfig struct {
	// Telemetry configures logging, tracing, metrics and events.
	Telemetry telemetry.Config `yaml:"telemetry"`

	// History configures the operation history database.
	History HistoryConfig `yaml:"history"`

	// Policy configures template policy evaluation.
	Policy PolicyConfig `yaml:"policy"`

	// Tasks is the directory holding Starlark user task scripts,
	// relative to the project.
	Tasks string `yaml:"tasks"`
}

// HistoryConfig configures the operation history store.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path of the SQLite database, relative to the project.
	Path string `yaml:"path"`
}

// PolicyConfig configures template policies.
type PolicyConfig struct {
	Enabled bool `yaml:"enabled"`

	// Paths lists .rego files or directories, relative to the project.
	Paths []string `yaml:"paths"`

	// Builtin enables the bundled policies.
	Builtin bool `yaml:"builtin"`

	// Enable and Disable switch loaded policies on or off by name.
	Enable  []string `yaml:"enable"`
	Disable []string `yaml:"disable"`
}

// Default returns the configuration used when no fx.yaml exists.
func Default() *CLIConfig {
	return &CLIConfig{
		Telemetry: *telemetry.DefaultConfig(),
		History: HistoryConfig{
			Enabled: true,
			Path:    filepath.Join(".fx", "history.db"),
		},
		Policy: PolicyConfig{
			Enabled: true,
			Paths:   []string{filepath.Join(".fx", "policies")},
			Builtin: true,
		},
		Tasks: filepath.Join(".fx", "tasks"),
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*CLIConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Telemetry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config in %s: %w", path, err)
	}
	return cfg, nil
}

// LoadForProject loads explicit when set, else <project>/.fx/fx.yaml.
func LoadForProject(projectPath, explicit string) (*CLIConfig, error) {
	if explicit != "" {
		return Load(explicit)
	}
	return Load(filepath.Join(projectPath, ".fx", FileName))
}

// Resolve returns p relative to projectPath unless it is absolute.
func Resolve(projectPath, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(projectPath, p)
}

// Save writes cfg as YAML.
func (c *CLIConfig) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
