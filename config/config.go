// Package config loads and persists lla's user configuration. The file lives
// under the user config directory and is created with defaults on first use.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Shortcut binds a short name to a plugin action so it can be invoked as
// `lla <name>`.
type Shortcut struct {
	Action      string `yaml:"action"`
	Description string `yaml:"description,omitempty"`
}

// Config is lla's layered configuration. Only the fields the plugin runtime
// consumes are modeled here; formatter and lister options belong to their
// own collaborators.
type Config struct {
	DefaultFormat  string              `yaml:"default_format"`
	Theme          string              `yaml:"theme"`
	ShowIcons      bool                `yaml:"show_icons"`
	EnabledPlugins []string            `yaml:"enabled_plugins"`
	PluginsDir     string              `yaml:"plugins_dir"`
	Shortcuts      map[string]Shortcut `yaml:"shortcuts,omitempty"`
	// CallTimeout bounds a single cross-boundary plugin call. Zero means the
	// built-in default.
	CallTimeout time.Duration `yaml:"call_timeout,omitempty"`

	path string
}

// Default returns the configuration used when no file exists yet.
func Default() *Config {
	return &Config{
		DefaultFormat: "default",
		Theme:         "default",
		ShowIcons:     false,
		PluginsDir:    defaultPluginsDir(),
	}
}

func defaultPluginsDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "lla", "plugins")
	}
	return filepath.Join(base, "lla", "plugins")
}

// DefaultPath returns the location of the config file.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config dir: %w", err)
	}
	return filepath.Join(base, "lla", "config.yaml"), nil
}

// Load reads the configuration at path, writing a default file first when
// none exists.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		cfg.path = path
		if err := cfg.Save(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.path = path
	return cfg, nil
}

// Save writes the configuration back to the file it was loaded from.
func (c *Config) Save() error {
	if c.path == "" {
		return errors.New("config has no backing file")
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", c.path, err)
	}
	return nil
}

// EnablePlugin adds name to the enabled set and persists the change.
func (c *Config) EnablePlugin(name string) error {
	for _, n := range c.EnabledPlugins {
		if n == name {
			return nil
		}
	}
	c.EnabledPlugins = append(c.EnabledPlugins, name)
	return c.Save()
}

// DisablePlugin removes name from the enabled set and persists the change.
func (c *Config) DisablePlugin(name string) error {
	kept := c.EnabledPlugins[:0]
	for _, n := range c.EnabledPlugins {
		if n != name {
			kept = append(kept, n)
		}
	}
	c.EnabledPlugins = kept
	return c.Save()
}
