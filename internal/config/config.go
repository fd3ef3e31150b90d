// Package config loads the optional fozzy.yaml project configuration.
package config

import (
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = "fozzy.yaml"

// Config holds project-level defaults for the CLI.
type Config struct {
	// BaseDir is where runtime artifacts (runs, traces, the run index)
	// live. Defaults to .fozzy.
	BaseDir string `yaml:"base_dir"`

	// Reporter selects the default report encoding: compact or pretty.
	Reporter string `yaml:"reporter"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{BaseDir: ".fozzy", Reporter: "compact"}
}

// LoadOptional reads the config at path, tolerating absence. A present
// but malformed file logs a warning and yields the defaults: a broken
// config must never block a run.
func LoadOptional(path string, logger *slog.Logger) Config {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) && logger != nil {
			logger.Warn("failed to read config", "path", path, "err", err)
		}
		return cfg
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		if logger != nil {
			logger.Warn("failed to parse config", "path", path, "err", err)
		}
		return Default()
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = ".fozzy"
	}
	if cfg.Reporter == "" {
		cfg.Reporter = "compact"
	}
	return cfg
}

// RunsDir returns the directory run artifacts land in.
func (c Config) RunsDir() string {
	return filepath.Join(c.BaseDir, "runs")
}

// IndexPath returns the run index database location.
func (c Config) IndexPath() string {
	return filepath.Join(c.BaseDir, "runs.db")
}
