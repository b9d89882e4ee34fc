// Package config handles lunar.toml host configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents a lunar.toml host configuration.
type Config struct {
	Store Store `toml:"store"`
	Log   Log   `toml:"log"`
	VM    VM    `toml:"vm"`

	// Dir is the directory containing the lunar.toml file (set at load time).
	Dir string `toml:"-"`
}

// Store configures the snapshot database.
type Store struct {
	Path string `toml:"path"`
}

// Log configures host logging.
type Log struct {
	Verbosity int `toml:"verbosity"`
}

// VM configures runtime limits.
type VM struct {
	// GCEvery triggers a heap collection after this many snapshot
	// operations. Zero disables automatic collection.
	GCEvery int `toml:"gc-every"`
}

// Load parses a lunar.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, "lunar.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	applyDefaults(&c)
	return &c, nil
}

// FindAndLoad walks up from startDir to find a lunar.toml file, then
// loads and returns the configuration. Returns nil if none is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "lunar.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Default returns a configuration with built-in defaults, rooted at dir.
func Default(dir string) *Config {
	c := &Config{Dir: dir}
	applyDefaults(c)
	return c
}

func applyDefaults(c *Config) {
	if c.Store.Path == "" {
		c.Store.Path = "lunar.db"
	}
}

// StorePath returns the absolute path to the snapshot database.
func (c *Config) StorePath() string {
	if filepath.IsAbs(c.Store.Path) {
		return c.Store.Path
	}
	return filepath.Join(c.Dir, c.Store.Path)
}
