// Copyright 2024-2026 Aiku AI

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	up "go.mau.fi/util/configupgrade"
	"gopkg.in/yaml.v3"
)

// Load reads the config at path, fills missing fields from the example
// config, and validates the result. Every failure is a *ConfigError.
func Load(path string) (*Config, error) {
	merged, _, err := up.Do(path, false, Upgrader)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return Parse(path, merged)
}

// Parse decodes an already merged config document.
func Parse(path string, data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("failed to parse: %w", err)}
	}
	if err := cfg.PostProcess(); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return &cfg, nil
}

// WriteExample writes the example config to path unless a file already
// exists there. It reports whether the file was written.
func WriteExample(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err = os.WriteFile(path, []byte(ExampleConfig), 0o600); err != nil {
		return false, fmt.Errorf("failed to write example config: %w", err)
	}
	return true, nil
}
