// Package util provides utility functions for Compose Doctor.
package util

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/supporttools/compose-doctor/pkg/types"
	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a file (YAML or JSON).
// The file format is determined by extension (.yaml, .yml, .json).
// Environment variables are substituted, defaults are applied, and validation is performed.
func LoadConfig(path string) (*types.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Substitute environment variables in raw data BEFORE parsing
	// This allows env vars to work in non-string fields (e.g., port: ${PORT})
	data = []byte(os.ExpandEnv(string(data)))

	ext := filepath.Ext(path)

	var config types.Config

	switch ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	case ".json":
		err = json.Unmarshal(data, &config)
	default:
		// Try YAML first, then JSON
		err = yaml.Unmarshal(data, &config)
		if err != nil {
			err = json.Unmarshal(data, &config)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.SubstituteEnvVars()

	if err := config.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// LoadConfigOrDefault loads configuration from a file, or returns default if file doesn't exist.
func LoadConfigOrDefault(path string) (*types.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig()
	}
	return LoadConfig(path)
}

// DefaultConfig returns a default configuration suitable for repairing a
// local compose stack with no alert feed and no notifications.
func DefaultConfig() (*types.Config, error) {
	config := &types.Config{
		Metrics: types.MetricsConfig{
			Enabled: true,
		},
	}

	if err := config.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("default config validation failed: %w", err)
	}

	return config, nil
}

// ValidateConfigFile validates a configuration file without using the result.
func ValidateConfigFile(path string) error {
	_, err := LoadConfig(path)
	return err
}
