// Package config provides configuration loading and management for qpimage.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"qpimage/internal/logging"
	"qpimage/pkg/nrefocus"
	"qpimage/pkg/store"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Store parameters
	Store struct {
		// Backend is the storage engine, "sqlite" or "badger"
		Backend string `yaml:"backend"`

		// Mode is the access mode used when opening stores: "r", "r+" or "a"
		Mode string `yaml:"mode"`

		// SyncWrites makes every badger write synchronous
		SyncWrites bool `yaml:"syncWrites"`
	} `yaml:"store"`

	// Logging parameters
	Logging struct {
		// Level is one of debug, info, warn, error
		Level string `yaml:"level"`

		// Format is "text" or "json"
		Format string `yaml:"format"`
	} `yaml:"logging"`

	// Refocus parameters
	Refocus struct {
		// Method is the propagation method, "helmholtz" or "fresnel"
		Method string `yaml:"method"`

		// MediumIndex is the refractive index of the medium
		MediumIndex float64 `yaml:"mediumIndex"`
	} `yaml:"refocus"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Store.Backend = string(store.BackendSQLite)
	cfg.Store.Mode = store.ModeCreate.String()
	cfg.Store.SyncWrites = false

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	cfg.Refocus.Method = nrefocus.MethodHelmholtz
	cfg.Refocus.MediumIndex = 1.0

	return cfg
}

// Validate checks that all enumerated settings have known values.
func (c *Config) Validate() error {
	if _, err := store.ParseBackend(c.Store.Backend); err != nil {
		return err
	}
	if _, err := store.ParseMode(c.Store.Mode); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.Logging.Format)
	}
	switch c.Refocus.Method {
	case nrefocus.MethodHelmholtz, nrefocus.MethodFresnel:
	default:
		return fmt.Errorf("invalid refocus method %q", c.Refocus.Method)
	}
	if !(c.Refocus.MediumIndex > 0) {
		return fmt.Errorf("medium index must be positive, got %g", c.Refocus.MediumIndex)
	}
	return nil
}

// StoreConfig returns the store configuration for path. An empty path
// yields an ephemeral store.
func (c *Config) StoreConfig(path string) (store.Config, error) {
	backend, err := store.ParseBackend(c.Store.Backend)
	if err != nil {
		return store.Config{}, err
	}
	mode, err := store.ParseMode(c.Store.Mode)
	if err != nil {
		return store.Config{}, err
	}
	return store.Config{
		Backend:    backend,
		Path:       path,
		Mode:       mode,
		SyncWrites: c.Store.SyncWrites,
	}, nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("error in config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
