// Package config provides configuration loading and structs for the rehydra service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// KeyEnvVar is the environment variable holding the base64-encoded 32-byte
// encryption key when the "static" key provider is configured.
const KeyEnvVar = "REHYDRA_KEY"

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Detector   DetectorConfig   `yaml:"detector"`
	Policy     PolicyConfig     `yaml:"policy"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig selects the map store backend and its location.
// Backend is one of "memory", "sqlite", or "bolt".
type StorageConfig struct {
	Backend      string `yaml:"backend"`
	DatabasePath string `yaml:"database_path"`
}

// EncryptionConfig selects the key provider. Provider is one of "static"
// (key from the REHYDRA_KEY environment variable), "file" (base64 key file,
// watched for rotation), or "ephemeral" (fresh key per process; stored
// sessions do not survive a restart).
type EncryptionConfig struct {
	Provider string `yaml:"provider"`
	KeyFile  string `yaml:"key_file"`
}

// DetectorConfig selects the PII detector. Mode is "regex" (built-in
// structured-PII patterns) or "remote" (NER inference sidecar).
type DetectorConfig struct {
	Mode           string `yaml:"mode"`
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// PolicyConfig holds tagging policy settings.
type PolicyConfig struct {
	ReuseIDsForRepeatedPII bool `yaml:"reuse_ids_for_repeated_pii"`
}

// Load reads and parses the config file at path, applies defaults, expands
// paths, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	if cfg.Encryption.KeyFile != "" {
		cfg.Encryption.KeyFile = expandPath(cfg.Encryption.KeyFile, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints that defaults cannot repair.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory", "sqlite", "bolt":
	default:
		return fmt.Errorf("storage.backend must be memory, sqlite, or bolt, got %q", c.Storage.Backend)
	}
	if c.Storage.Backend != "memory" && c.Storage.DatabasePath == "" {
		return fmt.Errorf("storage.database_path is required for the %s backend", c.Storage.Backend)
	}

	switch c.Encryption.Provider {
	case "static", "ephemeral":
	case "file":
		if c.Encryption.KeyFile == "" {
			return fmt.Errorf("encryption.key_file is required for the file provider")
		}
	default:
		return fmt.Errorf("encryption.provider must be static, file, or ephemeral, got %q", c.Encryption.Provider)
	}

	switch c.Detector.Mode {
	case "regex":
	case "remote":
		if c.Detector.URL == "" {
			return fmt.Errorf("detector.url is required for the remote detector")
		}
	default:
		return fmt.Errorf("detector.mode must be regex or remote, got %q", c.Detector.Mode)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home
// directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
