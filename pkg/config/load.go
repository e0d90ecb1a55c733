// Package config handles configuration loading and validation
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/tracekit/ci-harness/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Default config file names to search for
var defaultConfigFiles = []string{
	".ci-harness.config.yaml",
	".ci-harness.config.yml",
}

// Load loads configuration from a specific file path, then applies
// environment overrides and defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("failed to read config file: %s", path), err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("failed to parse config file: %s", path), err)
	}

	return finalize(&cfg)
}

// LoadDefault searches for and loads configuration from default locations.
// Search order:
// 1. Current directory
// 2. Parent directories (up to root)
// 3. User config directory (~/.config/ci-harness/config.yaml)
//
// When no file is found the defaults plus environment overrides apply.
func LoadDefault() (*Config, error) {
	if path, ok := findInParents("."); ok {
		return Load(path)
	}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(homeDir, ".config", "ci-harness", "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			return Load(userConfigPath)
		}
	}

	return finalize(&Config{})
}

// LoadFromEnv loads config from the path named by CI_HARNESS_CONFIG,
// falling back to the default search.
func LoadFromEnv() (*Config, error) {
	if path := os.Getenv("CI_HARNESS_CONFIG"); path != "" {
		return Load(path)
	}
	return LoadDefault()
}

// finalize applies env overrides, defaults, and validation.
func finalize(cfg *Config) (*Config, error) {
	if err := env.Parse(cfg); err != nil {
		return nil, errors.ConfigError("failed to parse environment overrides", err)
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigError("config validation failed", err)
	}
	return cfg, nil
}

// findInParents searches for a config file in the start directory and its parents.
func findInParents(startDir string) (string, bool) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false
	}

	for {
		for _, filename := range defaultConfigFiles {
			configPath := filepath.Join(dir, filename)
			if _, err := os.Stat(configPath); err == nil {
				return configPath, true
			}
		}

		parentDir := filepath.Dir(dir)
		if parentDir == dir {
			break
		}
		dir = parentDir
	}

	return "", false
}

// applyDefaults sets default values for optional fields.
func applyDefaults(cfg *Config) {
	if cfg.CacheDir == "" {
		if cacheHome, err := os.UserCacheDir(); err == nil {
			cfg.CacheDir = filepath.Join(cacheHome, "ci-harness")
		} else {
			cfg.CacheDir = ".ci-harness-cache"
		}
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Join(os.TempDir(), "ci-harness")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if cfg.Parallel == 0 {
		// Matrix entries run serially unless asked otherwise.
		cfg.Parallel = 1
	}
	if cfg.StepTimeout == 0 {
		cfg.StepTimeout = Duration(30 * time.Minute)
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = Duration(5 * time.Second)
	}
}
