// Copyright 2026 Tracekit Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package config provides harness configuration management.
//
// Configuration Loading Order (later overrides earlier):
// 1. Defaults (hardcoded)
// 2. Project Config: ./.ci-harness.config.yaml (searched upward)
// 3. User Config: ~/.config/ci-harness/config.yaml
// 4. Environment Variables: CI_HARNESS_*
package config

import (
	"fmt"
	"time"
)

// Config represents the complete harness configuration.
//
// This configures the harness itself; the workflow to execute lives in a
// separate workflow file (see pkg/workflow).
type Config struct {
	// CacheDir is the root directory for the artifact cache.
	CacheDir string `yaml:"cache_dir" env:"CI_HARNESS_CACHE_DIR"`
	// WorkDir is the root directory for per-job work directories.
	WorkDir string `yaml:"work_dir" env:"CI_HARNESS_WORK_DIR"`
	// HistoryDB is the path to the SQLite run history database.
	// Empty disables history recording.
	HistoryDB string `yaml:"history_db" env:"CI_HARNESS_HISTORY_DB"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" env:"CI_HARNESS_LOG_LEVEL"`
	// LogFormat is "json" or "text".
	LogFormat string `yaml:"log_format" env:"CI_HARNESS_LOG_FORMAT"`
	// MetricsAddr enables a Prometheus /metrics listener when non-empty,
	// e.g. ":9310". Off by default; a batch run rarely needs it.
	MetricsAddr string `yaml:"metrics_addr" env:"CI_HARNESS_METRICS_ADDR"`
	// Parallel is the number of matrix jobs executed concurrently.
	Parallel int `yaml:"parallel" env:"CI_HARNESS_PARALLEL"`
	// StepTimeout is the default timeout for run steps without an
	// explicit one.
	StepTimeout Duration `yaml:"step_timeout" env:"CI_HARNESS_STEP_TIMEOUT"`
	// GracefulTimeout is how long managed servers get between SIGTERM
	// and SIGKILL.
	GracefulTimeout Duration `yaml:"graceful_timeout" env:"CI_HARNESS_GRACEFUL_TIMEOUT"`
}

// Duration wraps time.Duration so it parses from YAML strings ("30s")
// and from environment variables.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler for env parsing.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid log_format %q", c.LogFormat)
	}
	if c.Parallel < 0 {
		return fmt.Errorf("parallel must be >= 0, got %d", c.Parallel)
	}
	return nil
}
