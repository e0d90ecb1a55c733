package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ".ci-harness.config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
cache_dir: /var/cache/harness
log_level: debug
log_format: text
parallel: 3
step_timeout: 10m
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.CacheDir != "/var/cache/harness" {
		t.Errorf("CacheDir = %q", cfg.CacheDir)
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != "text" {
		t.Errorf("LogLevel/LogFormat = %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.Parallel != 3 {
		t.Errorf("Parallel = %d, want 3", cfg.Parallel)
	}
	if cfg.StepTimeout.Std() != 10*time.Minute {
		t.Errorf("StepTimeout = %v, want 10m", cfg.StepTimeout.Std())
	}
	// Unset fields fall back to defaults.
	if cfg.WorkDir == "" {
		t.Error("WorkDir default not applied")
	}
	if cfg.GracefulTimeout.Std() != 5*time.Second {
		t.Errorf("GracefulTimeout = %v, want 5s", cfg.GracefulTimeout.Std())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
log_level: info
parallel: 1
`)

	t.Setenv("CI_HARNESS_LOG_LEVEL", "warn")
	t.Setenv("CI_HARNESS_PARALLEL", "4")
	t.Setenv("CI_HARNESS_STEP_TIMEOUT", "90s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn (env override)", cfg.LogLevel)
	}
	if cfg.Parallel != 4 {
		t.Errorf("Parallel = %d, want 4 (env override)", cfg.Parallel)
	}
	if cfg.StepTimeout.Std() != 90*time.Second {
		t.Errorf("StepTimeout = %v, want 90s (env override)", cfg.StepTimeout.Std())
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad log level", "log_level: loud"},
		{"bad log format", "log_format: xml"},
		{"negative parallel", "parallel: -1"},
		{"bad duration", "step_timeout: soon"},
		{"unparseable yaml", "cache_dir: [nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.content)
			if _, err := Load(path); err == nil {
				t.Error("Load() expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() on missing file expected error")
	}
}

func TestLoadFromEnv(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "log_level: error\n")
	t.Setenv("CI_HARNESS_CONFIG", path)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want error", cfg.LogLevel)
	}
}

func TestFindInParents(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "log_level: info\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	path, ok := findInParents(nested)
	if !ok {
		t.Fatal("findInParents() found nothing")
	}
	if filepath.Dir(path) != root {
		t.Errorf("found %q, want file in %q", path, root)
	}
}
