// Package workflow provides the declarative workflow model for ci-harness.
package workflow

import (
	"fmt"
	"time"
)

// Step kinds understood by the harness.
const (
	UsesSetupPython = "setup-python"
	UsesInstallDeps = "install-deps"
	UsesSetupJava   = "setup-java"
	UsesDownload    = "download"
	UsesServe       = "serve"
	UsesRun         = "run"
)

// Workflow is a parsed workflow definition.
type Workflow struct {
	Name   string            `yaml:"name"`
	On     Triggers          `yaml:"on"`
	Env    map[string]string `yaml:"env,omitempty"`
	Matrix Matrix            `yaml:"matrix,omitempty"`
	Steps  []Step            `yaml:"steps"`
}

// Triggers describes when a workflow should run.
type Triggers struct {
	Push        *BranchTrigger `yaml:"push,omitempty"`
	PullRequest *BranchTrigger `yaml:"pull_request,omitempty"`
	Schedule    []string       `yaml:"schedule,omitempty"`
}

// BranchTrigger restricts a trigger to a set of branch patterns.
// An empty list matches any branch.
type BranchTrigger struct {
	Branches []string `yaml:"branches,omitempty"`
}

// Matrix maps axis names to their value lists.
type Matrix map[string][]string

// Step is a single workflow step. The Uses field selects the step kind;
// the remaining fields are kind-specific.
type Step struct {
	Name string `yaml:"name,omitempty"`
	Uses string `yaml:"uses"`

	// setup-python
	Version string `yaml:"version,omitempty"`

	// setup-java
	MinVersion int `yaml:"min-version,omitempty"`

	// install-deps
	Requirements []string `yaml:"requirements,omitempty"`
	Packages     []string `yaml:"packages,omitempty"`
	UpgradePip   bool     `yaml:"upgrade-pip,omitempty"`

	// download
	URL     string `yaml:"url,omitempty"`
	SHA256  string `yaml:"sha256,omitempty"`
	Extract bool   `yaml:"extract,omitempty"`
	Dest    string `yaml:"dest,omitempty"`

	// serve
	Port           int      `yaml:"port,omitempty"`
	HealthPath     string   `yaml:"health-path,omitempty"`
	StartupTimeout Duration `yaml:"startup-timeout,omitempty"`

	// serve and run
	Command []string          `yaml:"command,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`

	// run
	Timeout         Duration `yaml:"timeout,omitempty"`
	Retries         int      `yaml:"retries,omitempty"`
	ContinueOnError bool     `yaml:"continue-on-error,omitempty"`
}

// Duration wraps time.Duration so it parses from YAML strings like "60s".
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

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// DisplayName returns the step name, falling back to the kind.
func (s Step) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Uses
}
