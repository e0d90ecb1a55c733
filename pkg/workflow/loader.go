package workflow

import (
	"bytes"
	"fmt"
	"os"

	"github.com/tracekit/ci-harness/pkg/errors"
	"github.com/tracekit/ci-harness/pkg/schedule"
	"gopkg.in/yaml.v3"
)

// Load reads and parses a workflow file.
func Load(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WorkflowError(fmt.Sprintf("failed to read workflow file: %s", path), err)
	}
	return Parse(data)
}

// Parse parses workflow YAML in strict mode: unknown fields are errors.
func Parse(data []byte) (*Workflow, error) {
	var wf Workflow

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&wf); err != nil {
		return nil, errors.WorkflowError("failed to parse workflow YAML", err)
	}

	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return &wf, nil
}

// Validate checks the workflow for structural problems. Errors name the
// offending step by index so they are actionable without line numbers.
func (w *Workflow) Validate() error {
	if w.Name == "" {
		return errors.WorkflowError("workflow name is required", nil)
	}
	if len(w.Steps) == 0 {
		return errors.WorkflowError("workflow has no steps", nil)
	}
	if w.On.Push == nil && w.On.PullRequest == nil && len(w.On.Schedule) == 0 {
		return errors.WorkflowError("workflow has no triggers", nil)
	}

	for _, expr := range w.On.Schedule {
		if err := schedule.Validate(expr); err != nil {
			return errors.WorkflowError("invalid schedule trigger", err)
		}
	}

	for axis, values := range w.Matrix {
		if len(values) == 0 {
			return errors.WorkflowError(fmt.Sprintf("matrix axis %q has no values", axis), nil)
		}
	}

	serveSeen := false
	for i, step := range w.Steps {
		if err := validateStep(i, step, &serveSeen); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step, serveSeen *bool) error {
	switch step.Uses {
	case UsesSetupPython:
		if step.Version == "" {
			return stepError(i, step, "version is required")
		}
	case UsesInstallDeps:
		// Everything is optional; an empty step installs nothing.
	case UsesSetupJava:
		if step.MinVersion < 0 {
			return stepError(i, step, "min-version must be >= 0")
		}
	case UsesDownload:
		if step.URL == "" {
			return stepError(i, step, "url is required")
		}
		if step.Extract && step.Dest == "" {
			return stepError(i, step, "dest is required when extract is set")
		}
	case UsesServe:
		if *serveSeen {
			return stepError(i, step, "only one serve step is allowed per job")
		}
		*serveSeen = true
		if len(step.Command) == 0 {
			return stepError(i, step, "command is required")
		}
		if step.Port <= 0 || step.Port > 65535 {
			return stepError(i, step, fmt.Sprintf("invalid port %d", step.Port))
		}
	case UsesRun:
		if len(step.Command) == 0 {
			return stepError(i, step, "command is required")
		}
		if step.Retries < 0 {
			return stepError(i, step, "retries must be >= 0")
		}
	case "":
		return stepError(i, step, "uses is required")
	default:
		return stepError(i, step, fmt.Sprintf("unknown step kind %q", step.Uses))
	}
	return nil
}

func stepError(i int, step Step, msg string) error {
	return errors.WorkflowError(fmt.Sprintf("step %d (%s): %s", i, step.DisplayName(), msg), nil)
}
