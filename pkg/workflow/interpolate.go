package workflow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tracekit/ci-harness/pkg/errors"
)

// placeholderPattern matches ${{ matrix.KEY }} and ${{ env.KEY }}.
var placeholderPattern = regexp.MustCompile(`\$\{\{\s*(matrix|env)\.([A-Za-z0-9_.-]+)\s*\}\}`)

// RenderSteps returns the workflow steps with matrix and env placeholders
// resolved for the given entry. The workflow itself is not modified.
func (w *Workflow) RenderSteps(entry MatrixEntry) ([]Step, error) {
	rendered := make([]Step, len(w.Steps))
	for i, step := range w.Steps {
		out, err := renderStep(step, entry, w.Env)
		if err != nil {
			return nil, errors.WorkflowError(fmt.Sprintf("step %d (%s)", i, step.DisplayName()), err)
		}
		rendered[i] = out
	}
	return rendered, nil
}

func renderStep(step Step, entry MatrixEntry, env map[string]string) (Step, error) {
	var err error
	expand := func(s string) string {
		if err != nil {
			return s
		}
		var out string
		out, err = interpolate(s, entry, env)
		return out
	}

	step.Version = expand(step.Version)
	step.URL = expand(step.URL)
	step.SHA256 = expand(step.SHA256)
	step.Dest = expand(step.Dest)
	step.HealthPath = expand(step.HealthPath)
	step.Requirements = expandSlice(step.Requirements, expand)
	step.Packages = expandSlice(step.Packages, expand)
	step.Command = expandSlice(step.Command, expand)
	step.Env = expandMap(step.Env, expand)

	if err != nil {
		return Step{}, err
	}
	return step, nil
}

func expandSlice(values []string, expand func(string) string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = expand(v)
	}
	return out
}

func expandMap(values map[string]string, expand func(string) string) map[string]string {
	if values == nil {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = expand(v)
	}
	return out
}

// interpolate resolves all placeholders in s. Referencing an unknown
// matrix axis or env key is an error, not a silent empty string.
func interpolate(s string, entry MatrixEntry, env map[string]string) (string, error) {
	var resolveErr error

	out := placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := placeholderPattern.FindStringSubmatch(match)
		scope, key := groups[1], groups[2]

		switch scope {
		case "matrix":
			if value, ok := entry[key]; ok {
				return value
			}
			resolveErr = fmt.Errorf("unknown matrix key %q", key)
		case "env":
			if value, ok := env[key]; ok {
				return value
			}
			resolveErr = fmt.Errorf("unknown env key %q", key)
		}
		return match
	})

	if resolveErr != nil {
		return "", resolveErr
	}
	if strings.Contains(out, "${{") {
		return "", fmt.Errorf("unresolved placeholder in %q", s)
	}
	return out, nil
}
