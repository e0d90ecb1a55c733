package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/tracekit/ci-harness/pkg/workflow"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestExecutor(t *testing.T, opts ...ExecutorOption) *Executor {
	t.Helper()
	return NewExecutor(t.TempDir(), t.TempDir(), discardLogger(), opts...)
}

func TestExecutor_RunJobDryRun(t *testing.T) {
	e := newTestExecutor(t, WithDryRun(true))
	wf := &workflow.Workflow{
		Name: "x",
		Steps: []workflow.Step{
			{Uses: workflow.UsesSetupPython, Version: "3.10"},
			{Uses: workflow.UsesRun, Command: []string{"python", "-m", "pytest"}},
		},
	}

	result := e.RunJob(context.Background(), wf, workflow.MatrixEntry{})
	if result.Status != StatusSkipped {
		t.Fatalf("Status = %q, want skipped", result.Status)
	}
	if len(result.Steps) != 2 {
		t.Fatalf("len(Steps) = %d, want 2", len(result.Steps))
	}
	for _, step := range result.Steps {
		if step.Status != StatusSkipped {
			t.Errorf("step %q status = %q, want skipped", step.Name, step.Status)
		}
	}
}

func TestExecutor_RunJobRunStep(t *testing.T) {
	e := newTestExecutor(t)
	wf := &workflow.Workflow{
		Name: "x",
		Env:  map[string]string{"GREETING": "hello"},
		Steps: []workflow.Step{
			{Uses: workflow.UsesRun, Command: []string{"sh", "-c", `test "$GREETING" = hello`}},
		},
	}

	result := e.RunJob(context.Background(), wf, workflow.MatrixEntry{})
	if result.Status != StatusPassed {
		t.Fatalf("Status = %q, want passed (err: %v)", result.Status, result.Steps[0].Err)
	}
}

func TestExecutor_RunJobFailingStep(t *testing.T) {
	e := newTestExecutor(t)
	wf := &workflow.Workflow{
		Name: "x",
		Steps: []workflow.Step{
			{Name: "doomed", Uses: workflow.UsesRun, Command: []string{"sh", "-c", "exit 3"}},
			{Uses: workflow.UsesRun, Command: []string{"sh", "-c", "echo never"}},
		},
	}

	result := e.RunJob(context.Background(), wf, workflow.MatrixEntry{})
	if result.Status != StatusFailed {
		t.Fatalf("Status = %q, want failed", result.Status)
	}
	if result.FailedStep != "doomed" {
		t.Errorf("FailedStep = %q, want doomed", result.FailedStep)
	}
	// Execution stops at the failing step.
	if len(result.Steps) != 1 {
		t.Errorf("len(Steps) = %d, want 1", len(result.Steps))
	}
}

func TestExecutor_RunJobContinueOnError(t *testing.T) {
	e := newTestExecutor(t)
	wf := &workflow.Workflow{
		Name: "x",
		Steps: []workflow.Step{
			{Uses: workflow.UsesRun, Command: []string{"sh", "-c", "exit 1"}, ContinueOnError: true},
			{Uses: workflow.UsesRun, Command: []string{"sh", "-c", "true"}},
		},
	}

	result := e.RunJob(context.Background(), wf, workflow.MatrixEntry{})
	if result.Status != StatusPassed {
		t.Fatalf("Status = %q, want passed", result.Status)
	}
	if len(result.Steps) != 2 {
		t.Fatalf("len(Steps) = %d, want 2", len(result.Steps))
	}
	if result.Steps[0].Status != StatusFailed {
		t.Errorf("tolerated step status = %q, want failed", result.Steps[0].Status)
	}
}

func TestExecutor_RunJobRetries(t *testing.T) {
	e := newTestExecutor(t)
	dir := t.TempDir()
	// Fails on the first attempt, succeeds once the marker file exists.
	script := `if [ -f "` + dir + `/marker" ]; then exit 0; else touch "` + dir + `/marker"; exit 1; fi`
	wf := &workflow.Workflow{
		Name: "x",
		Steps: []workflow.Step{
			{Uses: workflow.UsesRun, Command: []string{"sh", "-c", script}, Retries: 2},
		},
	}

	result := e.RunJob(context.Background(), wf, workflow.MatrixEntry{})
	if result.Status != StatusPassed {
		t.Fatalf("Status = %q, want passed after retry (err: %v)", result.Status, result.Steps[0].Err)
	}
	if result.Steps[0].Retries != 1 {
		t.Errorf("Retries = %d, want 1", result.Steps[0].Retries)
	}
}

func TestExecutor_RunJobInstallDepsWithoutPython(t *testing.T) {
	e := newTestExecutor(t)
	wf := &workflow.Workflow{
		Name: "x",
		Steps: []workflow.Step{
			{Uses: workflow.UsesInstallDeps, Requirements: []string{"requirements.txt"}},
		},
	}

	result := e.RunJob(context.Background(), wf, workflow.MatrixEntry{})
	if result.Status != StatusFailed {
		t.Fatalf("Status = %q, want failed", result.Status)
	}
	if !errors.Is(result.Steps[0].Err, ErrNoVirtualEnv) {
		t.Errorf("step error = %v, want ErrNoVirtualEnv", result.Steps[0].Err)
	}
}

func TestExecutor_RunJobRenderFailure(t *testing.T) {
	e := newTestExecutor(t)
	wf := &workflow.Workflow{
		Name: "x",
		Steps: []workflow.Step{
			{Uses: workflow.UsesSetupPython, Version: "${{ matrix.missing }}"},
		},
	}

	result := e.RunJob(context.Background(), wf, workflow.MatrixEntry{})
	if result.Status != StatusFailed {
		t.Fatalf("Status = %q, want failed", result.Status)
	}
	if result.FailedStep != "render" {
		t.Errorf("FailedStep = %q, want render", result.FailedStep)
	}
}

func TestExecutor_RunJobMatrixEnvExposed(t *testing.T) {
	e := newTestExecutor(t)
	wf := &workflow.Workflow{
		Name: "x",
		Steps: []workflow.Step{
			{Uses: workflow.UsesRun, Command: []string{"sh", "-c", `test "$PYV" = 3.11`},
				Env: map[string]string{"PYV": "${{ matrix.python-version }}"}},
		},
	}

	result := e.RunJob(context.Background(), wf, workflow.MatrixEntry{"python-version": "3.11"})
	if result.Status != StatusPassed {
		t.Fatalf("Status = %q, want passed (err: %v)", result.Status, result.Steps[0].Err)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"python-version=3.10", "python-version-3.10"},
		{"a=1,b=2", "a-1-b-2"},
		{"feature/branch name", "feature-branch-name"},
		{"default", "default"},
	}

	for _, tt := range tests {
		if got := sanitize(tt.in); got != tt.want {
			t.Errorf("sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExecutor_ResolvePath(t *testing.T) {
	e := newTestExecutor(t)
	state := &jobState{dir: "/work/job"}

	if got := e.resolvePath(state, "dest"); got != "/work/job/dest" {
		t.Errorf("resolvePath(dest) = %q", got)
	}
	if got := e.resolvePath(state, "/abs/dest"); got != "/abs/dest" {
		t.Errorf("resolvePath(/abs/dest) = %q", got)
	}
	if got := e.resolvePath(state, ""); got != "" {
		t.Errorf("resolvePath(\"\") = %q", got)
	}
}

func TestExecutor_ServeExposesPort(t *testing.T) {
	e := newTestExecutor(t)
	state := &jobState{extra: map[string]string{PortEnvVar: "8080"}}
	wf := &workflow.Workflow{Name: "x"}

	env := e.buildEnv(wf, state, nil)
	found := false
	for _, kv := range env {
		if kv == PortEnvVar+"=8080" {
			found = true
		}
	}
	if !found {
		t.Errorf("buildEnv() missing %s, got %d vars", PortEnvVar, len(env))
	}
}

func TestExecutor_BuildEnvPrecedence(t *testing.T) {
	e := newTestExecutor(t)
	t.Setenv("LAYERED", "ambient")

	wf := &workflow.Workflow{Name: "x", Env: map[string]string{"LAYERED": "workflow"}}
	state := &jobState{extra: map[string]string{}}

	env := e.buildEnv(wf, state, map[string]string{"LAYERED": "step"})
	var got string
	for _, kv := range env {
		if strings.HasPrefix(kv, "LAYERED=") {
			got = strings.TrimPrefix(kv, "LAYERED=")
		}
	}
	if got != "step" {
		t.Errorf("LAYERED = %q, want step env to win", got)
	}
}
