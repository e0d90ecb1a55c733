// Package runner provides the core workflow execution engine.
package runner

import (
	"time"

	"github.com/tracekit/ci-harness/pkg/workflow"
)

// Status is the outcome of a run, job, or step.
type Status string

const (
	StatusPassed   Status = "passed"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"
	StatusTimedOut Status = "timed_out"
)

// StepResult is the outcome of a single step.
type StepResult struct {
	// Name is the step display name.
	Name string
	// Uses is the step kind.
	Uses string
	// Status is the step outcome.
	Status Status
	// Duration is the step execution time.
	Duration time.Duration
	// Retries is the number of retries performed.
	Retries int
	// Output is the tail of the captured output.
	Output string
	// Err is the failure, if any.
	Err error
}

// JobResult is the outcome of one matrix job.
type JobResult struct {
	// Name identifies the matrix entry, e.g. "python-version=3.10".
	Name string
	// Matrix holds the entry's axis values.
	Matrix workflow.MatrixEntry
	// Status is the job outcome.
	Status Status
	// Steps are the per-step outcomes in execution order.
	Steps []StepResult
	// Duration is the job execution time.
	Duration time.Duration
	// FailedStep names the step that failed the job, if any.
	FailedStep string
}

// RunResult is the outcome of a workflow run.
type RunResult struct {
	// RunID uniquely identifies the run.
	RunID string
	// Workflow is the workflow name.
	Workflow string
	// Event is the trigger event the run was evaluated against.
	Event workflow.Event
	// Skipped indicates the trigger did not match.
	Skipped bool
	// SkipReason explains a skip.
	SkipReason string
	// Status is the aggregate outcome.
	Status Status
	// Jobs are the matrix job outcomes.
	Jobs []JobResult

	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration

	// NextScheduled is the next due time when the workflow has schedule
	// triggers; zero otherwise.
	NextScheduled time.Time
}

// ExitCode maps the run outcome to the harness exit code.
func (r *RunResult) ExitCode() int {
	if r.Skipped || r.Status == StatusPassed || r.Status == StatusSkipped {
		return ExitSuccess
	}

	testFailure := false
	for _, job := range r.Jobs {
		for _, step := range job.Steps {
			if step.Status == StatusTimedOut {
				return ExitTimeout
			}
			if step.Status == StatusFailed && step.Uses == workflow.UsesRun {
				testFailure = true
			}
			if step.Status == StatusFailed && step.Uses != workflow.UsesRun {
				// Infra failures dominate: a broken environment is not
				// a test verdict.
				return ExitInfraError
			}
		}
	}
	if testFailure {
		return ExitTestFailed
	}
	return ExitInfraError
}
