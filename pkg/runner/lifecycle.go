// Copyright 2026 Tracekit Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tracekit/ci-harness/pkg/history"
	"github.com/tracekit/ci-harness/pkg/observability"
	"github.com/tracekit/ci-harness/pkg/schedule"
	"github.com/tracekit/ci-harness/pkg/workflow"
)

// State represents the runner lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateRunning
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Options holds runner configuration options.
type Options struct {
	// Event is the trigger event to evaluate the workflow against.
	Event workflow.Event
	// Parallel is the number of matrix jobs run concurrently.
	Parallel int
	// Force bypasses the artifact cache.
	Force bool
	// DryRun plans without executing.
	DryRun bool
	// WorkDir is the root for per-job work directories.
	WorkDir string
	// CacheDir backs the artifact cache.
	CacheDir string
	// StepTimeout is the default run-step timeout.
	StepTimeout time.Duration
	// GracefulTimeout is the server shutdown grace period.
	GracefulTimeout time.Duration
	// Logger receives structured run logs.
	Logger *slog.Logger
	// Metrics, when set, receives run metrics.
	Metrics *observability.Metrics
	// History, when set, persists run results.
	History *history.Store
}

// Runner executes workflows.
type Runner struct {
	mu sync.RWMutex

	opts     *Options
	executor *Executor
	state    State
}

// New creates a Runner with the given options.
func New(opts *Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Parallel <= 0 {
		opts.Parallel = 1
	}

	executorOpts := []ExecutorOption{
		WithForce(opts.Force),
		WithDryRun(opts.DryRun),
		WithMetrics(opts.Metrics),
	}
	if opts.StepTimeout > 0 {
		executorOpts = append(executorOpts, WithStepTimeout(opts.StepTimeout))
	}
	if opts.GracefulTimeout > 0 {
		executorOpts = append(executorOpts, WithGracefulTimeout(opts.GracefulTimeout))
	}

	return &Runner{
		opts:     opts,
		executor: NewExecutor(opts.WorkDir, opts.CacheDir, opts.Logger, executorOpts...),
		state:    StateUninitialized,
	}
}

// State returns the current lifecycle state.
func (r *Runner) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *Runner) transition(from, to State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != from {
		return fmt.Errorf("invalid state transition: %s -> %s (current %s)", from, to, r.state)
	}
	r.state = to
	return nil
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Run evaluates the workflow against the configured event and, when it
// matches, executes every matrix job. Cancelling ctx tears down running
// jobs, including managed servers.
func (r *Runner) Run(ctx context.Context, wf *workflow.Workflow) (*RunResult, error) {
	if err := r.transition(StateUninitialized, StateRunning); err != nil {
		return nil, err
	}
	defer r.setState(StateStopped)

	start := time.Now()
	result := &RunResult{
		RunID:     uuid.NewString(),
		Workflow:  wf.Name,
		Event:     r.opts.Event,
		StartedAt: start,
	}

	logger := observability.WithRunID(r.opts.Logger, result.RunID)

	if len(wf.On.Schedule) > 0 {
		if next, err := schedule.NextRunAny(wf.On.Schedule, start); err == nil {
			result.NextScheduled = next
		}
	}

	if ok, reason := wf.Matches(r.opts.Event); !ok {
		logger.Info("workflow skipped", "workflow", wf.Name, "reason", reason)
		result.Skipped = true
		result.SkipReason = reason
		result.Status = StatusSkipped
		r.setState(StateShuttingDown)
		r.finish(ctx, logger, result)
		return result, nil
	}

	entries := wf.Matrix.Expand()
	logger.Info("run started",
		"workflow", wf.Name,
		"event", string(r.opts.Event.Kind),
		"branch", r.opts.Event.Branch,
		"jobs", len(entries),
		"parallel", r.opts.Parallel,
		"dry_run", r.opts.DryRun,
	)

	result.Jobs = r.runJobs(ctx, wf, entries)
	result.Status = aggregateStatus(result.Jobs)

	r.setState(StateShuttingDown)
	r.finish(ctx, logger, result)
	logger.Info("run finished", "status", string(result.Status), "duration", result.Duration)
	return result, nil
}

// runJobs executes matrix jobs with bounded concurrency, preserving
// matrix order in the results.
func (r *Runner) runJobs(ctx context.Context, wf *workflow.Workflow, entries []workflow.MatrixEntry) []JobResult {
	results := make([]JobResult, len(entries))
	sem := make(chan struct{}, r.opts.Parallel)
	var wg sync.WaitGroup

	for i, entry := range entries {
		wg.Add(1)
		go func(idx int, entry workflow.MatrixEntry) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = JobResult{
					Name:   entry.Name(),
					Matrix: entry,
					Status: StatusSkipped,
				}
				return
			}

			if r.opts.Metrics != nil {
				r.opts.Metrics.JobStarted()
				defer r.opts.Metrics.JobFinished()
			}
			results[idx] = r.executor.RunJob(ctx, wf, entry)
		}(i, entry)
	}

	wg.Wait()
	return results
}

// finish stamps timing, records metrics, and persists history.
func (r *Runner) finish(ctx context.Context, logger *slog.Logger, result *RunResult) {
	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)

	if r.opts.Metrics != nil {
		r.opts.Metrics.RecordRun(string(result.Status))
		for _, job := range result.Jobs {
			r.opts.Metrics.RecordJob(string(job.Status))
		}
	}

	if r.opts.History == nil {
		return
	}
	rec := history.RunRecord{
		ID:         result.RunID,
		Workflow:   result.Workflow,
		Event:      string(result.Event.Kind),
		Branch:     result.Event.Branch,
		Status:     string(result.Status),
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
	}
	for _, job := range result.Jobs {
		failed := 0
		for _, step := range job.Steps {
			if step.Status == StatusFailed || step.Status == StatusTimedOut {
				failed++
			}
		}
		rec.Jobs = append(rec.Jobs, history.JobRecord{
			Name:        job.Name,
			Matrix:      job.Name,
			Status:      string(job.Status),
			StepsTotal:  len(job.Steps),
			StepsFailed: failed,
			Duration:    job.Duration,
		})
	}
	if err := r.opts.History.SaveRun(ctx, rec); err != nil {
		logger.Warn("failed to persist run history", "error", err)
	}
}

// aggregateStatus reduces job statuses to a run status.
func aggregateStatus(jobs []JobResult) Status {
	status := StatusPassed
	allSkipped := len(jobs) > 0
	for _, job := range jobs {
		if job.Status != StatusSkipped {
			allSkipped = false
		}
		switch job.Status {
		case StatusTimedOut:
			return StatusTimedOut
		case StatusFailed:
			status = StatusFailed
		}
	}
	if allSkipped {
		return StatusSkipped
	}
	return status
}
