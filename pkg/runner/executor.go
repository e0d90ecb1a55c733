// Copyright 2026 Tracekit Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tracekit/ci-harness/pkg/artifact"
	"github.com/tracekit/ci-harness/pkg/observability"
	"github.com/tracekit/ci-harness/pkg/server"
	"github.com/tracekit/ci-harness/pkg/toolchain"
	"github.com/tracekit/ci-harness/pkg/workflow"
)

// PortEnvVar is the environment variable exposing the managed server's
// port to subsequent steps, mirroring how the test suite expects to find
// the trace server.
const PortEnvVar = "TRACE_SERVER_PORT"

// Executor executes a single matrix job's steps.
type Executor struct {
	workDir      string
	force        bool
	dryRun       bool
	stepTimeout  time.Duration
	graceTimeout time.Duration

	downloader *artifact.Downloader
	retry      *RetryExecutor
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithForce bypasses the artifact cache.
func WithForce(force bool) ExecutorOption {
	return func(e *Executor) { e.force = force }
}

// WithDryRun plans steps without executing them.
func WithDryRun(dryRun bool) ExecutorOption {
	return func(e *Executor) { e.dryRun = dryRun }
}

// WithStepTimeout sets the default timeout for run steps.
func WithStepTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) { e.stepTimeout = timeout }
}

// WithGracefulTimeout sets the server SIGTERM-to-SIGKILL window.
func WithGracefulTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) { e.graceTimeout = timeout }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *observability.Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// NewExecutor creates a job executor. workDir is the root under which
// per-job directories are created; cacheDir backs the artifact cache.
func NewExecutor(workDir, cacheDir string, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		workDir:      workDir,
		stepTimeout:  30 * time.Minute,
		graceTimeout: 5 * time.Second,
		downloader:   artifact.NewDownloader(artifact.NewDiskCache(cacheDir), logger),
		retry:        NewRetryExecutor(DefaultRetryPolicy()),
		logger:       logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// jobState carries the environment a job accumulates across steps.
type jobState struct {
	dir    string
	venv   *toolchain.VirtualEnv
	extra  map[string]string
	server *server.Server
}

// RunJob executes all steps of one matrix job and returns its result.
// The managed server, if any, is always stopped before returning.
func (e *Executor) RunJob(ctx context.Context, wf *workflow.Workflow, entry workflow.MatrixEntry) JobResult {
	start := time.Now()
	result := JobResult{
		Name:   entry.Name(),
		Matrix: entry,
		Status: StatusPassed,
	}

	logger := observability.WithJob(e.logger, result.Name)

	steps, err := wf.RenderSteps(entry)
	if err != nil {
		result.Status = StatusFailed
		result.FailedStep = "render"
		result.Steps = append(result.Steps, StepResult{
			Name: "render", Uses: "render", Status: StatusFailed, Err: err,
		})
		result.Duration = time.Since(start)
		return result
	}

	if e.dryRun {
		for _, step := range steps {
			result.Steps = append(result.Steps, StepResult{
				Name: step.DisplayName(), Uses: step.Uses, Status: StatusSkipped,
			})
		}
		result.Status = StatusSkipped
		result.Duration = time.Since(start)
		return result
	}

	state := &jobState{
		dir:   filepath.Join(e.workDir, sanitize(wf.Name), sanitize(result.Name)),
		extra: make(map[string]string),
	}
	if err := os.MkdirAll(state.dir, 0o755); err != nil {
		result.Status = StatusFailed
		result.FailedStep = "workdir"
		result.Steps = append(result.Steps, StepResult{
			Name: "workdir", Uses: "workdir", Status: StatusFailed, Err: err,
		})
		result.Duration = time.Since(start)
		return result
	}

	defer func() {
		if state.server != nil {
			if err := state.server.Stop(); err != nil {
				logger.Warn("server shutdown failed", "error", err)
			} else {
				logger.Info("server stopped")
			}
		}
	}()

	for _, step := range steps {
		stepRes := e.runStep(ctx, logger, wf, state, step)
		result.Steps = append(result.Steps, stepRes)

		if e.metrics != nil {
			e.metrics.RecordStep(step.Uses, string(stepRes.Status), stepRes.Duration)
		}

		if stepRes.Status == StatusFailed || stepRes.Status == StatusTimedOut {
			if step.ContinueOnError && stepRes.Status == StatusFailed {
				logger.Warn("step failed, continuing", "step", step.DisplayName(), "error", stepRes.Err)
				continue
			}
			result.Status = stepRes.Status
			result.FailedStep = step.DisplayName()
			break
		}
	}

	result.Duration = time.Since(start)
	return result
}

// runStep dispatches a single step by kind.
func (e *Executor) runStep(ctx context.Context, logger *slog.Logger, wf *workflow.Workflow, state *jobState, step workflow.Step) StepResult {
	start := time.Now()
	res := StepResult{Name: step.DisplayName(), Uses: step.Uses, Status: StatusPassed}

	logger.Info("step started", "step", res.Name, "uses", step.Uses)

	var err error
	switch step.Uses {
	case workflow.UsesSetupPython:
		err = e.setupPython(ctx, logger, state, step)
	case workflow.UsesInstallDeps:
		err = e.installDeps(ctx, state, step)
	case workflow.UsesSetupJava:
		err = e.setupJava(ctx, logger, step)
	case workflow.UsesDownload:
		err = e.download(ctx, state, step)
	case workflow.UsesServe:
		err = e.serve(ctx, logger, wf, state, step)
	case workflow.UsesRun:
		res.Output, res.Retries, err = e.runCommand(ctx, wf, state, step)
	default:
		err = fmt.Errorf("unknown step kind %q", step.Uses)
	}

	res.Duration = time.Since(start)
	if err != nil {
		res.Err = err
		if ctx.Err() != nil || err == ErrTimeout {
			res.Status = StatusTimedOut
		} else {
			res.Status = StatusFailed
		}
		logger.Error("step failed", "step", res.Name, "duration", res.Duration, "error", err)
		return res
	}

	logger.Info("step finished", "step", res.Name, "duration", res.Duration)
	return res
}

func (e *Executor) setupPython(ctx context.Context, logger *slog.Logger, state *jobState, step workflow.Step) error {
	py, err := toolchain.FindPython(ctx, step.Version)
	if err != nil {
		return err
	}
	logger.Info("python resolved", "version", py.Version, "path", py.Path)

	venv, err := toolchain.CreateVenv(ctx, py, filepath.Join(state.dir, "venv"), logger)
	if err != nil {
		return err
	}
	state.venv = venv
	return nil
}

func (e *Executor) installDeps(ctx context.Context, state *jobState, step workflow.Step) error {
	if state.venv == nil {
		return ErrNoVirtualEnv
	}
	return state.venv.Install(ctx, toolchain.InstallSpec{
		Requirements: step.Requirements,
		Packages:     step.Packages,
		UpgradePip:   step.UpgradePip,
	})
}

func (e *Executor) setupJava(ctx context.Context, logger *slog.Logger, step workflow.Step) error {
	java, err := toolchain.EnsureJava(ctx, step.MinVersion)
	if err != nil {
		return err
	}
	logger.Info("java resolved", "major", java.Major, "path", java.Path)
	return nil
}

func (e *Executor) download(ctx context.Context, state *jobState, step workflow.Step) error {
	var path string
	var cached bool

	err := e.retry.Execute(ctx, func() error {
		var fetchErr error
		path, cached, fetchErr = e.downloader.Fetch(ctx, artifact.Spec{
			URL:    step.URL,
			SHA256: step.SHA256,
			Force:  e.force,
		})
		return fetchErr
	})
	if e.metrics != nil {
		switch {
		case err != nil:
			e.metrics.RecordArtifactFetch("error")
		case cached:
			e.metrics.RecordArtifactFetch("hit")
		default:
			e.metrics.RecordArtifactFetch("miss")
		}
	}
	if err != nil {
		return err
	}

	if step.Extract {
		return artifact.Extract(path, e.resolvePath(state, step.Dest))
	}
	if step.Dest != "" {
		// Non-archive artifacts are copied to their destination so the
		// cache entry stays pristine.
		return copyFile(path, e.resolvePath(state, step.Dest))
	}
	return nil
}

func (e *Executor) serve(ctx context.Context, logger *slog.Logger, wf *workflow.Workflow, state *jobState, step workflow.Step) error {
	state.extra[PortEnvVar] = strconv.Itoa(step.Port)

	srv := server.New(server.Options{
		Command:        step.Command,
		Dir:            state.dir,
		Env:            e.buildEnv(wf, state, step.Env),
		Port:           step.Port,
		HealthPath:     step.HealthPath,
		StartupTimeout: step.StartupTimeout.Std(),
		GraceTimeout:   e.graceTimeout,
	})

	if err := srv.Start(ctx); err != nil {
		return err
	}
	state.server = srv

	logger.Info("server launched, waiting for readiness", "port", step.Port)
	waitStart := time.Now()
	if err := srv.WaitReady(ctx); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.RecordReadinessWait(time.Since(waitStart))
	}
	logger.Info("server ready", "port", step.Port, "wait", time.Since(waitStart))
	return nil
}

// runCommand executes a run step with per-step timeout and retries.
func (e *Executor) runCommand(ctx context.Context, wf *workflow.Workflow, state *jobState, step workflow.Step) (string, int, error) {
	timeout := step.Timeout.Std()
	if timeout == 0 {
		timeout = e.stepTimeout
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	env := e.buildEnv(wf, state, step.Env)

	var output string
	var lastErr error
	for attempt := 0; attempt <= step.Retries; attempt++ {
		if attempt > 0 {
			delay := e.retry.CalculateDelay(attempt)
			select {
			case <-time.After(delay):
			case <-execCtx.Done():
				return output, attempt, ErrTimeout
			}
		}

		output, lastErr = e.runOnce(execCtx, state, step.Command, env)
		if lastErr == nil {
			return output, attempt, nil
		}
		if execCtx.Err() != nil {
			return output, attempt, ErrTimeout
		}
	}
	return output, step.Retries, lastErr
}

func (e *Executor) runOnce(ctx context.Context, state *jobState, argv, env []string) (string, error) {
	process := NewStepProcess(argv).WithDir(state.dir).WithEnv(env)
	if err := process.Start(ctx); err != nil {
		return "", err
	}
	out, err := process.Wait(ctx)
	return tail(out, 4096), err
}

// buildEnv composes the process environment: ambient environment, then
// workflow env, then accumulated job env (server port), then step env.
// The virtualenv's bin directory is prepended to PATH when present.
func (e *Executor) buildEnv(wf *workflow.Workflow, state *jobState, stepEnv map[string]string) []string {
	merged := make(map[string]string)
	for _, kv := range os.Environ() {
		if idx := strings.IndexByte(kv, '='); idx > 0 {
			merged[kv[:idx]] = kv[idx+1:]
		}
	}
	for k, v := range wf.Env {
		merged[k] = v
	}
	for k, v := range state.extra {
		merged[k] = v
	}
	for k, v := range stepEnv {
		merged[k] = v
	}

	if state.venv != nil {
		merged["PATH"] = state.venv.BinDir() + string(os.PathListSeparator) + merged["PATH"]
		merged["VIRTUAL_ENV"] = state.venv.Dir
	}

	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	return env
}

// resolvePath anchors relative destinations in the job work dir.
func (e *Executor) resolvePath(state *jobState, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(state.dir, path)
}

// sanitize makes a matrix entry name safe as a directory component.
func sanitize(name string) string {
	replacer := strings.NewReplacer("/", "-", "=", "-", ",", "-", " ", "-", ":", "-")
	return replacer.Replace(name)
}

// copyFile copies src to dst, preserving the source mode.
func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, info.Mode().Perm())
}
