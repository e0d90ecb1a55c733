// Copyright 2026 Tracekit Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package runner

import "errors"

// Exit codes reported by the harness binary.
const (
	ExitSuccess    = 0   // Run passed or was skipped
	ExitInfraError = 1   // Infrastructure error (config, provisioning, artifacts)
	ExitTestFailed = 2   // A run step (test suite) failed
	ExitTimeout    = 101 // Execution timed out
)

// Errors
var (
	ErrProcessAlreadyRun  = errors.New("process has already been started")
	ErrTimeout            = errors.New("execution timed out")
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	ErrNoVirtualEnv       = errors.New("no virtualenv: install-deps requires a setup-python step first")
)

// StepError represents a classified step failure.
type StepError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *StepError) Error() string {
	return e.Code + ": " + e.Message
}
