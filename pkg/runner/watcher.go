// Copyright 2026 Tracekit Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	harnesserrors "github.com/tracekit/ci-harness/pkg/errors"
)

// RetryPolicy defines the retry strategy.
type RetryPolicy struct {
	MaxRetries   int           // Maximum number of retries (default: 3)
	InitialDelay time.Duration // Initial delay between retries (default: 1s)
	MaxDelay     time.Duration // Maximum delay between retries (default: 10s)
	Multiplier   float64       // Delay multiplier for exponential backoff (default: 2.0)
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// RetryExecutor executes functions with retry logic.
type RetryExecutor struct {
	policy *RetryPolicy
}

// NewRetryExecutor creates a new retry executor with the given policy.
func NewRetryExecutor(policy *RetryPolicy) *RetryExecutor {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	return &RetryExecutor{policy: policy}
}

// Execute executes the given function, retrying transient failures.
func (re *RetryExecutor) Execute(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := re.policy.InitialDelay

	for attempt := 0; attempt <= re.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}

			delay = time.Duration(float64(delay) * re.policy.Multiplier)
			if delay > re.policy.MaxDelay {
				delay = re.policy.MaxDelay
			}
		}

		err := fn()
		if err == nil {
			return nil
		}

		classified := ClassifyError(err)
		if !classified.Retryable {
			return err
		}

		lastErr = err
	}

	return fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

// CalculateDelay calculates the delay for a given attempt number.
func (re *RetryExecutor) CalculateDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := re.policy.InitialDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * re.policy.Multiplier)
		if delay > re.policy.MaxDelay {
			return re.policy.MaxDelay
		}
	}
	return delay
}

// ClassifyError classifies an error as retryable or permanent.
//
// Network interruptions, timeouts, and upstream 5xx responses are
// transient; validation, checksum, and provisioning failures are not.
func ClassifyError(err error) *StepError {
	if err == nil {
		return nil
	}

	msg := err.Error()

	if harnesserrors.IsType(err, harnesserrors.ErrWorkflow) ||
		harnesserrors.IsType(err, harnesserrors.ErrConfig) ||
		harnesserrors.IsType(err, harnesserrors.ErrProvision) {
		return &StepError{Code: "PERMANENT", Message: msg, Retryable: false}
	}

	if strings.Contains(msg, "checksum mismatch") {
		return &StepError{Code: "CHECKSUM_MISMATCH", Message: msg, Retryable: false}
	}

	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return &StepError{Code: "TIMEOUT", Message: msg, Retryable: true}
	}

	if strings.Contains(msg, "status 500") || strings.Contains(msg, "status 502") ||
		strings.Contains(msg, "status 503") || strings.Contains(msg, "status 504") ||
		strings.Contains(msg, "status 429") {
		return &StepError{Code: "UPSTREAM_ERROR", Message: msg, Retryable: true}
	}

	if strings.Contains(msg, "status 4") {
		return &StepError{Code: "BAD_REQUEST", Message: msg, Retryable: false}
	}

	if strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") || strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "download interrupted") {
		return &StepError{Code: "NETWORK_ERROR", Message: msg, Retryable: true}
	}

	return &StepError{Code: "UNKNOWN", Message: msg, Retryable: false}
}
