// Package errors provides typed errors for ci-harness.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error.
type ErrorType int

const (
	// ErrConfig indicates a harness configuration error
	ErrConfig ErrorType = iota
	// ErrWorkflow indicates a workflow parse/validation error
	ErrWorkflow
	// ErrProvision indicates a toolchain provisioning error
	ErrProvision
	// ErrArtifact indicates an artifact download/extract error
	ErrArtifact
	// ErrServer indicates a managed server error
	ErrServer
	// ErrTest indicates a test/run step failure
	ErrTest
	// ErrTimeout indicates a timeout occurred
	ErrTimeout
)

// HarnessError is the base error type for all ci-harness errors.
type HarnessError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error returns the error message.
func (e *HarnessError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", errorTypeString(e.Type), e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", errorTypeString(e.Type), e.Message)
}

// Unwrap returns the underlying cause.
func (e *HarnessError) Unwrap() error {
	return e.Cause
}

// New creates a new HarnessError.
func New(errType ErrorType, message string, cause error) *HarnessError {
	return &HarnessError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context to the error.
func (e *HarnessError) WithContext(key string, value interface{}) *HarnessError {
	e.Context[key] = value
	return e
}

// IsType checks if an error is of a specific type.
func IsType(err error, errType ErrorType) bool {
	var herr *HarnessError
	if err == nil {
		return false
	}
	if errors.As(err, &herr) {
		return herr.Type == errType
	}
	return false
}

// ShouldBlockRun returns true if the error should abort the whole run
// rather than just failing the current job.
func ShouldBlockRun(err error) bool {
	var herr *HarnessError
	if !errors.As(err, &herr) {
		return false
	}
	switch herr.Type {
	case ErrConfig, ErrWorkflow:
		// The user has to fix the input; no job can succeed.
		return true
	default:
		return false
	}
}

func errorTypeString(et ErrorType) string {
	switch et {
	case ErrConfig:
		return "CONFIG"
	case ErrWorkflow:
		return "WORKFLOW"
	case ErrProvision:
		return "PROVISION"
	case ErrArtifact:
		return "ARTIFACT"
	case ErrServer:
		return "SERVER"
	case ErrTest:
		return "TEST"
	case ErrTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// Convenience functions for common errors

// ConfigError creates a configuration error.
func ConfigError(message string, cause error) *HarnessError {
	return New(ErrConfig, message, cause)
}

// WorkflowError creates a workflow error.
func WorkflowError(message string, cause error) *HarnessError {
	return New(ErrWorkflow, message, cause)
}

// ProvisionError creates a toolchain provisioning error.
func ProvisionError(message string, cause error) *HarnessError {
	return New(ErrProvision, message, cause)
}

// ArtifactError creates an artifact error.
func ArtifactError(message string, cause error) *HarnessError {
	return New(ErrArtifact, message, cause)
}

// ServerError creates a managed server error.
func ServerError(message string, cause error) *HarnessError {
	return New(ErrServer, message, cause)
}

// TestError creates a test failure error.
func TestError(message string, cause error) *HarnessError {
	return New(ErrTest, message, cause)
}

// TimeoutError creates a timeout error.
func TimeoutError(message string, cause error) *HarnessError {
	return New(ErrTimeout, message, cause)
}
