package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestHarnessError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *HarnessError
		want string
	}{
		{
			name: "without cause",
			err:  WorkflowError("workflow name is required", nil),
			want: "[WORKFLOW] workflow name is required",
		},
		{
			name: "with cause",
			err:  ArtifactError("download failed", stderrors.New("connection refused")),
			want: "[ARTIFACT] download failed: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsType(t *testing.T) {
	err := TimeoutError("server not ready", nil)

	if !IsType(err, ErrTimeout) {
		t.Error("IsType() = false for matching type")
	}
	if IsType(err, ErrServer) {
		t.Error("IsType() = true for wrong type")
	}
	if IsType(nil, ErrTimeout) {
		t.Error("IsType(nil) = true")
	}
	if IsType(stderrors.New("plain"), ErrTimeout) {
		t.Error("IsType() = true for untyped error")
	}

	// Wrapped errors still classify.
	wrapped := fmt.Errorf("step 3: %w", err)
	if !IsType(wrapped, ErrTimeout) {
		t.Error("IsType() = false for wrapped error")
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("root cause")
	err := ServerError("failed to start", cause)

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is() does not reach the cause")
	}
}

func TestShouldBlockRun(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"config error blocks", ConfigError("bad config", nil), true},
		{"workflow error blocks", WorkflowError("bad workflow", nil), true},
		{"provision error does not block", ProvisionError("no python", nil), false},
		{"artifact error does not block", ArtifactError("404", nil), false},
		{"plain error does not block", stderrors.New("plain"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldBlockRun(tt.err); got != tt.want {
				t.Errorf("ShouldBlockRun() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithContext(t *testing.T) {
	err := TestError("suite failed", nil).
		WithContext("job", "python-version=3.10").
		WithContext("step", "run tests")

	if err.Context["job"] != "python-version=3.10" {
		t.Errorf("Context[job] = %v", err.Context["job"])
	}
	if len(err.Context) != 2 {
		t.Errorf("len(Context) = %d, want 2", len(err.Context))
	}
}

func TestErrorTypeString(t *testing.T) {
	if !strings.Contains(ProvisionError("x", nil).Error(), "[PROVISION]") {
		t.Error("provision errors should carry the PROVISION tag")
	}
	if !strings.Contains(New(ErrorType(42), "x", nil).Error(), "[UNKNOWN]") {
		t.Error("unknown types should render as UNKNOWN")
	}
}
