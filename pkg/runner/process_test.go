package runner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestStepProcess_Success(t *testing.T) {
	p := NewStepProcess([]string{"sh", "-c", "echo hello"}).WithDir(t.TempDir())
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	out, err := p.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if !strings.Contains(out, "hello") {
		t.Errorf("output = %q, want hello", out)
	}
	if p.ExitCode() != 0 {
		t.Errorf("ExitCode() = %d, want 0", p.ExitCode())
	}
}

func TestStepProcess_FastExitOutputCaptured(t *testing.T) {
	// A process that exits as soon as it has written must not lose
	// output to the Wait/pipe-close race.
	for i := 0; i < 20; i++ {
		p := NewStepProcess([]string{"sh", "-c", "echo collected 3 items"})
		if err := p.Start(context.Background()); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		out, err := p.Wait(context.Background())
		if err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
		if !strings.Contains(out, "collected 3 items") {
			t.Fatalf("iteration %d: output = %q, want captured stdout", i, out)
		}
	}
}

func TestStepProcess_Failure(t *testing.T) {
	p := NewStepProcess([]string{"sh", "-c", "echo broken 1>&2; exit 7"})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	out, err := p.Wait(context.Background())
	if err == nil {
		t.Fatal("Wait() expected error for failing process")
	}
	if !strings.Contains(err.Error(), "exit code 7") {
		t.Errorf("error = %v, want exit code in message", err)
	}
	if !strings.Contains(out, "broken") {
		t.Errorf("output = %q, want stderr captured", out)
	}
}

func TestStepProcess_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	p := NewStepProcess([]string{"sleep", "30"})
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	_, err := p.Wait(ctx)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Wait() error = %v, want ErrTimeout", err)
	}
}

func TestStepProcess_MissingBinary(t *testing.T) {
	p := NewStepProcess([]string{"no-such-binary-odds-on"})
	err := p.Start(context.Background())
	if err == nil {
		t.Fatal("Start() expected error")
	}
	if !strings.Contains(err.Error(), "command not found") {
		t.Errorf("error = %v", err)
	}
}

func TestStepProcess_DoubleStart(t *testing.T) {
	p := NewStepProcess([]string{"sh", "-c", "true"})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer p.Wait(context.Background())

	if err := p.Start(context.Background()); !errors.Is(err, ErrProcessAlreadyRun) {
		t.Errorf("second Start() error = %v, want ErrProcessAlreadyRun", err)
	}
}

func TestStepProcess_EnvPassed(t *testing.T) {
	p := NewStepProcess([]string{"sh", "-c", `echo "port=$TRACE_SERVER_PORT"`}).
		WithEnv([]string{"PATH=/usr/bin:/bin", "TRACE_SERVER_PORT=8080"})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	out, err := p.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if !strings.Contains(out, "port=8080") {
		t.Errorf("output = %q, want injected env var", out)
	}
}
