// Copyright 2026 Tracekit Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
)

// StepProcess manages a foreground step subprocess (test runner,
// arbitrary run commands).
type StepProcess struct {
	mu sync.RWMutex

	cmd  *exec.Cmd
	argv []string
	dir  string
	env  []string

	started bool
	exited  bool

	outBuf   bytes.Buffer
	waitCh   chan error
	exitCode int
}

// NewStepProcess creates a step process for the given argv.
func NewStepProcess(argv []string) *StepProcess {
	return &StepProcess{
		argv:   argv,
		waitCh: make(chan error, 1),
	}
}

// WithDir sets the working directory.
func (p *StepProcess) WithDir(dir string) *StepProcess {
	p.dir = dir
	return p
}

// WithEnv sets the full process environment.
func (p *StepProcess) WithEnv(env []string) *StepProcess {
	p.env = env
	return p
}

// Start starts the process.
func (p *StepProcess) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrProcessAlreadyRun
	}
	if len(p.argv) == 0 {
		return fmt.Errorf("empty command")
	}

	if _, err := exec.LookPath(p.argv[0]); err != nil {
		return fmt.Errorf("command not found: %s", p.argv[0])
	}

	p.cmd = exec.CommandContext(ctx, p.argv[0], p.argv[1:]...)
	p.cmd.Dir = p.dir
	p.cmd.Env = p.env

	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := p.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start process: %w", err)
	}
	p.started = true

	// cmd.Wait closes the pipes, so the capture goroutines must drain
	// them first or output is lost on fast exits.
	var pipes sync.WaitGroup
	pipes.Add(2)
	go func() {
		defer pipes.Done()
		p.captureOutput(stdout)
	}()
	go func() {
		defer pipes.Done()
		p.captureOutput(stderr)
	}()

	go func() {
		pipes.Wait()
		err := p.cmd.Wait()
		p.mu.Lock()
		p.exited = true
		if p.cmd.ProcessState != nil {
			p.exitCode = p.cmd.ProcessState.ExitCode()
		}
		p.mu.Unlock()
		p.waitCh <- err
	}()

	return nil
}

// captureOutput captures output from a reader into the shared buffer.
// Uses chunked reads instead of bufio.Scanner to avoid line length limits.
func (p *StepProcess) captureOutput(r io.Reader) {
	copyBuf := make([]byte, 32*1024)
	for {
		n, err := r.Read(copyBuf)
		if n > 0 {
			p.mu.Lock()
			p.outBuf.Write(copyBuf[:n])
			p.mu.Unlock()
		}
		if err != nil {
			break
		}
	}
}

// Wait waits for the process to complete and returns its output.
func (p *StepProcess) Wait(ctx context.Context) (string, error) {
	select {
	case err := <-p.waitCh:
		p.mu.RLock()
		output := p.outBuf.String()
		exitCode := p.exitCode
		p.mu.RUnlock()

		if err != nil {
			if ctx.Err() != nil {
				return output, ErrTimeout
			}
			return output, fmt.Errorf("process failed (exit code %d): %s", exitCode, tail(output, 2048))
		}
		return output, nil

	case <-ctx.Done():
		_ = p.Kill()
		return p.Output(), ErrTimeout
	}
}

// Kill forcefully kills the process.
func (p *StepProcess) Kill() error {
	p.mu.RLock()
	if !p.started || p.exited {
		p.mu.RUnlock()
		return nil
	}
	cmd := p.cmd
	p.mu.RUnlock()

	if cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Signal(syscall.SIGKILL); err != nil {
		if !strings.Contains(err.Error(), "process already finished") {
			return fmt.Errorf("failed to kill process: %w", err)
		}
	}
	return nil
}

// IsRunning checks if the process is running.
func (p *StepProcess) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started && !p.exited
}

// ExitCode returns the process exit code.
func (p *StepProcess) ExitCode() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitCode
}

// Output returns the captured combined output.
func (p *StepProcess) Output() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.outBuf.String()
}

// tail returns the last n bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(s[len(s)-n:])
}
