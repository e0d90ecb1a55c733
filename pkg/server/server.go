// Copyright 2026 Tracekit Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package server supervises the background trace server a job runs its
// tests against. Unlike a detached shell launch, the server here is a
// managed child: its output is captured, readiness is probed before the
// job proceeds, and it is always reaped when the job ends.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	harnesserrors "github.com/tracekit/ci-harness/pkg/errors"
)

// Options configures a managed server.
type Options struct {
	// Command is the server argv; Command[0] is the binary.
	Command []string
	// Dir is the working directory.
	Dir string
	// Env is the full environment for the process.
	Env []string
	// Port the server is expected to listen on.
	Port int
	// HealthPath, when set, requires an HTTP 2xx from
	// http://127.0.0.1:<port><HealthPath> before the server counts as ready.
	HealthPath string
	// StartupTimeout bounds the readiness wait (default 60s).
	StartupTimeout time.Duration
	// GraceTimeout is the SIGTERM-to-SIGKILL window on Stop (default 5s).
	GraceTimeout time.Duration
}

// Server manages a background server process.
type Server struct {
	mu sync.RWMutex

	opts Options
	cmd  *exec.Cmd

	started bool
	exited  bool

	outBuf   bytes.Buffer
	waitCh   chan error
	exitCode int
}

// New creates a managed server with the given options.
func New(opts Options) *Server {
	if opts.StartupTimeout == 0 {
		opts.StartupTimeout = 60 * time.Second
	}
	if opts.GraceTimeout == 0 {
		opts.GraceTimeout = 5 * time.Second
	}
	return &Server{
		opts:   opts,
		waitCh: make(chan error, 1),
	}
}

// Start launches the server process. It does not wait for readiness;
// call WaitReady afterwards.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return harnesserrors.ServerError("server already started", nil)
	}
	if len(s.opts.Command) == 0 {
		return harnesserrors.ServerError("server command is empty", nil)
	}

	if _, err := exec.LookPath(s.opts.Command[0]); err != nil {
		return harnesserrors.ServerError(fmt.Sprintf("server binary not found: %s", s.opts.Command[0]), err)
	}

	s.cmd = exec.Command(s.opts.Command[0], s.opts.Command[1:]...)
	s.cmd.Dir = s.opts.Dir
	s.cmd.Env = s.opts.Env

	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return harnesserrors.ServerError("failed to create stdout pipe", err)
	}
	stderr, err := s.cmd.StderrPipe()
	if err != nil {
		return harnesserrors.ServerError("failed to create stderr pipe", err)
	}

	if err := s.cmd.Start(); err != nil {
		return harnesserrors.ServerError("failed to start server process", err)
	}
	s.started = true

	// cmd.Wait closes the pipes, so the capture goroutines must drain
	// them first or output is lost on fast exits.
	var pipes sync.WaitGroup
	pipes.Add(2)
	go func() {
		defer pipes.Done()
		s.captureOutput(stdout)
	}()
	go func() {
		defer pipes.Done()
		s.captureOutput(stderr)
	}()

	go func() {
		pipes.Wait()
		err := s.cmd.Wait()
		s.mu.Lock()
		s.exited = true
		if s.cmd.ProcessState != nil {
			s.exitCode = s.cmd.ProcessState.ExitCode()
		}
		s.mu.Unlock()
		s.waitCh <- err
	}()

	return nil
}

// captureOutput copies process output into the shared buffer.
// Uses io.Copy-style chunked reads to avoid line length limitations.
func (s *Server) captureOutput(r io.Reader) {
	copyBuf := make([]byte, 32*1024)
	for {
		n, err := r.Read(copyBuf)
		if n > 0 {
			s.mu.Lock()
			s.outBuf.Write(copyBuf[:n])
			s.mu.Unlock()
		}
		if err != nil {
			break
		}
	}
}

// WaitReady blocks until the server accepts a TCP connection on the
// configured port (and, when configured, answers the health check), or
// until the startup timeout expires or the process exits early.
func (s *Server) WaitReady(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, s.opts.StartupTimeout)
	defer cancel()

	delay := 250 * time.Millisecond
	for {
		if !s.IsRunning() {
			return harnesserrors.ServerError(
				fmt.Sprintf("server exited before becoming ready (exit code %d): %s",
					s.ExitCode(), tail(s.Output(), 2048)), nil)
		}

		err := probe(probeCtx, s.opts.Port, s.opts.HealthPath)
		if err == nil {
			return nil
		}

		select {
		case <-probeCtx.Done():
			if errors.Is(probeCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return harnesserrors.TimeoutError(
					fmt.Sprintf("server not ready on port %d after %s", s.opts.Port, s.opts.StartupTimeout), err)
			}
			return probeCtx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > 5*time.Second {
			delay = 5 * time.Second
		}
	}
}

// Stop terminates the server: SIGTERM first, SIGKILL after the grace
// period. Safe to call on a server that never started or already exited.
func (s *Server) Stop() error {
	s.mu.RLock()
	if !s.started || s.exited {
		s.mu.RUnlock()
		return nil
	}
	cmd := s.cmd
	grace := s.opts.GraceTimeout
	s.mu.RUnlock()

	if cmd.Process == nil {
		return nil
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		if !strings.Contains(err.Error(), "process already finished") {
			return harnesserrors.ServerError("failed to send SIGTERM", err)
		}
		return nil
	}

	select {
	case <-s.waitCh:
		return nil
	case <-time.After(grace):
	}

	if err := cmd.Process.Kill(); err != nil {
		if !strings.Contains(err.Error(), "process already finished") {
			return harnesserrors.ServerError("failed to kill server", err)
		}
	}
	<-s.waitCh
	return nil
}

// IsRunning reports whether the process is alive.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && !s.exited
}

// ExitCode returns the process exit code.
func (s *Server) ExitCode() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exitCode
}

// Output returns the captured combined output so far.
func (s *Server) Output() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outBuf.String()
}

// tail returns the last n bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(s[len(s)-n:])
}
