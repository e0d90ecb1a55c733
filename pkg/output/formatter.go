// Copyright 2026 Tracekit Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package output provides result formatting and reporting.
package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/tracekit/ci-harness/pkg/runner"
)

// Formatter formats run results.
type Formatter struct{}

// NewFormatter creates a new formatter.
func NewFormatter() *Formatter {
	return &Formatter{}
}

// FormatText renders a terminal summary of the run.
func (f *Formatter) FormatText(result *runner.RunResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Workflow: %s\n", result.Workflow)
	fmt.Fprintf(&b, "Run:      %s\n", result.RunID)
	fmt.Fprintf(&b, "Trigger:  %s", result.Event.Kind)
	if result.Event.Branch != "" {
		fmt.Fprintf(&b, " (%s)", result.Event.Branch)
	}
	b.WriteByte('\n')

	if result.Skipped {
		fmt.Fprintf(&b, "Status:   skipped (%s)\n", result.SkipReason)
		return b.String()
	}

	fmt.Fprintf(&b, "Status:   %s in %s\n", result.Status, round(result.Duration))
	if !result.NextScheduled.IsZero() {
		fmt.Fprintf(&b, "Next scheduled run: %s\n", result.NextScheduled.Format(time.RFC3339))
	}
	b.WriteByte('\n')

	for _, job := range result.Jobs {
		fmt.Fprintf(&b, "  [%s] %s (%s)\n", statusMark(string(job.Status)), job.Name, round(job.Duration))
		for _, step := range job.Steps {
			fmt.Fprintf(&b, "      %-8s %s (%s)", step.Status, step.Name, round(step.Duration))
			if step.Retries > 0 {
				fmt.Fprintf(&b, " after %d retries", step.Retries)
			}
			b.WriteByte('\n')
			if step.Err != nil {
				fmt.Fprintf(&b, "               %v\n", step.Err)
			}
		}
	}
	return b.String()
}

// FormatMarkdown renders a markdown report suitable for a CI comment body.
func (f *Formatter) FormatMarkdown(result *runner.RunResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Workflow `%s`: %s\n\n", result.Workflow, result.Status)

	if result.Skipped {
		fmt.Fprintf(&b, "Skipped: %s\n", result.SkipReason)
		return b.String()
	}

	b.WriteString("| Job | Status | Duration | Failed step |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, job := range result.Jobs {
		failed := job.FailedStep
		if failed == "" {
			failed = "(none)"
		}
		fmt.Fprintf(&b, "| `%s` | %s | %s | %s |\n",
			job.Name, job.Status, round(job.Duration), failed)
	}

	for _, job := range result.Jobs {
		for _, step := range job.Steps {
			if step.Err == nil {
				continue
			}
			fmt.Fprintf(&b, "\n<details><summary>%s / %s</summary>\n\n```\n%v\n", job.Name, step.Name, step.Err)
			if step.Output != "" {
				fmt.Fprintf(&b, "\n%s\n", step.Output)
			}
			b.WriteString("```\n\n</details>\n")
		}
	}
	return b.String()
}

func statusMark(status string) string {
	switch status {
	case "passed":
		return "ok"
	case "skipped":
		return "--"
	default:
		return "!!"
	}
}

func round(d time.Duration) time.Duration {
	if d >= time.Second {
		return d.Round(100 * time.Millisecond)
	}
	return d.Round(time.Millisecond)
}
