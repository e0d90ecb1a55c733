// Package main provides the ci-harness CLI application.
package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tracekit/ci-harness/pkg/schedule"
	"github.com/tracekit/ci-harness/pkg/workflow"
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate [workflow.yaml]",
	Short: "Validate a workflow file and print the execution plan",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workflowPath := defaultWorkflowFile
		if len(args) == 1 {
			workflowPath = args[0]
		}

		wf, err := workflow.Load(workflowPath)
		if err != nil {
			return err
		}

		fmt.Printf("Workflow %q is valid.\n\n", wf.Name)

		fmt.Println("Triggers:")
		if wf.On.Push != nil {
			fmt.Printf("  push: %s\n", branchList(wf.On.Push))
		}
		if wf.On.PullRequest != nil {
			fmt.Printf("  pull_request: %s\n", branchList(wf.On.PullRequest))
		}
		for _, expr := range wf.On.Schedule {
			next, _ := schedule.NextRun(expr, time.Now())
			fmt.Printf("  schedule: %q (next: %s)\n", expr, next.Format(time.RFC3339))
		}

		entries := wf.Matrix.Expand()
		fmt.Printf("\nJobs (%d):\n", len(entries))
		for _, entry := range entries {
			fmt.Printf("  %s\n", entry.Name())
			steps, err := wf.RenderSteps(entry)
			if err != nil {
				return err
			}
			for i, step := range steps {
				fmt.Printf("    %d. %s (%s)\n", i+1, step.DisplayName(), step.Uses)
			}
		}
		return nil
	},
}

func branchList(trigger *workflow.BranchTrigger) string {
	if len(trigger.Branches) == 0 {
		return "any branch"
	}
	return fmt.Sprintf("%v", trigger.Branches)
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
