// Package main provides the ci-harness CLI application.
package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/tracekit/ci-harness/pkg/history"
)

// historyFlags holds the flags for the history command
type historyFlags struct {
	limit int
	runID string
}

var historyOpts historyFlags

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent workflow runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.HistoryDB == "" {
			return fmt.Errorf("run history is disabled: set history_db in the config or CI_HARNESS_HISTORY_DB")
		}

		store, err := history.Open(cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer store.Close()

		if historyOpts.runID != "" {
			return listJobs(cmd, store, historyOpts.runID)
		}

		runs, err := store.ListRuns(cmd.Context(), historyOpts.limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tWORKFLOW\tEVENT\tBRANCH\tSTATUS\tDURATION\tRUN ID")
		for _, run := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				run.StartedAt.Local().Format(time.DateTime),
				run.Workflow, run.Event, run.Branch, run.Status,
				run.FinishedAt.Sub(run.StartedAt).Round(100*time.Millisecond),
				run.ID)
		}
		return w.Flush()
	},
}

// listJobs prints the matrix jobs of a single run.
func listJobs(cmd *cobra.Command, store *history.Store, runID string) error {
	jobs, err := store.ListJobs(cmd.Context(), runID)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Printf("No jobs recorded for run %s.\n", runID)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tSTATUS\tSTEPS\tFAILED\tDURATION")
	for _, job := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			job.Name, job.Status, job.StepsTotal, job.StepsFailed,
			job.Duration.Round(100*time.Millisecond))
	}
	return w.Flush()
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyOpts.limit, "limit", "n", 20, "Maximum number of runs to list")
	historyCmd.Flags().StringVar(&historyOpts.runID, "run", "", "Show the jobs of a single run instead")
}
