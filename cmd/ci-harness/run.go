// Package main provides the ci-harness CLI application.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tracekit/ci-harness/pkg/config"
	"github.com/tracekit/ci-harness/pkg/history"
	"github.com/tracekit/ci-harness/pkg/observability"
	"github.com/tracekit/ci-harness/pkg/output"
	"github.com/tracekit/ci-harness/pkg/runner"
	"github.com/tracekit/ci-harness/pkg/workflow"
)

// defaultWorkflowFile is used when no workflow path argument is given.
const defaultWorkflowFile = ".ci-harness.yaml"

// runFlags holds the flags for the run command
type runFlags struct {
	event      string
	branch     string
	parallel   int
	force      bool
	dryRun     bool
	reportFile string
}

var runOpts runFlags

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [workflow.yaml]",
	Short: "Execute a workflow",
	Long: `Execute a workflow against a trigger event.

The workflow's matrix is expanded into jobs; each job provisions its
runtimes, fetches artifacts, launches the trace server, waits for it to
accept connections, and runs the test suite with TRACE_SERVER_PORT set.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workflowPath := defaultWorkflowFile
		if len(args) == 1 {
			workflowPath = args[0]
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logger := newLogger(cfg)

		wf, err := workflow.Load(workflowPath)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts := &runner.Options{
			Event: workflow.Event{
				Kind:   workflow.EventKind(runOpts.event),
				Branch: runOpts.branch,
			},
			Parallel:        pickParallel(cfg),
			Force:           runOpts.force,
			DryRun:          runOpts.dryRun,
			WorkDir:         cfg.WorkDir,
			CacheDir:        cfg.CacheDir,
			StepTimeout:     cfg.StepTimeout.Std(),
			GracefulTimeout: cfg.GracefulTimeout.Std(),
			Logger:          logger,
		}

		if cfg.MetricsAddr != "" {
			metrics := observability.NewMetrics()
			srv, errCh := metrics.Serve(cfg.MetricsAddr)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
			go func() {
				if err, ok := <-errCh; ok && err != nil {
					logger.Warn("metrics listener failed", "error", err)
				}
			}()
			opts.Metrics = metrics
		}

		if cfg.HistoryDB != "" {
			store, err := history.Open(cfg.HistoryDB)
			if err != nil {
				logger.Warn("run history disabled", "error", err)
			} else {
				defer store.Close()
				opts.History = store
			}
		}

		result, err := runner.New(opts).Run(ctx, wf)
		if err != nil {
			return err
		}

		reporter := output.NewReporter(os.Stdout)
		if runOpts.reportFile != "" {
			reporter = reporter.WithReportFile(runOpts.reportFile)
		}
		if err := reporter.Report(result); err != nil {
			return err
		}

		if code := result.ExitCode(); code != 0 {
			// Surface the code through Execute so deferred cleanup
			// (history store, metrics listener) still runs.
			cmd.SilenceErrors = true
			return exitCodeError{code: code}
		}
		return nil
	},
}

// exitCodeError carries a process exit code out of a command without
// calling os.Exit inside RunE, which would skip deferred cleanup.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runOpts.event, "event", "push", "Trigger event: push, pull_request, or schedule")
	runCmd.Flags().StringVar(&runOpts.branch, "branch", "main", "Branch the event refers to")
	runCmd.Flags().IntVarP(&runOpts.parallel, "parallel", "p", 0, "Matrix jobs to run concurrently (0 = config default)")
	runCmd.Flags().BoolVar(&runOpts.force, "force", false, "Bypass the artifact cache")
	runCmd.Flags().BoolVar(&runOpts.dryRun, "dry-run", false, "Show what would be done without doing it")
	runCmd.Flags().StringVar(&runOpts.reportFile, "report-file", "", "Write a markdown report to this file")
}

// loadConfig loads the harness config, honoring the --config flag.
func loadConfig() (*config.Config, error) {
	if rootOpts.config != "" {
		return config.Load(rootOpts.config)
	}
	return config.LoadFromEnv()
}

// newLogger builds the logger from config and persistent flags.
func newLogger(cfg *config.Config) *slog.Logger {
	level := cfg.LogLevel
	if rootOpts.verbose {
		level = "debug"
	}
	format := cfg.LogFormat
	if rootOpts.logFormat != "" {
		format = rootOpts.logFormat
	}
	return observability.NewLogger(level, format)
}

// pickParallel resolves the parallelism: flag over config.
func pickParallel(cfg *config.Config) int {
	if runOpts.parallel > 0 {
		return runOpts.parallel
	}
	return cfg.Parallel
}
