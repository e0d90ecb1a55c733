// Package main provides the ci-harness CLI application.
package main

import (
	"github.com/spf13/cobra"
	"github.com/tracekit/ci-harness/pkg/version"
)

// rootFlags holds the persistent flags shared by all commands.
type rootFlags struct {
	config    string
	logFormat string
	verbose   bool
}

var rootOpts rootFlags

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ci-harness",
	Short: "Trace-server workflow harness",
	Long: `ci-harness executes declarative CI workflows that provision Python
environments across a version matrix, fetch and supervise a background
trace server, and run a test suite against it.

Unlike an ad-hoc pipeline script, the harness waits for the server to
become ready before tests start, caches downloaded artifacts, and
always reaps the server when the run ends.`,
	Version:       version.FullString(),
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootOpts.config, "config", "c", "", "Path to harness configuration file")
	rootCmd.PersistentFlags().StringVar(&rootOpts.logFormat, "log-format", "", "Log format: json or text")
	rootCmd.PersistentFlags().BoolVarP(&rootOpts.verbose, "verbose", "v", false, "Verbose (debug) logging")
}
