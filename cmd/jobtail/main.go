// Command jobtail follows one test-harness job directory and prints its
// re-synchronized event stream to the terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/vc/internal/jobdir"
)

var (
	flagConfigPath string
	flagJobRoot    string
	flagRunID      string
	flagJobID      string
	flagFollow     bool
	flagNoColor    bool
)

var rootCmd = &cobra.Command{
	Use:   "jobtail",
	Short: "Stream a test-harness job directory's events to the terminal",
	Long: `jobtail re-synchronizes a running test-harness job's stdout, stderr, and
structured events directory into one ordered event stream and prints it.

Example:
  jobtail --job-root /tmp/job-42 --run-id run1 --job-id job-42 --follow`,
	Run: runTail,
}

func init() {
	rootCmd.Flags().StringVar(&flagConfigPath, "config", "", "path to jobtail's YAML config file")
	rootCmd.Flags().StringVar(&flagJobRoot, "job-root", "", "job directory to stream (required unless default_job_root is configured)")
	rootCmd.Flags().StringVar(&flagRunID, "run-id", "", "run_id to stamp onto emitted events")
	rootCmd.Flags().StringVar(&flagJobID, "job-id", "", "job_id to stamp onto emitted events")
	rootCmd.Flags().BoolVarP(&flagFollow, "follow", "f", false, "keep polling until the job exits (Ctrl+C to stop)")
	rootCmd.Flags().BoolVar(&flagNoColor, "no-color", false, "disable ANSI color output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "jobtail: %v\n", err)
		os.Exit(1)
	}
}

func runTail(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(flagConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobtail: %v\n", err)
		os.Exit(1)
	}

	jobRoot := flagJobRoot
	if jobRoot == "" {
		jobRoot = cfg.DefaultJobRoot
	}
	if jobRoot == "" {
		fmt.Fprintln(os.Stderr, "jobtail: --job-root is required (or set default_job_root in config)")
		os.Exit(1)
	}

	if flagNoColor || cfg.Color == "never" {
		color.NoColor = true
	} else if cfg.Color == "always" {
		color.NoColor = false
	}

	jobID := orDefault(flagJobID, jobRoot)
	streamer, err := jobdir.New(jobdir.Config{
		RunID:   orDefault(flagRunID, "run"),
		JobID:   jobID,
		JobRoot: jobRoot,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobtail: %v\n", err)
		os.Exit(1)
	}
	defer streamer.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := drive(ctx, streamer, jobID, cfg.pollInterval(), flagFollow); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "jobtail: %v\n", err)
		os.Exit(1)
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
