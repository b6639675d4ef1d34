// Package cmd provides the CLI commands for the meetbrief pipeline.
package cmd

import (
	"github.com/spf13/cobra"
)

// Global flags shared by all commands.
var (
	cfgFile  string
	logLevel string
)

// NewRootCommand creates the meetbrief root command.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "meetbrief",
		Short: "Meeting recording processing pipeline",
		Long: `meetbrief turns uploaded meeting recordings into speaker-attributed
transcripts and AI-generated summaries.

A recording moves through four stages: transcription and speaker
diarization run concurrently against their engine services, the results
are aligned into one speaker-attributed transcript, and an LLM extracts
the summary, action items, and decisions.

Commands:
  worker  - Run the processing pipeline (queues, workers, coordinator)
  submit  - Submit a recording for processing
  status  - Show one job
  jobs    - List jobs
  edit    - Replace a job's merged transcript with corrected segments
  retry   - Re-run a failed or finished job
  delete  - Delete a job and release its audio`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(newWorkerCmd())
	root.AddCommand(newSubmitCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newJobsCmd())
	root.AddCommand(newEditCmd())
	root.AddCommand(newRetryCmd())
	root.AddCommand(newDeleteCmd())
	root.AddCommand(newVersionCmd())

	return root
}
