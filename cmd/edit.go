package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meetbrief/meetbrief/pkg/meeting"
)

func newEditCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "edit <job-id>",
		Short: "Replace a job's merged transcript with corrected segments",
		Long: `Replace a job's merged transcript with manually corrected segments
read from a JSON file (an array of merged segments, the same shape the
status command prints with --json). Speaker stats are recomputed and any
existing summary is marked stale until regenerated.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read segments file: %w", err)
			}
			var segments []meeting.MergedSegment
			if err := json.Unmarshal(data, &segments); err != nil {
				return fmt.Errorf("parse segments file: %w", err)
			}

			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			job, err := rt.coord.EditTranscript(cmd.Context(), args[0], segments)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Job %s transcript updated (%d segments)\n",
				job.ID, len(job.MergedTranscript))
			if job.Analysis != nil && job.Analysis.Stale {
				fmt.Fprintln(cmd.OutOrStdout(), "Summary is now stale; run 'meetbrief retry --analysis-only' to refresh it")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "JSON file with the corrected segments (required)")
	cmd.MarkFlagRequired("file")
	return cmd
}
