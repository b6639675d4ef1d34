package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/meetbrief/meetbrief/pkg/meeting"
	"github.com/meetbrief/meetbrief/pkg/pipeline/coordinator"
)

func newSubmitCmd() *cobra.Command {
	var (
		title           string
		mode            string
		language        string
		numSpeakers     int
		skipDiarization bool
		asJSON          bool
	)

	cmd := &cobra.Command{
		Use:   "submit <audio-ref>",
		Short: "Submit a recording for processing",
		Long: `Submit a stored recording for processing. The audio reference is the
opaque locator produced by the upload subsystem; meetbrief never reads
audio bytes itself.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			job, err := rt.coord.Submit(cmd.Context(), &coordinator.SubmitRequest{
				Title:           title,
				AudioRef:        args[0],
				Mode:            meeting.Mode(mode),
				Language:        language,
				NumSpeakers:     numSpeakers,
				SkipDiarization: skipDiarization,
			})
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(cmd, job)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Submitted job %s (%s)\n", job.ID, job.Mode)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "meeting title")
	cmd.Flags().StringVar(&mode, "mode", string(meeting.ModeTranscribeAndSummarize),
		"processing mode (transcribe_only or transcribe_and_summarize)")
	cmd.Flags().StringVar(&language, "language", "", "language hint for transcription")
	cmd.Flags().IntVar(&numSpeakers, "num-speakers", 0, "expected speaker count hint for diarization")
	cmd.Flags().BoolVar(&skipDiarization, "skip-diarization", false, "transcribe without speaker labels")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the job record as JSON")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			job, err := rt.coord.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(cmd, job)
			}
			printJob(cmd, job)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the job record as JSON")
	return cmd
}

func newJobsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			jobs, err := rt.coord.List(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(cmd, jobs)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tMODE\tTITLE\tCREATED")
			for _, job := range jobs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					job.ID, job.Status, job.Mode, job.Title,
					job.CreatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the job records as JSON")
	return cmd
}

func newRetryCmd() *cobra.Command {
	var analysisOnly bool

	cmd := &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Re-run a failed or finished job",
		Long: `Re-run a job. By default the whole pipeline runs again from
transcription; --analysis-only re-runs just the LLM analysis over the
current merged transcript (including manual edits).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			var job *meeting.Job
			if analysisOnly {
				job, err = rt.coord.RegenerateSummary(cmd.Context(), args[0])
			} else {
				job, err = rt.coord.Retranscribe(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s re-dispatched (%s, version %d)\n",
				job.ID, job.Status, job.Version)
			return nil
		},
	}

	cmd.Flags().BoolVar(&analysisOnly, "analysis-only", false, "re-run only the LLM analysis")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a job and release its audio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.coord.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s deleted\n", args[0])
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printJob(cmd *cobra.Command, job *meeting.Job) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job:      %s\n", job.ID)
	if job.Title != "" {
		fmt.Fprintf(out, "Title:    %s\n", job.Title)
	}
	fmt.Fprintf(out, "Status:   %s\n", job.Status)
	fmt.Fprintf(out, "Mode:     %s\n", job.Mode)
	fmt.Fprintf(out, "Version:  %d\n", job.Version)
	if job.Language != "" {
		fmt.Fprintf(out, "Language: %s\n", job.Language)
	}
	if job.ErrorDetail != nil {
		fmt.Fprintf(out, "Error:    [%s] %s\n", job.ErrorDetail.Stage, job.ErrorDetail.Message)
	}
	if job.HasMergedTranscript() {
		fmt.Fprintf(out, "Segments: %d\n", len(job.MergedTranscript))
	}
	for _, s := range job.SpeakerStats {
		fmt.Fprintf(out, "  %-12s %6.1fs (%.0f%%)\n", s.Speaker, s.Duration, s.Percentage)
	}
	if job.Analysis != nil {
		stale := ""
		if job.Analysis.Stale {
			stale = " (stale, regenerate to refresh)"
		}
		fmt.Fprintf(out, "Summary%s:\n%s\n", stale, job.Analysis.Summary)
		if len(job.Analysis.ActionItems) > 0 {
			fmt.Fprintln(out, "Action items:")
			for _, a := range job.Analysis.ActionItems {
				line := "  - " + a.Description
				if a.Owner != "" {
					line += " (" + a.Owner + ")"
				}
				fmt.Fprintln(out, line)
			}
		}
		if len(job.Analysis.Decisions) > 0 {
			fmt.Fprintln(out, "Decisions:")
			for _, d := range job.Analysis.Decisions {
				fmt.Fprintln(out, "  - "+d.Description)
			}
		}
	}
	fmt.Fprintf(out, "Created:  %s\n", job.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Updated:  %s\n", job.UpdatedAt.Format("2006-01-02 15:04:05"))
}
