package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reelsmith/internal/checkpoint"
	"reelsmith/internal/config"
	"reelsmith/internal/state"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage queued jobs",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsCancelCommand(ctx))
	jobsCmd.AddCommand(newJobsRetryCommand(ctx))
	jobsCmd.AddCommand(newJobsClearCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs and their progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			var statuses []state.Status
			for _, value := range strings.Split(statusFilter, ",") {
				value = strings.TrimSpace(value)
				if value == "" {
					continue
				}
				status, ok := state.ParseStatus(value)
				if !ok {
					return fmt.Errorf("unknown status %q", value)
				}
				statuses = append(statuses, status)
			}
			return ctx.withStore(func(cfg *config.Config, store *checkpoint.DB) error {
				records, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs queued")
					return nil
				}
				rows := make([][]string, 0, len(records))
				for _, rec := range records {
					rows = append(rows, []string{
						shortID(rec.JobID),
						string(rec.Status),
						stageLabel(rec.CurrentStage),
						fmt.Sprintf("%3.0f%%", rec.Progress.OverallProgress*100),
						fmt.Sprintf("%d", len(rec.Errors)),
						rec.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Job", "Status", "Stage", "Progress", "Errors", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Comma-separated status filter (pending,running,completed,failed,cancelled)")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job's checkpoint, progress, and error ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *checkpoint.DB) error {
				rec, err := resolveJob(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				pairs := [][2]string{
					{"Job", rec.JobID},
					{"Status", string(rec.Status)},
					{"Stage", stageLabel(rec.CurrentStage)},
					{"Progress", fmt.Sprintf("%.0f%%", rec.Progress.OverallProgress*100)},
					{"Message", rec.Progress.CurrentMessage},
					{"Input", fmt.Sprintf("%s (%d bytes)", rec.Input.Type, len(rec.Input.Content))},
					{"Narration", yesNo(rec.Options.NarrationEnabled)},
					{"Created", rec.CreatedAt.Local().Format(time.RFC1123)},
					{"Updated", rec.UpdatedAt.Local().Format(time.RFC1123)},
				}
				if len(rec.Progress.CompletedSteps) > 0 {
					steps := make([]string, 0, len(rec.Progress.CompletedSteps))
					for _, step := range rec.Progress.CompletedSteps {
						steps = append(steps, string(step))
					}
					pairs = append(pairs, [2]string{"Completed", strings.Join(steps, ", ")})
				}
				fmt.Fprintln(out, renderKeyValues(pairs))

				if len(rec.Errors) > 0 {
					rows := make([][]string, 0, len(rec.Errors))
					for _, entry := range rec.Errors {
						rows = append(rows, []string{
							string(entry.StageID),
							entry.ErrorCode,
							string(entry.Severity),
							fmt.Sprintf("%d", entry.RetryCount),
							entry.Message,
						})
					}
					fmt.Fprintln(out, "Error ledger:")
					fmt.Fprintln(out, renderTable(
						[]string{"Stage", "Code", "Severity", "Retries", "Message"},
						rows,
						[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
					))
				}
				return nil
			})
		},
	}
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Request cooperative cancellation of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *checkpoint.DB) error {
				rec, err := resolveJob(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				if err := store.RequestCancel(cmd.Context(), rec.JobID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for %s; the job stops at the next stage boundary\n", shortID(rec.JobID))
				return nil
			})
		},
	}
}

func newJobsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Requeue a failed or cancelled job from its last checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *checkpoint.DB) error {
				rec, err := resolveJob(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				switch rec.Status {
				case state.StatusFailed, state.StatusCancelled:
				default:
					return fmt.Errorf("job %s is %s; only failed or cancelled jobs can be retried", shortID(rec.JobID), rec.Status)
				}
				rec.Status = state.StatusPending
				rec.Progress.CurrentMessage = "requeued"
				rec.LiftAbort()
				if err := store.Save(cmd.Context(), rec); err != nil {
					return err
				}
				completed := len(rec.Progress.CompletedSteps)
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %s; %d completed steps will be skipped\n", shortID(rec.JobID), completed)
				return nil
			})
		},
	}
}

func newJobsClearCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished jobs from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *checkpoint.DB) error {
				statuses := []state.Status{state.StatusCompleted, state.StatusFailed, state.StatusCancelled}
				if all {
					statuses = nil
				}
				records, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				cleared := 0
				for _, rec := range records {
					if err := store.Remove(cmd.Context(), rec.JobID); err != nil {
						return err
					}
					cleared++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d jobs\n", cleared)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Also remove pending and running jobs")
	return cmd
}

// resolveJob loads a record by full or prefix job ID.
func resolveJob(ctx context.Context, store *checkpoint.DB, id string) (*state.Record, error) {
	id = strings.TrimSpace(id)
	rec, err := store.Load(ctx, id)
	if err == nil {
		return rec, nil
	}
	records, listErr := store.List(ctx)
	if listErr != nil {
		return nil, err
	}
	var match *state.Record
	for _, candidate := range records {
		if strings.HasPrefix(candidate.JobID, id) {
			if match != nil {
				return nil, fmt.Errorf("job id prefix %q is ambiguous", id)
			}
			match = candidate
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no job matches %q", id)
	}
	return match, nil
}

func shortID(jobID string) string {
	if len(jobID) > 8 {
		return jobID[:8]
	}
	return jobID
}

func stageLabel(stage state.StageType) string {
	if stage == state.StageNone {
		return "-"
	}
	return string(stage)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
