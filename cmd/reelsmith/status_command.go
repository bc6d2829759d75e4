package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"reelsmith/internal/checkpoint"
	"reelsmith/internal/config"
	"reelsmith/internal/state"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue depth and pipeline configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *checkpoint.DB) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()

				rows := make([][]string, 0, len(stats))
				total := 0
				for _, status := range []state.Status{
					state.StatusPending,
					state.StatusRunning,
					state.StatusCompleted,
					state.StatusFailed,
					state.StatusCancelled,
				} {
					count := stats[status]
					total += count
					rows = append(rows, []string{string(status), fmt.Sprintf("%d", count)})
				}
				rows = append(rows, []string{"total", fmt.Sprintf("%d", total)})
				fmt.Fprintln(out, renderTable(
					[]string{"Status", "Jobs"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))

				fmt.Fprintln(out, renderKeyValues([][2]string{
					{"Job database", filepath.Join(cfg.Paths.LogDir, "jobs.db")},
					{"Staging", cfg.Paths.StagingDir},
					{"Library", cfg.Paths.LibraryDir},
					{"API bind", cfg.Paths.APIBind},
					{"Workers", fmt.Sprintf("%d", cfg.Workflow.WorkerCount)},
				}))
				return nil
			})
		},
	}
}
