package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"reelsmith/internal/checkpoint"
	"reelsmith/internal/config"
	"reelsmith/internal/state"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		filePath    string
		narrate     bool
		voice       string
		overwrite   bool
		maxAttempts int
		maxDuration int
	)

	cmd := &cobra.Command{
		Use:   "submit [text]",
		Short: "Queue a new content job",
		Long: "Queue a document for the content pipeline. Pass the text inline " +
			"or point --file at a document on disk.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := buildInput(args, filePath)
			if err != nil {
				return err
			}
			opts := state.Options{
				MaxAttempts:        maxAttempts,
				MaxDurationSeconds: maxDuration,
				NarrationEnabled:   narrate,
				Voice:              strings.TrimSpace(voice),
				OverwriteExisting:  overwrite,
			}
			return ctx.withStore(func(cfg *config.Config, store *checkpoint.DB) error {
				rec := state.NewRecord(input, opts)
				if err := store.Save(cmd.Context(), rec); err != nil {
					return fmt.Errorf("queue job: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued job %s\n", rec.JobID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "", "Read the document from this file")
	cmd.Flags().BoolVar(&narrate, "narrate", false, "Synthesize narration audio")
	cmd.Flags().StringVar(&voice, "voice", "", "Narration voice (defaults to the configured voice)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite an existing library entry with the same title")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Per-stage attempt budget (0 uses the configured policy)")
	cmd.Flags().IntVar(&maxDuration, "max-duration", 0, "Job deadline in seconds (0 uses the configured deadline)")
	return cmd
}

func buildInput(args []string, filePath string) (state.Input, error) {
	filePath = strings.TrimSpace(filePath)
	inline := ""
	if len(args) == 1 {
		inline = strings.TrimSpace(args[0])
	}
	switch {
	case filePath != "" && inline != "":
		return state.Input{}, errors.New("pass either inline text or --file, not both")
	case filePath != "":
		return state.Input{Type: "file", Content: filePath}, nil
	case inline != "":
		return state.Input{Type: "text", Content: inline}, nil
	default:
		return state.Input{}, errors.New("nothing to submit; pass text or --file")
	}
}
