package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"docchat/internal/app"
	"docchat/internal/model"
)

func watchCmd(env *cliEnv) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch [document-id]",
		Short: "Poll a document until processing finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			every := env.cfg.PollInterval()
			if interval < 0 {
				return fmt.Errorf("invalid --interval %s", interval)
			}
			if interval > 0 {
				every = interval
			}

			var last model.DocumentStatus
			view := app.NewDocumentView(app.DocumentViewConfig{
				Backend:    env.backend,
				Tokens:     env.tokens,
				DocumentID: args[0],
				Interval:   every,
				Logger:     env.log,
				Listener: func(doc model.Document) {
					if doc.Status == last {
						return
					}
					last = doc.Status
					fmt.Fprintf(out, "%s: %s\n", doc.ID, doc.Status)
				},
			})
			defer view.Close()

			if _, err := view.Open(cmd.Context()); err != nil {
				return explain(err)
			}
			select {
			case <-view.Done():
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}

			doc := view.Document()
			if doc.Status == model.StatusFailed {
				if doc.ErrorMessage != "" {
					return fmt.Errorf("processing failed: %s", doc.ErrorMessage)
				}
				return fmt.Errorf("processing failed")
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval, e.g. 2s (default from config)")
	return cmd
}

func processCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "process [document-id]",
		Short: "Start (or restart) processing a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view := app.NewDocumentView(app.DocumentViewConfig{
				Backend:    env.backend,
				Tokens:     env.tokens,
				DocumentID: args[0],
				Logger:     env.log,
			})
			defer view.Close()

			if err := view.ProcessNow(cmd.Context()); err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], view.Document().Status)
			return nil
		},
	}
}

func generateCmd(env *cliEnv) *cobra.Command {
	var target targetFlags

	cmd := &cobra.Command{
		Use:       "generate [summary|flashcards|quiz|study_guide]",
		Short:     "Generate study material for a document or session",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"summary", "flashcards", "quiz", "study_guide"},
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := app.NewChatView(app.ChatViewConfig{
				Backend: env.backend,
				Tokens:  env.tokens,
				Target:  target.target(),
				Logger:  env.log,
			})
			if err != nil {
				return err
			}
			defer view.Close()

			out, err := view.Generate(cmd.Context(), model.OutputType(args[0]))
			if err != nil {
				return explain(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Text())
			return nil
		},
	}

	target.register(cmd)
	return cmd
}
