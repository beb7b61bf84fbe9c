package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"docchat/internal/app"
	"docchat/internal/model"
)

type targetFlags struct {
	documentID string
	sessionID  string
}

func (f *targetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.documentID, "document", "d", "", "document id")
	cmd.Flags().StringVarP(&f.sessionID, "session", "s", "", "session id (multi-document)")
}

func (f *targetFlags) target() model.Target {
	return model.Target{DocumentID: f.documentID, SessionID: f.sessionID}
}

func askCmd(env *cliEnv) *cobra.Command {
	var (
		target    targetFlags
		mode      string
		grounding string
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question and stream the answer",
		Example: `  docchat ask "What is the main finding?" --document 42
  docchat ask "Compare chapters 2 and 3" --session 7 --mode deep`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			printed := 0
			view, err := app.NewChatView(app.ChatViewConfig{
				Backend:   env.backend,
				Tokens:    env.tokens,
				Target:    target.target(),
				Mode:      model.IntelligenceMode(mode),
				Grounding: model.GroundingMode(grounding),
				Logger:    env.log,
				Listener: func(s app.ChatSnapshot) {
					if s.Streaming && len(s.Partial) > printed {
						fmt.Fprint(out, s.Partial[printed:])
						printed = len(s.Partial)
					}
				},
			})
			if err != nil {
				return err
			}
			defer view.Close()

			answer, err := view.Submit(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				if printed > 0 {
					fmt.Fprintln(out)
				}
				return explain(err)
			}
			if len(answer.Content) > printed {
				fmt.Fprint(out, answer.Content[printed:])
			}
			fmt.Fprintln(out)
			printAnswerMeta(cmd, answer)
			return nil
		},
	}

	target.register(cmd)
	cmd.Flags().StringVarP(&mode, "mode", "m", string(model.DefaultMode), "intelligence mode (standard, deep, tutor)")
	cmd.Flags().StringVarP(&grounding, "grounding", "g", "", "grounding mode (strict, balanced)")
	return cmd
}

func printAnswerMeta(cmd *cobra.Command, answer model.ChatMessage) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nconfidence: %s\n", answer.Confidence)
	if answer.GroundingWarning != "" {
		fmt.Fprintf(out, "warning: %s\n", answer.GroundingWarning)
	}
	if len(answer.Sources) == 0 {
		return
	}
	fmt.Fprintln(out, "sources:")
	for i, src := range answer.Sources {
		line := fmt.Sprintf("  [%d] %.2f", i+1, src.Similarity)
		if src.Page != nil {
			line += fmt.Sprintf(" p.%d", *src.Page)
		}
		if src.DocumentID != "" {
			line += " doc " + src.DocumentID
		}
		fmt.Fprintf(out, "%s  %s\n", line, snippet(src.Text, 80))
	}
}

func snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
