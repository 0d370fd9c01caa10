package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"datachat/internal/domain"
)

// maxHistoryTurns bounds the conversation window replayed to the planner.
const maxHistoryTurns = 10

func newChatCmd(rt *runtime) *cobra.Command {
	var showSQL bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Long:  "Opens a REPL that keeps a bounded conversation history and refreshes the trained-plan cache in the background. Type \"sair\" or \"exit\" to quit.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := rt.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.App.StartScheduler(); err != nil {
				return err
			}

			fmt.Fprintln(os.Stdout, "datachat: pergunte algo sobre seus dados (\"sair\" encerra).")

			var history []domain.Turn
			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Fprint(os.Stdout, "> ")
				if !scanner.Scan() {
					fmt.Fprintln(os.Stdout)
					return scanner.Err()
				}
				question := strings.TrimSpace(scanner.Text())
				if question == "" {
					continue
				}
				switch strings.ToLower(question) {
				case "sair", "exit", "quit":
					fmt.Fprintln(os.Stdout, "Ate logo.")
					return nil
				}

				reply, err := s.App.Services.Answer.Answer(cmd.Context(), question, history, s.Mode())
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", err)
					continue
				}
				if err := renderReply(os.Stdout, reply, showSQL, false); err != nil {
					return err
				}
				history = appendTurns(history, question, reply)
			}
		},
	}

	cmd.Flags().BoolVar(&showSQL, "sql", false, "Print the executed SQL after each data answer")

	return cmd
}

// appendTurns records the exchange and keeps only the newest window.
func appendTurns(history []domain.Turn, question string, reply domain.Reply) []domain.Turn {
	history = append(history, domain.Turn{Role: "user", Content: question})

	switch r := reply.(type) {
	case *domain.ChatReply:
		history = append(history, domain.Turn{Role: "assistant", Content: r.Text})
	case *domain.DataReply:
		content := r.Summary
		if r.Err != "" {
			content = r.Err
		}
		history = append(history, domain.Turn{
			Role:       "assistant",
			Content:    content,
			TablesUsed: r.TablesUsed,
		})
	}

	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	return history
}
