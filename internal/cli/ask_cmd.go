package cli

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd(rt *runtime) *cobra.Command {
	var (
		showSQL bool
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question and print the answer",
		Long:  "Runs one question through the full pipeline (plan cache, reasoning service, validation, execution) and prints the reply.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rt.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			question := strings.Join(args, " ")
			reply, err := s.App.Services.Answer.Answer(cmd.Context(), question, nil, s.Mode())
			if err != nil {
				return err
			}
			return renderReply(os.Stdout, reply, showSQL, asJSON)
		},
	}

	cmd.Flags().BoolVar(&showSQL, "sql", false, "Print the executed SQL after the answer")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Print the full reply as JSON")

	return cmd
}
