package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"datachat/internal/domain"
)

func newExamplesCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "examples",
		Short: "Manage few-shot dialogue exemplars",
	}
	cmd.AddCommand(newExamplesAddCmd(rt))
	return cmd
}

func newExamplesAddCmd(rt *runtime) *cobra.Command {
	var (
		question string
		answer   string
		kind     string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Store a question/answer exemplar used for few-shot prompting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind = strings.ToUpper(strings.TrimSpace(kind))
			if kind != "CHAT" && kind != "DATA_ANALYSIS" {
				return fmt.Errorf("invalid --kind %q: must be \"CHAT\" or \"DATA_ANALYSIS\"", kind)
			}
			if strings.TrimSpace(question) == "" || strings.TrimSpace(answer) == "" {
				return fmt.Errorf("--question and --answer must not be empty")
			}

			s, err := rt.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			ex := domain.Example{Question: question, Answer: answer, Kind: kind}
			if err := s.App.Exemplars.Add(cmd.Context(), &ex); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Stored exemplar %s\n", ex.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&question, "question", "q", "", "Example question")
	cmd.Flags().StringVarP(&answer, "answer", "a", "", "Example answer")
	cmd.Flags().StringVarP(&kind, "kind", "k", "DATA_ANALYSIS", "Exemplar kind (CHAT, DATA_ANALYSIS)")
	_ = cmd.MarkFlagRequired("question")
	_ = cmd.MarkFlagRequired("answer")

	return cmd
}
