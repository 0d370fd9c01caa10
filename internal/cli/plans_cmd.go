package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPlansCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Manage trained plans",
	}
	cmd.AddCommand(newPlansListCmd(rt))
	return cmd
}

func newPlansListCmd(rt *runtime) *cobra.Command {
	var showSQL bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the trained plans stored in the metadata database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := rt.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			entries, err := s.App.TrainedPlans.LoadAll(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(os.Stdout, "No trained plans yet.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CREATED\tPROVENANCE\tQUESTION")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\n",
					e.CreatedAt.Format("2006-01-02 15:04"), e.Provenance, e.Question)
				if showSQL && e.SQL != "" {
					fmt.Fprintf(w, "\t\t%s\n", e.SQL)
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&showSQL, "sql", false, "Include each plan's compiled SQL")

	return cmd
}
