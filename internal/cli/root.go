// Package cli implements the datachat command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	rt := &runtime{}

	rootCmd := &cobra.Command{
		Use:           "datachat",
		Short:         "Natural-language data assistant",
		Long:          "Answers questions in natural language by planning, validating, and executing SQL against the authorized table catalog.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			// Precedence is flag > env > default. The config loader reads
			// DEFAULT_MODE itself; an unset flag leaves it in charge.
			if rt.mode != "" && rt.mode != "conversational" && rt.mode != "forced-data" {
				return fmt.Errorf("invalid --mode %q: must be \"conversational\" or \"forced-data\"", rt.mode)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&rt.mode, "mode", "m", "", "Routing mode (conversational, forced-data); overrides DEFAULT_MODE")
	rootCmd.PersistentFlags().StringVar(&rt.envFile, "env-file", ".env", "Path to a .env file with configuration")

	rootCmd.AddCommand(
		newAskCmd(rt),
		newChatCmd(rt),
		newPlansCmd(rt),
		newCatalogCmd(rt),
		newExamplesCmd(rt),
		newVersionCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			_, _ = fmt.Fprintf(os.Stdout, "datachat version %s (commit: %s)\n", version, commit)
			return nil
		},
	}
}
