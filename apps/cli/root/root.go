package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the LexArbitra admin CLI. Subcommands
// (case, kas) are attached here.
var rootCmd = &cobra.Command{
	Use:           "lexarbitra",
	Short:         "LexArbitra admin CLI",
	Long:          "Administrative utilities for LexArbitra (case database maintenance, sync validation, hosting API checks).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
