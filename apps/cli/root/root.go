package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the QuickBooks sync CLI. Subcommands are attached in wire.go.
var rootCmd = &cobra.Command{
	Use:           "qbsync",
	Short:         "QuickBooks sync admin CLI",
	Long:          "Operator utilities for the QuickBooks sync backend (dev tokens, schema bootstrap, companies, manual syncs).",
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
