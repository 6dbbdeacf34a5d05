// Package commands wires labctl's cobra subcommands (run, transfer,
// audit, expand, deposit, validate) to the runner, daemons, and
// pipeline expander.
package commands

import "github.com/spf13/cobra"

var version = "dev"

// NewRootCmd builds the labctl root command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "labctl",
		Short:   "Control plane for the lab work orchestration framework",
		Version: version,
		Long: `labctl drives the runner, transfer daemon, audit daemon, and
pipeline expander against a resolved workspace: a named environment
that maps to bucket/results/pipelines-manager service endpoints,
allowed sites, and an archive policy.`,
	}

	root.PersistentFlags().StringP("workspace", "w", "", "Workspace reference: path, URL, or name (defaults to the active workspace)")
	root.PersistentFlags().Bool("debug", false, "Debug-logging switch; labctl's logger does not filter by level, so output is the same with or without it")

	root.AddCommand(NewRunCmd())
	root.AddCommand(NewTransferCmd())
	root.AddCommand(NewAuditCmd())
	root.AddCommand(NewExpandCmd())
	root.AddCommand(NewDepositCmd())
	root.AddCommand(NewValidateCmd())
	return root
}
