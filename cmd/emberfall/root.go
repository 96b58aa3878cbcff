package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Emberfall CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emberfall",
		Short: "Emberfall - game server player authentication",
		Long: `Emberfall is the player authentication service for the game server:
a line-based TCP gateway where players register and log in, backed by
PostgreSQL credential storage.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newUsersCmd())

	return cmd
}
