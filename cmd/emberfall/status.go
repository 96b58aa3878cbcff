package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	authpg "github.com/emberfall/emberfall/internal/auth/postgres"
	"github.com/emberfall/emberfall/internal/store"
)

// StoreStatus holds the health information reported by the status command.
type StoreStatus struct {
	Database         string `json:"database"`
	MigrationVersion uint   `json:"migration_version"`
	MigrationDirty   bool   `json:"migration_dirty"`
	Accounts         int64  `json:"accounts"`
	Error            string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
}

// newStatusCmd creates the status subcommand with all flags configured.
func newStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show credential store health and aggregate stats",
		Long:  `Check connectivity to the credential store and report the migration version and total account count.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	url, err := databaseURL(cmd)
	if err != nil {
		return err
	}

	status := queryStoreStatus(cmd.Context(), url)

	var output string
	if cfg.jsonOutput {
		output, err = formatStatusJSON(status)
		if err != nil {
			return err
		}
	} else {
		output = formatStatusTable(status)
	}

	cmd.Println(output)
	return nil
}

// queryStoreStatus probes the store and collects health information.
// Failures are reported in the status rather than as command errors so a
// down store still produces readable output.
func queryStoreStatus(ctx context.Context, url string) StoreStatus {
	status := StoreStatus{Database: "unreachable"}

	pool, err := store.Connect(ctx, url)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	defer pool.Close()

	status.Database = "ok"

	migrator, err := store.NewMigrator(url)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	defer func() { _ = migrator.Close() }()

	version, dirty, err := migrator.Version()
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.MigrationVersion = version
	status.MigrationDirty = dirty

	count, err := authpg.NewAccountRepository(pool).CountAccounts(ctx)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Accounts = count

	return status
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(status StoreStatus) string {
	var buf []byte
	w := tabwriter.NewWriter((*byteWriter)(&buf), 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "DATABASE\t%s\n", status.Database)
	if status.Database == "ok" {
		migration := fmt.Sprintf("version %d", status.MigrationVersion)
		if status.MigrationVersion == 0 {
			migration = "none applied"
		}
		if status.MigrationDirty {
			migration += " (dirty)"
		}
		_, _ = fmt.Fprintf(w, "MIGRATIONS\t%s\n", migration)
		_, _ = fmt.Fprintf(w, "ACCOUNTS\t%d\n", status.Accounts)
	}
	if status.Error != "" {
		_, _ = fmt.Fprintf(w, "ERROR\t%s\n", status.Error)
	}

	_ = w.Flush()
	return string(buf)
}

// formatStatusJSON formats the status as JSON.
func formatStatusJSON(status StoreStatus) (string, error) {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal status: %w", err)
	}
	return string(data), nil
}

// byteWriter is a simple writer that appends to a byte slice.
type byteWriter []byte

func (w *byteWriter) Write(p []byte) (int, error) {
	*w = append(*w, p...)
	return len(p), nil
}
