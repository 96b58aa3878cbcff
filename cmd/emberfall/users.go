// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Emberfall Contributors

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/emberfall/emberfall/internal/auth"
	authpg "github.com/emberfall/emberfall/internal/auth/postgres"
	"github.com/emberfall/emberfall/internal/config"
	"github.com/emberfall/emberfall/internal/store"
)

// accountReporter is the read-only slice of auth.AccountRepository used by
// the users command.
type accountReporter interface {
	FindByLogin(ctx context.Context, identifier string) (*auth.Account, error)
	CountAccounts(ctx context.Context) (int64, error)
	ListRecent(ctx context.Context, limit int) ([]*auth.Account, error)
	RecentRegistrations(ctx context.Context, windowDays int) ([]auth.RegistrationCount, error)
}

// UsersReport is the admin view of the account base: newest accounts plus
// per-day registration counts for the reporting window.
type UsersReport struct {
	Total         int64                    `json:"total"`
	Recent        []UserSummary            `json:"recent"`
	Registrations []auth.RegistrationCount `json:"registrations"`
	WindowDays    int                      `json:"window_days"`
}

// UserSummary is a single account row in the report. Password hashes never
// appear here.
type UserSummary struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// usersConfig holds configuration for the users command.
type usersConfig struct {
	find       string
	limit      int
	windowDays int
	jsonOutput bool
}

// newUsersCmd creates the users subcommand with all flags configured.
func newUsersCmd() *cobra.Command {
	cfg := &usersConfig{}

	cmd := &cobra.Command{
		Use:   "users",
		Short: "Show registered accounts and registration stats",
		Long: `List the most recently registered accounts and per-day registration
counts for the reporting window, or look up a single account with --find.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUsers(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.find, "find", "", "look up one account by username or email")
	cmd.Flags().IntVar(&cfg.limit, "limit", 10, "number of recent accounts to list")
	cmd.Flags().IntVar(&cfg.windowDays, "days", 0, "reporting window in days (default from config)")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output report as JSON")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")

	return cmd
}

// runUsers executes the users command.
func runUsers(cmd *cobra.Command, cfg *usersConfig) error {
	fileCfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	if fileCfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").
			Errorf("database URL is required (--database-url flag or database.url in the config file)")
	}
	if cfg.windowDays <= 0 {
		cfg.windowDays = fileCfg.Auth.StatsWindowDays
	}

	pool, err := store.Connect(cmd.Context(), fileCfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := authpg.NewAccountRepository(pool)

	if cfg.find != "" {
		return runUserLookup(cmd, repo, cfg)
	}

	report, err := buildUsersReport(cmd.Context(), repo, cfg.limit, cfg.windowDays)
	if err != nil {
		return err
	}

	var output string
	if cfg.jsonOutput {
		output, err = formatUsersJSON(report)
		if err != nil {
			return err
		}
	} else {
		output = formatUsersTable(report)
	}

	cmd.Println(output)
	return nil
}

// runUserLookup handles `users --find <identifier>`: a single-account
// lookup by username or email.
func runUserLookup(cmd *cobra.Command, repo accountReporter, cfg *usersConfig) error {
	user, err := findUserSummary(cmd.Context(), repo, cfg.find)
	if err != nil {
		return err
	}

	var output string
	if cfg.jsonOutput {
		data, marshalErr := json.MarshalIndent(user, "", "  ")
		if marshalErr != nil {
			return fmt.Errorf("failed to marshal account: %w", marshalErr)
		}
		output = string(data)
	} else {
		output = formatUserTable(user)
	}

	cmd.Println(output)
	return nil
}

// findUserSummary resolves an identifier to an account summary. A miss is
// reported with the identifier so the admin sees what was searched.
func findUserSummary(ctx context.Context, repo accountReporter, identifier string) (*UserSummary, error) {
	account, err := repo.FindByLogin(ctx, identifier)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, oops.Code("ACCOUNT_NOT_FOUND").
				Errorf("no account found for %q", identifier)
		}
		return nil, err
	}
	return &UserSummary{
		ID:        account.ID,
		Username:  account.Username,
		Email:     account.Email,
		Phone:     account.Phone,
		CreatedAt: account.CreatedAt,
	}, nil
}

// formatUserTable formats a single account lookup.
func formatUserTable(u *UserSummary) string {
	var buf []byte
	w := tabwriter.NewWriter((*byteWriter)(&buf), 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "ID\t%d\n", u.ID)
	_, _ = fmt.Fprintf(w, "USERNAME\t%s\n", u.Username)
	_, _ = fmt.Fprintf(w, "EMAIL\t%s\n", u.Email)
	_, _ = fmt.Fprintf(w, "PHONE\t%s\n", u.Phone)
	_, _ = fmt.Fprintf(w, "CREATED\t%s\n", u.CreatedAt.Format("2006-01-02 15:04"))

	_ = w.Flush()
	return string(buf)
}

// buildUsersReport collects the report data from the repository.
func buildUsersReport(ctx context.Context, repo accountReporter, limit, windowDays int) (*UsersReport, error) {
	total, err := repo.CountAccounts(ctx)
	if err != nil {
		return nil, err
	}

	accounts, err := repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}

	registrations, err := repo.RecentRegistrations(ctx, windowDays)
	if err != nil {
		return nil, err
	}

	report := &UsersReport{
		Total:         total,
		Registrations: registrations,
		WindowDays:    windowDays,
	}
	for _, acc := range accounts {
		report.Recent = append(report.Recent, UserSummary{
			ID:        acc.ID,
			Username:  acc.Username,
			Email:     acc.Email,
			Phone:     acc.Phone,
			CreatedAt: acc.CreatedAt,
		})
	}
	return report, nil
}

// formatUsersTable formats the report as human-readable tables.
func formatUsersTable(report *UsersReport) string {
	var buf []byte
	w := tabwriter.NewWriter((*byteWriter)(&buf), 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "Total accounts: %d\n\n", report.Total)

	_, _ = fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tCREATED")
	for _, u := range report.Recent {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
			u.ID, u.Username, u.Email, u.CreatedAt.Format("2006-01-02 15:04"))
	}

	_, _ = fmt.Fprintf(w, "\nRegistrations, last %d days:\n", report.WindowDays)
	if len(report.Registrations) == 0 {
		_, _ = fmt.Fprintln(w, "(none)")
	}
	for _, r := range report.Registrations {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", r.Day.Format("2006-01-02"), r.Count)
	}

	_ = w.Flush()
	return string(buf)
}

// formatUsersJSON formats the report as JSON.
func formatUsersJSON(report *UsersReport) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return string(data), nil
}
