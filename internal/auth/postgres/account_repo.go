// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Emberfall Contributors

// Package postgres implements auth repositories backed by PostgreSQL.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/emberfall/emberfall/internal/auth"
)

// Querier is the subset of pgxpool.Pool used by repositories. Satisfied by
// *pgxpool.Pool and by pgxmock pools in tests.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool Querier
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool Querier) *AccountRepository {
	return &AccountRepository{pool: pool}
}

const accountColumns = `id, username, email, phone, password_hash, created_at`

// FindByLogin retrieves an account by identifier. Identifiers containing @
// are looked up by email, all others by username. Matching is exact and
// case-sensitive as stored.
func (r *AccountRepository) FindByLogin(ctx context.Context, identifier string) (*auth.Account, error) {
	column := "username"
	if auth.IsEmailIdentifier(identifier) {
		column = "email"
	}

	row := r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE `+column+` = $1
		LIMIT 1
	`, identifier)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("identifier", identifier).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_FIND_FAILED").
			With("operation", "find account by login").
			Wrap(err)
	}
	return account, nil
}

// IsUsernameAvailable reports whether no account holds the username.
func (r *AccountRepository) IsUsernameAvailable(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM accounts WHERE username = $1
	`, username).Scan(&count)
	if err != nil {
		return false, oops.Code("ACCOUNT_LOOKUP_FAILED").
			With("operation", "check username availability").
			Wrap(err)
	}
	return count == 0, nil
}

// IsEmailAvailable reports whether no account holds the email.
func (r *AccountRepository) IsEmailAvailable(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM accounts WHERE email = $1
	`, email).Scan(&count)
	if err != nil {
		return false, oops.Code("ACCOUNT_LOOKUP_FAILED").
			With("operation", "check email availability").
			Wrap(err)
	}
	return count == 0, nil
}

// Create inserts a new account. The store assigns the ID and creation
// timestamp. A unique-constraint violation on username or email is
// reported as auth.ErrDuplicate so the engine can treat a lost
// registration race as a normal rejection.
func (r *AccountRepository) Create(ctx context.Context, acc auth.NewAccount) (*auth.Account, error) {
	account := &auth.Account{
		Username:     acc.Username,
		Email:        acc.Email,
		Phone:        acc.Phone,
		PasswordHash: acc.PasswordHash,
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO accounts (username, email, phone, password_hash, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at
	`,
		acc.Username,
		acc.Email,
		acc.Phone,
		acc.PasswordHash,
	).Scan(&account.ID, &account.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, oops.Code("ACCOUNT_DUPLICATE").
				With("username", acc.Username).
				With("constraint", pgErr.ConstraintName).
				Wrap(auth.ErrDuplicate)
		}
		return nil, oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("username", acc.Username).
			Wrap(err)
	}
	return account, nil
}

// CountAccounts returns the total number of accounts.
func (r *AccountRepository) CountAccounts(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&count)
	if err != nil {
		return 0, oops.Code("ACCOUNT_COUNT_FAILED").
			With("operation", "count accounts").
			Wrap(err)
	}
	return count, nil
}

// ListRecent returns up to limit accounts, newest first.
func (r *AccountRepository) ListRecent(ctx context.Context, limit int) ([]*auth.Account, error) {
	if limit <= 0 {
		return nil, oops.Code("ACCOUNT_LIST_INVALID").
			With("limit", limit).
			Errorf("limit must be positive, got %d", limit)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, oops.Code("ACCOUNT_LIST_FAILED").
			With("operation", "query recent accounts").
			Wrap(err)
	}
	defer rows.Close()

	var accounts []*auth.Account
	for rows.Next() {
		var account auth.Account
		if err := rows.Scan(
			&account.ID,
			&account.Username,
			&account.Email,
			&account.Phone,
			&account.PasswordHash,
			&account.CreatedAt,
		); err != nil {
			return nil, oops.Code("ACCOUNT_LIST_FAILED").
				With("operation", "scan account row").
				Wrap(err)
		}
		accounts = append(accounts, &account)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ACCOUNT_LIST_FAILED").
			With("operation", "iterate recent accounts").
			Wrap(err)
	}
	return accounts, nil
}

// RecentRegistrations returns per-day registration counts for the last
// windowDays days, most recent day first.
func (r *AccountRepository) RecentRegistrations(ctx context.Context, windowDays int) ([]auth.RegistrationCount, error) {
	if windowDays <= 0 {
		return nil, oops.Code("ACCOUNT_STATS_INVALID").
			With("window_days", windowDays).
			Errorf("window must be positive, got %d days", windowDays)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT created_at::date AS day, COUNT(*) AS registrations
		FROM accounts
		WHERE created_at >= NOW() - $1 * INTERVAL '1 day'
		GROUP BY day
		ORDER BY day DESC
	`, windowDays)
	if err != nil {
		return nil, oops.Code("ACCOUNT_STATS_FAILED").
			With("operation", "query recent registrations").
			Wrap(err)
	}
	defer rows.Close()

	var counts []auth.RegistrationCount
	for rows.Next() {
		var c auth.RegistrationCount
		if err := rows.Scan(&c.Day, &c.Count); err != nil {
			return nil, oops.Code("ACCOUNT_STATS_FAILED").
				With("operation", "scan registration count row").
				Wrap(err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ACCOUNT_STATS_FAILED").
			With("operation", "iterate registration counts").
			Wrap(err)
	}
	return counts, nil
}

func scanAccount(row pgx.Row) (*auth.Account, error) {
	var account auth.Account
	err := row.Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.Phone,
		&account.PasswordHash,
		&account.CreatedAt,
	)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle.
		return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
	}
	return &account, nil
}

// Compile-time interface check.
var _ auth.AccountRepository = (*AccountRepository)(nil)
