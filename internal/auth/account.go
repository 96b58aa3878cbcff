// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Emberfall Contributors

package auth

import (
	"context"
	"strings"
	"time"
)

// Account represents a persisted player account.
// The ID is assigned by the store at creation time and never reused.
// PasswordHash holds a one-way digest; plaintext passwords are never stored.
type Account struct {
	ID           int64
	Username     string
	Email        string
	Phone        string
	PasswordHash string
	CreatedAt    time.Time
}

// NewAccount is the payload for AccountRepository.Create. The hash must
// already be computed by a PasswordHasher; repositories never see plaintext.
type NewAccount struct {
	Username     string
	Email        string
	Phone        string
	PasswordHash string
}

// RegistrationCount is the number of accounts created on a single day.
type RegistrationCount struct {
	Day   time.Time
	Count int64
}

// IsEmailIdentifier reports whether a login identifier should be looked up
// by email rather than by username.
func IsEmailIdentifier(identifier string) bool {
	return strings.Contains(identifier, "@")
}

// AccountRepository manages account persistence.
//
// Lookups are exact and case-sensitive as stored; validators enforce the
// only normalization the system performs. Implementations must return
// ErrNotFound (wrapped) for missing rows and ErrDuplicate (wrapped) when an
// insert violates the username or email uniqueness constraint. Any other
// failure indicates the store itself is unavailable.
type AccountRepository interface {
	// FindByLogin retrieves an account by identifier. Identifiers
	// containing @ are looked up by email, all others by username.
	FindByLogin(ctx context.Context, identifier string) (*Account, error)

	// IsUsernameAvailable reports whether no account holds the username.
	// The answer is a point-in-time snapshot; Create is the backstop for
	// concurrent registrations.
	IsUsernameAvailable(ctx context.Context, username string) (bool, error)

	// IsEmailAvailable reports whether no account holds the email.
	IsEmailAvailable(ctx context.Context, email string) (bool, error)

	// Create inserts a new account and returns it with the store-assigned
	// ID and creation timestamp.
	Create(ctx context.Context, acc NewAccount) (*Account, error)

	// CountAccounts returns the total number of accounts.
	CountAccounts(ctx context.Context) (int64, error)

	// ListRecent returns up to limit accounts, newest first.
	ListRecent(ctx context.Context, limit int) ([]*Account, error)

	// RecentRegistrations returns per-day registration counts for the last
	// windowDays days, most recent day first.
	RecentRegistrations(ctx context.Context, windowDays int) ([]RegistrationCount, error)
}
