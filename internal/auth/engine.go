// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Emberfall Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Engine decides accept/reject for register and login requests and drives
// per-connection session state. It is the single writer of Session
// authentication state.
type Engine struct {
	accounts AccountRepository
	hasher   PasswordHasher
	sessions *SessionManager
	logger   *slog.Logger
}

// NewEngine creates an Engine with a no-op logger.
// Returns an error if any required dependency is nil.
func NewEngine(accounts AccountRepository, hasher PasswordHasher, sessions *SessionManager) (*Engine, error) {
	return NewEngineWithLogger(accounts, hasher, sessions, slog.New(slog.DiscardHandler))
}

// NewEngineWithLogger creates an Engine with the provided logger.
// Returns an error if any required dependency is nil.
func NewEngineWithLogger(accounts AccountRepository, hasher PasswordHasher, sessions *SessionManager, logger *slog.Logger) (*Engine, error) {
	if accounts == nil {
		return nil, oops.Errorf("account repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session manager is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &Engine{
		accounts: accounts,
		hasher:   hasher,
		sessions: sessions,
		logger:   logger,
	}, nil
}

// RegisterRequest carries the raw fields of a registration attempt. Fields
// arrive untrusted from the transport layer; the Engine validates them
// before touching the store.
type RegisterRequest struct {
	Username        string
	Email           string
	Phone           string
	Password        string
	ConfirmPassword string
}

// Register processes a registration request for the given connection.
// On success the session transitions to authenticated and the created
// account is returned. On any failure the session stays anonymous and a
// coded error describes the rejection. Exactly one of the two happens.
func (e *Engine) Register(ctx context.Context, connID ulid.ULID, req RegisterRequest) (*Account, error) {
	if err := e.checkAnonymous(connID); err != nil {
		return nil, err
	}

	// Field validation, fail fast in fixed order. The store is never
	// queried for a request that fails validation.
	if err := ValidateUsername(req.Username); err != nil {
		return nil, err
	}
	if err := ValidateEmail(req.Email); err != nil {
		return nil, err
	}
	if err := ValidatePhone(req.Phone); err != nil {
		return nil, err
	}
	if err := ValidatePassword(req.Password); err != nil {
		return nil, err
	}
	if req.Password != req.ConfirmPassword {
		return nil, oops.Code("AUTH_PASSWORD_MISMATCH").Errorf("passwords do not match")
	}

	available, err := e.accounts.IsUsernameAvailable(ctx, req.Username)
	if err != nil {
		return nil, e.storeUnavailable("check username availability", err)
	}
	if !available {
		return nil, oops.Code("AUTH_USERNAME_TAKEN").
			With("username", req.Username).
			Errorf("this username is already taken")
	}

	available, err = e.accounts.IsEmailAvailable(ctx, req.Email)
	if err != nil {
		return nil, e.storeUnavailable("check email availability", err)
	}
	if !available {
		return nil, oops.Code("AUTH_EMAIL_TAKEN").
			With("email", req.Email).
			Errorf("this email is already registered")
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		e.logger.Error("password hashing failed",
			"event", "hash_failed",
			"username", req.Username,
			"error", err.Error(),
		)
		return nil, oops.Code("AUTH_HASH_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	account, err := e.accounts.Create(ctx, NewAccount{
		Username:     req.Username,
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: hash,
	})
	if err != nil {
		// A concurrent registration can consume the username or email
		// between the availability snapshot and the insert. The unique
		// constraint reports it here; treat as a normal rejection.
		if errors.Is(err, ErrDuplicate) {
			return nil, oops.Code("AUTH_REGISTRATION_RACE").
				With("username", req.Username).
				Wrap(err)
		}
		return nil, e.storeUnavailable("create account", err)
	}

	if err := e.sessions.authenticate(connID, account); err != nil {
		// The connection dropped mid-request. The account exists but no
		// session observes it, which is acceptable.
		e.logger.Warn("registration completed for vanished connection",
			"event", "session_gone",
			"conn_id", connID.String(),
			"account_id", account.ID,
		)
		return nil, err
	}

	e.logger.Info("account registered",
		"event", "register_success",
		"conn_id", connID.String(),
		"account_id", account.ID,
		"username", account.Username,
	)
	return account, nil
}

// Login processes a login request for the given connection. The identifier
// is matched by email when it contains @, by username otherwise.
func (e *Engine) Login(ctx context.Context, connID ulid.ULID, identifier, password string) (*Account, error) {
	if err := e.checkAnonymous(connID); err != nil {
		return nil, err
	}

	account, err := e.accounts.FindByLogin(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			if IsEmailIdentifier(identifier) {
				return nil, oops.Code("AUTH_EMAIL_NOT_FOUND").
					Errorf("no account found with that email")
			}
			return nil, oops.Code("AUTH_USERNAME_NOT_FOUND").
				Errorf("no account found with that username")
		}
		return nil, e.storeUnavailable("find account by login", err)
	}

	if !e.hasher.Verify(password, account.PasswordHash) {
		e.logger.Info("login rejected",
			"event", "login_rejected",
			"conn_id", connID.String(),
			"account_id", account.ID,
		)
		return nil, oops.Code("AUTH_WRONG_PASSWORD").Errorf("wrong password")
	}

	if err := e.sessions.authenticate(connID, account); err != nil {
		e.logger.Warn("login completed for vanished connection",
			"event", "session_gone",
			"conn_id", connID.String(),
			"account_id", account.ID,
		)
		return nil, err
	}

	e.logger.Info("login accepted",
		"event", "login_success",
		"conn_id", connID.String(),
		"account_id", account.ID,
		"username", account.Username,
	)
	return account, nil
}

// checkAnonymous rejects requests from connections that are missing a
// session or already authenticated. An authenticated session is never
// unset by a further auth attempt; only Disconnect resets it.
func (e *Engine) checkAnonymous(connID ulid.ULID) error {
	session := e.sessions.Get(connID)
	if session == nil {
		return oops.Code("SESSION_NOT_FOUND").
			With("conn_id", connID.String()).
			Errorf("no session for connection %s", connID.String())
	}
	if session.LoggedIn {
		return oops.Code("AUTH_ALREADY_AUTHENTICATED").
			With("conn_id", connID.String()).
			With("username", session.Username).
			Errorf("already logged in as %s", session.Username)
	}
	return nil
}

// storeUnavailable wraps an infrastructure failure. Full detail is logged
// server-side; transport adapters surface only a generic message.
func (e *Engine) storeUnavailable(operation string, err error) error {
	e.logger.Error("credential store unavailable",
		"event", "store_unavailable",
		"operation", operation,
		"error", err.Error(),
	)
	return oops.Code("AUTH_STORE_UNAVAILABLE").
		With("operation", operation).
		Wrap(err)
}
