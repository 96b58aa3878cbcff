// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Emberfall Contributors

package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/emberfall/emberfall/internal/auth"
	"github.com/emberfall/emberfall/internal/observability"
	"github.com/emberfall/emberfall/pkg/errutil"
)

// AuthEngine defines the authentication operations needed by the gateway.
type AuthEngine interface {
	// Register creates a new account and authenticates the session.
	Register(ctx context.Context, connID ulid.ULID, req auth.RegisterRequest) (*auth.Account, error)

	// Login authenticates the session against an existing account.
	Login(ctx context.Context, connID ulid.ULID, identifier, password string) (*auth.Account, error)
}

// AuthResult is the single outcome of an auth request: exactly one is
// produced per inbound register or login, success or error, never both.
type AuthResult struct {
	Success bool
	Message string
}

// AuthHandler translates engine outcomes into client-facing results. It
// owns the policy of which rejection reasons are shown verbatim and which
// are replaced by a generic message.
type AuthHandler struct {
	engine           AuthEngine
	metrics          *observability.Metrics
	logger           *slog.Logger
	registrationOpen bool
	queryTimeout     time.Duration
}

// NewAuthHandler creates an AuthHandler with a no-op logger.
// Returns an error if the engine is nil. metrics may be nil.
func NewAuthHandler(engine AuthEngine, metrics *observability.Metrics, registrationOpen bool, queryTimeout time.Duration) (*AuthHandler, error) {
	return NewAuthHandlerWithLogger(engine, metrics, registrationOpen, queryTimeout, slog.New(slog.DiscardHandler))
}

// NewAuthHandlerWithLogger creates an AuthHandler with the provided logger.
func NewAuthHandlerWithLogger(engine AuthEngine, metrics *observability.Metrics, registrationOpen bool, queryTimeout time.Duration, logger *slog.Logger) (*AuthHandler, error) {
	if engine == nil {
		return nil, oops.Errorf("auth engine is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &AuthHandler{
		engine:           engine,
		metrics:          metrics,
		logger:           logger,
		registrationOpen: registrationOpen,
		queryTimeout:     queryTimeout,
	}, nil
}

// HandleRegister processes a registration request.
func (h *AuthHandler) HandleRegister(ctx context.Context, connID ulid.ULID, req auth.RegisterRequest) AuthResult {
	if !h.registrationOpen {
		h.record("register", "rejected")
		return AuthResult{Success: false, Message: "Registration is currently closed."}
	}

	ctx, cancel := h.bound(ctx)
	defer cancel()

	account, err := h.engine.Register(ctx, connID, req)
	if err != nil {
		result, outcome := h.rejectionResult(err)
		h.record("register", outcome)
		return result
	}

	h.record("register", "success")
	return AuthResult{
		Success: true,
		Message: "Welcome, " + account.Username + "! Your account has been created.",
	}
}

// HandleLogin processes a login request.
func (h *AuthHandler) HandleLogin(ctx context.Context, connID ulid.ULID, identifier, password string) AuthResult {
	ctx, cancel := h.bound(ctx)
	defer cancel()

	account, err := h.engine.Login(ctx, connID, identifier, password)
	if err != nil {
		result, outcome := h.rejectionResult(err)
		h.record("login", outcome)
		return result
	}

	h.record("login", "success")
	return AuthResult{
		Success: true,
		Message: "Welcome back, " + account.Username + "!",
	}
}

// rejectionResult maps a coded engine error to the client-facing result
// and a metrics outcome label. Infrastructure failures never leak internal
// detail to the client; the full error is logged server-side instead.
func (h *AuthHandler) rejectionResult(err error) (AuthResult, string) {
	oopsErr, ok := oops.AsOops(err)
	if ok {
		switch oopsErr.Code() {
		// Validation and credential rejections carry messages written
		// for the user; surface them verbatim.
		case "AUTH_INVALID_USERNAME", "AUTH_INVALID_EMAIL", "AUTH_INVALID_PHONE",
			"AUTH_INVALID_PASSWORD", "AUTH_PASSWORD_MISMATCH",
			"AUTH_EMAIL_NOT_FOUND", "AUTH_USERNAME_NOT_FOUND",
			"AUTH_WRONG_PASSWORD", "AUTH_ALREADY_AUTHENTICATED":
			return AuthResult{Success: false, Message: capitalize(oopsErr.Error()) + "."}, "rejected"
		case "AUTH_USERNAME_TAKEN":
			return AuthResult{Success: false, Message: "This username is already taken."}, "rejected"
		case "AUTH_EMAIL_TAKEN":
			return AuthResult{Success: false, Message: "This email is already registered."}, "rejected"
		case "AUTH_REGISTRATION_RACE":
			return AuthResult{Success: false, Message: "That username or email was just taken. Please choose another."}, "rejected"
		}
	}

	errutil.LogError(h.logger, "auth request failed", err)
	return AuthResult{Success: false, Message: "Server error. Please try again later."}, "error"
}

// bound applies the configured store timeout to a request context.
func (h *AuthHandler) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, h.queryTimeout)
}

func (h *AuthHandler) record(kind, outcome string) {
	if h.metrics != nil {
		h.metrics.AuthRequestsTotal.WithLabelValues(kind, outcome).Inc()
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		return string(s[0]-'a'+'A') + s[1:]
	}
	return s
}
