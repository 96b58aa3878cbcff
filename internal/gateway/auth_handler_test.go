// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Emberfall Contributors

package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/emberfall/emberfall/internal/auth"
	"github.com/emberfall/emberfall/internal/observability"
)

// --- Mock implementations ---

type mockAuthEngine struct {
	mock.Mock
}

func (m *mockAuthEngine) Register(ctx context.Context, connID ulid.ULID, req auth.RegisterRequest) (*auth.Account, error) {
	args := m.Called(ctx, connID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Account), args.Error(1)
}

func (m *mockAuthEngine) Login(ctx context.Context, connID ulid.ULID, identifier, password string) (*auth.Account, error) {
	args := m.Called(ctx, connID, identifier, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Account), args.Error(1)
}

func validRequest() auth.RegisterRequest {
	return auth.RegisterRequest{
		Username:        "Alice",
		Email:           "alice@example.com",
		Phone:           "+48123456789",
		Password:        "Passw0rd",
		ConfirmPassword: "Passw0rd",
	}
}

func newHandler(t *testing.T, engine AuthEngine, registrationOpen bool) (*AuthHandler, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	handler, err := NewAuthHandler(engine, metrics, registrationOpen, 0)
	require.NoError(t, err)
	return handler, metrics
}

// --- AuthHandler creation tests ---

func TestNewAuthHandler_NilEngine(t *testing.T) {
	handler, err := NewAuthHandler(nil, nil, true, 0)
	require.Error(t, err)
	assert.Nil(t, handler)
	assert.Contains(t, err.Error(), "auth engine is required")
}

func TestNewAuthHandlerWithLogger_NilLogger(t *testing.T) {
	handler, err := NewAuthHandlerWithLogger(new(mockAuthEngine), nil, true, 0, nil)
	require.Error(t, err)
	assert.Nil(t, handler)
	assert.Contains(t, err.Error(), "logger is required")
}

// --- Register tests ---

func TestAuthHandler_HandleRegister_Success(t *testing.T) {
	engine := new(mockAuthEngine)
	handler, metrics := newHandler(t, engine, true)

	connID := ulid.Make()
	req := validRequest()
	account := &auth.Account{ID: 1, Username: "Alice", Email: "alice@example.com"}

	engine.On("Register", mock.Anything, connID, req).Return(account, nil)

	result := handler.HandleRegister(context.Background(), connID, req)

	assert.True(t, result.Success)
	assert.Equal(t, "Welcome, Alice! Your account has been created.", result.Message)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuthRequestsTotal.WithLabelValues("register", "success")))

	engine.AssertExpectations(t)
}

func TestAuthHandler_HandleRegister_RegistrationClosed(t *testing.T) {
	engine := new(mockAuthEngine)
	handler, metrics := newHandler(t, engine, false)

	result := handler.HandleRegister(context.Background(), ulid.Make(), validRequest())

	assert.False(t, result.Success)
	assert.Equal(t, "Registration is currently closed.", result.Message)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuthRequestsTotal.WithLabelValues("register", "rejected")))

	engine.AssertNotCalled(t, "Register", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthHandler_HandleRegister_ValidationMessagesShownVerbatim(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantMessage string
	}{
		{
			name:        "invalid username",
			err:         oops.Code("AUTH_INVALID_USERNAME").Errorf("username must be between 3 and 20 characters"),
			wantMessage: "Username must be between 3 and 20 characters.",
		},
		{
			name:        "invalid email",
			err:         oops.Code("AUTH_INVALID_EMAIL").Errorf("enter a valid email address"),
			wantMessage: "Enter a valid email address.",
		},
		{
			name:        "password mismatch",
			err:         oops.Code("AUTH_PASSWORD_MISMATCH").Errorf("passwords do not match"),
			wantMessage: "Passwords do not match.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := new(mockAuthEngine)
			handler, metrics := newHandler(t, engine, true)

			engine.On("Register", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)

			result := handler.HandleRegister(context.Background(), ulid.Make(), validRequest())

			assert.False(t, result.Success)
			assert.Equal(t, tt.wantMessage, result.Message)
			assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuthRequestsTotal.WithLabelValues("register", "rejected")))
		})
	}
}

func TestAuthHandler_HandleRegister_UsernameTaken(t *testing.T) {
	engine := new(mockAuthEngine)
	handler, _ := newHandler(t, engine, true)

	takenErr := oops.Code("AUTH_USERNAME_TAKEN").Errorf("this username is already taken")
	engine.On("Register", mock.Anything, mock.Anything, mock.Anything).Return(nil, takenErr)

	result := handler.HandleRegister(context.Background(), ulid.Make(), validRequest())

	assert.False(t, result.Success)
	assert.Equal(t, "This username is already taken.", result.Message)
}

func TestAuthHandler_HandleRegister_EmailTaken(t *testing.T) {
	engine := new(mockAuthEngine)
	handler, _ := newHandler(t, engine, true)

	takenErr := oops.Code("AUTH_EMAIL_TAKEN").Errorf("this email is already registered")
	engine.On("Register", mock.Anything, mock.Anything, mock.Anything).Return(nil, takenErr)

	result := handler.HandleRegister(context.Background(), ulid.Make(), validRequest())

	assert.False(t, result.Success)
	assert.Equal(t, "This email is already registered.", result.Message)
}

func TestAuthHandler_HandleRegister_RegistrationRace(t *testing.T) {
	engine := new(mockAuthEngine)
	handler, metrics := newHandler(t, engine, true)

	raceErr := oops.Code("AUTH_REGISTRATION_RACE").Wrap(auth.ErrDuplicate)
	engine.On("Register", mock.Anything, mock.Anything, mock.Anything).Return(nil, raceErr)

	result := handler.HandleRegister(context.Background(), ulid.Make(), validRequest())

	// A lost race is a normal rejection, not a server error.
	assert.False(t, result.Success)
	assert.Equal(t, "That username or email was just taken. Please choose another.", result.Message)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuthRequestsTotal.WithLabelValues("register", "rejected")))
}

func TestAuthHandler_HandleRegister_StoreUnavailable(t *testing.T) {
	engine := new(mockAuthEngine)
	handler, metrics := newHandler(t, engine, true)

	storeErr := oops.Code("AUTH_STORE_UNAVAILABLE").Errorf("connection refused")
	engine.On("Register", mock.Anything, mock.Anything, mock.Anything).Return(nil, storeErr)

	result := handler.HandleRegister(context.Background(), ulid.Make(), validRequest())

	assert.False(t, result.Success)
	assert.Equal(t, "Server error. Please try again later.", result.Message)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuthRequestsTotal.WithLabelValues("register", "error")))
}

// --- Login tests ---

func TestAuthHandler_HandleLogin_Success(t *testing.T) {
	engine := new(mockAuthEngine)
	handler, metrics := newHandler(t, engine, true)

	connID := ulid.Make()
	account := &auth.Account{ID: 1, Username: "Alice", Email: "alice@example.com"}

	engine.On("Login", mock.Anything, connID, "Alice", "Passw0rd").Return(account, nil)

	result := handler.HandleLogin(context.Background(), connID, "Alice", "Passw0rd")

	assert.True(t, result.Success)
	assert.Equal(t, "Welcome back, Alice!", result.Message)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuthRequestsTotal.WithLabelValues("login", "success")))

	engine.AssertExpectations(t)
}

func TestAuthHandler_HandleLogin_EmailNotFound(t *testing.T) {
	engine := new(mockAuthEngine)
	handler, _ := newHandler(t, engine, true)

	notFound := oops.Code("AUTH_EMAIL_NOT_FOUND").Errorf("no account found with that email")
	engine.On("Login", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, notFound)

	result := handler.HandleLogin(context.Background(), ulid.Make(), "ghost@example.com", "Passw0rd")

	assert.False(t, result.Success)
	assert.Equal(t, "No account found with that email.", result.Message)
}

func TestAuthHandler_HandleLogin_UsernameNotFound(t *testing.T) {
	engine := new(mockAuthEngine)
	handler, _ := newHandler(t, engine, true)

	notFound := oops.Code("AUTH_USERNAME_NOT_FOUND").Errorf("no account found with that username")
	engine.On("Login", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, notFound)

	result := handler.HandleLogin(context.Background(), ulid.Make(), "Ghost", "Passw0rd")

	assert.False(t, result.Success)
	assert.Equal(t, "No account found with that username.", result.Message)
}

func TestAuthHandler_HandleLogin_WrongPassword(t *testing.T) {
	engine := new(mockAuthEngine)
	handler, metrics := newHandler(t, engine, true)

	wrongErr := oops.Code("AUTH_WRONG_PASSWORD").Errorf("wrong password")
	engine.On("Login", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, wrongErr)

	result := handler.HandleLogin(context.Background(), ulid.Make(), "Alice", "nope")

	assert.False(t, result.Success)
	assert.Equal(t, "Wrong password.", result.Message)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuthRequestsTotal.WithLabelValues("login", "rejected")))
}

func TestAuthHandler_HandleLogin_AlreadyAuthenticated(t *testing.T) {
	engine := new(mockAuthEngine)
	handler, _ := newHandler(t, engine, true)

	authedErr := oops.Code("AUTH_ALREADY_AUTHENTICATED").Errorf("already logged in as Alice")
	engine.On("Login", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, authedErr)

	result := handler.HandleLogin(context.Background(), ulid.Make(), "Alice", "Passw0rd")

	assert.False(t, result.Success)
	assert.Equal(t, "Already logged in as Alice.", result.Message)
}

func TestAuthHandler_HandleLogin_GenericError(t *testing.T) {
	engine := new(mockAuthEngine)
	handler, metrics := newHandler(t, engine, true)

	engine.On("Login", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, oops.Errorf("some unexpected error"))

	result := handler.HandleLogin(context.Background(), ulid.Make(), "Alice", "Passw0rd")

	assert.False(t, result.Success)
	assert.Equal(t, "Server error. Please try again later.", result.Message)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuthRequestsTotal.WithLabelValues("login", "error")))
}

// --- Timeout wiring ---

func TestAuthHandler_QueryTimeoutBoundsRequestContext(t *testing.T) {
	engine := new(mockAuthEngine)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	handler, err := NewAuthHandler(engine, metrics, true, 50*time.Millisecond)
	require.NoError(t, err)

	engine.On("Login", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			deadline, ok := ctx.Deadline()
			assert.True(t, ok, "expected a deadline on the request context")
			assert.LessOrEqual(t, time.Until(deadline), 50*time.Millisecond)
		}).
		Return(nil, oops.Errorf("unavailable"))

	handler.HandleLogin(context.Background(), ulid.Make(), "Alice", "Passw0rd")

	engine.AssertExpectations(t)
}

// --- Security tests ---

func TestAuthHandler_PasswordsNeverLeakedInMessages(t *testing.T) {
	engine := new(mockAuthEngine)
	handler, _ := newHandler(t, engine, true)

	sensitive := "SuperSecret123!"
	req := validRequest()
	req.Password = sensitive
	req.ConfirmPassword = sensitive

	engine.On("Register", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, oops.Code("AUTH_INVALID_PASSWORD").Errorf("password must be at least 6 characters"))
	engine.On("Login", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, oops.Code("AUTH_WRONG_PASSWORD").Errorf("wrong password"))

	registerResult := handler.HandleRegister(context.Background(), ulid.Make(), req)
	assert.NotContains(t, registerResult.Message, sensitive, "password leaked in register message")

	loginResult := handler.HandleLogin(context.Background(), ulid.Make(), "Alice", sensitive)
	assert.NotContains(t, loginResult.Message, sensitive, "password leaked in login message")
}
