// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Emberfall Contributors

//go:build integration

package integration

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/samber/oops"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/emberfall/emberfall/internal/auth"
	authpg "github.com/emberfall/emberfall/internal/auth/postgres"
	"github.com/emberfall/emberfall/internal/store"
)

// authStack is a fully wired auth engine backed by a disposable
// PostgreSQL container.
type authStack struct {
	engine   *auth.Engine
	sessions *auth.SessionManager
	repo     *authpg.AccountRepository
	cleanup  func()
}

// setupAuthStack starts a PostgreSQL container, applies migrations, and
// wires a full auth engine against it.
func setupAuthStack() (*authStack, error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("emberfall_test"),
		postgres.WithUsername("emberfall"),
		postgres.WithPassword("emberfall"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		_ = container.Terminate(ctx)
		return nil, err
	}
	_ = migrator.Close()

	pool, err := store.Connect(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	repo := authpg.NewAccountRepository(pool)
	sessions := auth.NewSessionManager()
	engine, err := auth.NewEngine(repo, auth.NewBcryptHasher(), sessions)
	if err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, err
	}

	return &authStack{
		engine:   engine,
		sessions: sessions,
		repo:     repo,
		cleanup: func() {
			pool.Close()
			_ = container.Terminate(ctx)
		},
	}, nil
}

func newConnID() ulid.ULID {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader)
}

func errorCode(err error) any {
	if oopsErr, ok := oops.AsOops(err); ok {
		return oopsErr.Code()
	}
	return nil
}

var _ = Describe("Auth flow", func() {
	var (
		stack    *authStack
		engine   *auth.Engine
		sessions *auth.SessionManager
	)

	validRequest := func() auth.RegisterRequest {
		return auth.RegisterRequest{
			Username:        "Alice",
			Email:           "alice@example.com",
			Phone:           "+15551230001",
			Password:        "correct horse battery",
			ConfirmPassword: "correct horse battery",
		}
	}

	BeforeEach(func() {
		var err error
		stack, err = setupAuthStack()
		Expect(err).NotTo(HaveOccurred())
		engine = stack.engine
		sessions = stack.sessions
	})

	AfterEach(func() {
		stack.cleanup()
	})

	Describe("Register", func() {
		It("creates an account and authenticates the session", func() {
			ctx := context.Background()
			connID := newConnID()
			sessions.Connect(connID)

			account, err := engine.Register(ctx, connID, validRequest())
			Expect(err).NotTo(HaveOccurred())
			Expect(account.ID).NotTo(BeZero())
			Expect(account.Username).To(Equal("Alice"))
			Expect(account.PasswordHash).To(HavePrefix("$2"), "stored hash must be bcrypt")

			session := sessions.Get(connID)
			Expect(session).NotTo(BeNil())
			Expect(session.LoggedIn).To(BeTrue())
			Expect(session.AccountID).To(Equal(account.ID))
		})

		It("rejects a duplicate username", func() {
			ctx := context.Background()
			first := newConnID()
			sessions.Connect(first)
			_, err := engine.Register(ctx, first, validRequest())
			Expect(err).NotTo(HaveOccurred())

			second := newConnID()
			sessions.Connect(second)
			req := validRequest()
			req.Email = "other@example.com"

			_, err = engine.Register(ctx, second, req)
			Expect(err).To(HaveOccurred())
			Expect(errorCode(err)).To(BeEquivalentTo("AUTH_USERNAME_TAKEN"))

			session := sessions.Get(second)
			Expect(session.LoggedIn).To(BeFalse(), "rejected registration leaves the session anonymous")
		})

		It("rejects a duplicate email", func() {
			ctx := context.Background()
			first := newConnID()
			sessions.Connect(first)
			_, err := engine.Register(ctx, first, validRequest())
			Expect(err).NotTo(HaveOccurred())

			second := newConnID()
			sessions.Connect(second)
			req := validRequest()
			req.Username = "Bram"

			_, err = engine.Register(ctx, second, req)
			Expect(err).To(HaveOccurred())
			Expect(errorCode(err)).To(BeEquivalentTo("AUTH_EMAIL_TAKEN"))
		})
	})

	Describe("Login", func() {
		var connID ulid.ULID

		BeforeEach(func() {
			connID = newConnID()
			sessions.Connect(connID)
			_, err := engine.Register(context.Background(), connID, validRequest())
			Expect(err).NotTo(HaveOccurred())
			sessions.Disconnect(connID)
		})

		It("authenticates by username", func() {
			ctx := context.Background()
			loginConn := newConnID()
			sessions.Connect(loginConn)

			account, err := engine.Login(ctx, loginConn, "Alice", "correct horse battery")
			Expect(err).NotTo(HaveOccurred())
			Expect(account.Username).To(Equal("Alice"))
			Expect(sessions.Get(loginConn).LoggedIn).To(BeTrue())
		})

		It("authenticates by email", func() {
			ctx := context.Background()
			loginConn := newConnID()
			sessions.Connect(loginConn)

			account, err := engine.Login(ctx, loginConn, "alice@example.com", "correct horse battery")
			Expect(err).NotTo(HaveOccurred())
			Expect(account.Email).To(Equal("alice@example.com"))
		})

		It("rejects a wrong password", func() {
			ctx := context.Background()
			loginConn := newConnID()
			sessions.Connect(loginConn)

			_, err := engine.Login(ctx, loginConn, "Alice", "not the password")
			Expect(err).To(HaveOccurred())
			Expect(errorCode(err)).To(BeEquivalentTo("AUTH_WRONG_PASSWORD"))
			Expect(sessions.Get(loginConn).LoggedIn).To(BeFalse())
		})

		It("rejects a second authentication on the same connection", func() {
			ctx := context.Background()
			loginConn := newConnID()
			sessions.Connect(loginConn)

			_, err := engine.Login(ctx, loginConn, "Alice", "correct horse battery")
			Expect(err).NotTo(HaveOccurred())

			_, err = engine.Login(ctx, loginConn, "Alice", "correct horse battery")
			Expect(err).To(HaveOccurred())
			Expect(errorCode(err)).To(BeEquivalentTo("AUTH_ALREADY_AUTHENTICATED"))
		})
	})

	Describe("Reporting", func() {
		BeforeEach(func() {
			ctx := context.Background()
			for _, name := range []string{"Alice", "Bram", "Cora"} {
				connID := newConnID()
				sessions.Connect(connID)
				req := validRequest()
				req.Username = name
				req.Email = name + "@example.com"
				_, err := engine.Register(ctx, connID, req)
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("counts all accounts", func() {
			count, err := stack.repo.CountAccounts(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(int64(3)))
		})

		It("lists recent accounts newest first", func() {
			accounts, err := stack.repo.ListRecent(context.Background(), 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(accounts).To(HaveLen(2))
			Expect(accounts[0].CreatedAt).To(BeTemporally(">=", accounts[1].CreatedAt))
		})

		It("reports registrations inside the window", func() {
			counts, err := stack.repo.RecentRegistrations(context.Background(), 7)
			Expect(err).NotTo(HaveOccurred())
			Expect(counts).To(HaveLen(1), "all three registrations happened today")
			Expect(counts[0].Count).To(Equal(int64(3)))
		})
	})
})
