// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Emberfall Contributors

package gateway

import (
	"bufio"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/emberfall/emberfall/internal/auth"
	"github.com/emberfall/emberfall/internal/observability"
)

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// newConnID generates a connection ID.
func newConnID() ulid.ULID {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
}

// ConnectionHandler handles a single player connection. Each connection
// gets a fresh anonymous session on open; the session is discarded when
// the connection closes.
type ConnectionHandler struct {
	conn        net.Conn
	reader      *bufio.Reader
	authHandler *AuthHandler
	sessions    *auth.SessionManager
	metrics     *observability.Metrics
	connID      ulid.ULID
	quitting    bool
}

// NewConnectionHandler creates a new handler. metrics may be nil.
func NewConnectionHandler(conn net.Conn, authHandler *AuthHandler, sessions *auth.SessionManager, metrics *observability.Metrics) *ConnectionHandler {
	return &ConnectionHandler{
		conn:        conn,
		reader:      bufio.NewReader(conn),
		authHandler: authHandler,
		sessions:    sessions,
		metrics:     metrics,
		connID:      newConnID(),
	}
}

// Handle processes the connection until closed.
func (h *ConnectionHandler) Handle(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.sessions.Connect(h.connID)
	h.recordConnection("accepted")
	h.trackSessions(1)

	defer func() {
		h.sessions.Disconnect(h.connID)
		h.recordConnection("closed")
		h.trackSessions(-1)
		if err := h.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			slog.Debug("error closing connection", "error", err)
		}
	}()

	h.send("Welcome to Emberfall!")
	h.send("Use: register <username> <email> <phone> <password> <confirm password>")
	h.send("Or:  login <username or email> <password>")

	// Channel for lines read from the connection. Sends race with Handle
	// returning, so the reader goroutine bails out on ctx instead of
	// blocking forever.
	lineCh := make(chan string)
	errCh := make(chan error)

	go func() {
		for {
			line, err := h.reader.ReadString('\n')
			if err != nil {
				select {
				case errCh <- err:
				case <-ctx.Done():
				}
				return
			}
			select {
			case lineCh <- strings.TrimSpace(line):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-errCh:
			if !errors.Is(err, io.EOF) {
				slog.Debug("connection read error",
					"conn_id", h.connID.String(),
					"error", err,
				)
			}
			return

		case line := <-lineCh:
			h.processLine(ctx, line)
			if h.quitting {
				return
			}
		}
	}
}

func (h *ConnectionHandler) processLine(ctx context.Context, line string) {
	cmd, arg := parseCommand(line)

	switch cmd {
	case "register":
		h.handleRegister(ctx, arg)
	case "login":
		h.handleLogin(ctx, arg)
	case "whoami":
		h.handleWhoami()
	case "help":
		h.handleHelp()
	case "quit":
		h.handleQuit()
	default:
		if cmd != "" {
			h.send("Unknown command: " + cmd)
		}
	}
}

func (h *ConnectionHandler) handleRegister(ctx context.Context, arg string) {
	parts := strings.Fields(arg)
	if len(parts) != 5 {
		h.send("Usage: register <username> <email> <phone> <password> <confirm password>")
		return
	}

	result := h.authHandler.HandleRegister(ctx, h.connID, auth.RegisterRequest{
		Username:        parts[0],
		Email:           parts[1],
		Phone:           parts[2],
		Password:        parts[3],
		ConfirmPassword: parts[4],
	})
	h.send(result.Message)
}

func (h *ConnectionHandler) handleLogin(ctx context.Context, arg string) {
	parts := strings.Fields(arg)
	if len(parts) != 2 {
		h.send("Usage: login <username or email> <password>")
		return
	}

	result := h.authHandler.HandleLogin(ctx, h.connID, parts[0], parts[1])
	h.send(result.Message)
}

func (h *ConnectionHandler) handleWhoami() {
	session := h.sessions.Get(h.connID)
	if session == nil || !session.LoggedIn {
		h.send("You are not logged in.")
		return
	}
	h.send(fmt.Sprintf("You are logged in as %s (%s).", session.Username, session.Email))
}

func (h *ConnectionHandler) handleHelp() {
	h.send("Commands:")
	h.send("  register <username> <email> <phone> <password> <confirm password>")
	h.send("  login <username or email> <password>")
	h.send("  whoami")
	h.send("  quit")
}

func (h *ConnectionHandler) handleQuit() {
	h.send("Goodbye!")
	h.quitting = true
}

func (h *ConnectionHandler) send(msg string) {
	if _, err := fmt.Fprintln(h.conn, msg); err != nil {
		slog.Debug("failed to send message to client",
			"conn_id", h.connID.String(),
			"error", err,
		)
	}
}

func (h *ConnectionHandler) recordConnection(state string) {
	if h.metrics != nil {
		h.metrics.ConnectionsTotal.WithLabelValues(state).Inc()
	}
}

func (h *ConnectionHandler) trackSessions(delta float64) {
	if h.metrics != nil {
		h.metrics.ActiveSessions.Add(delta)
	}
}

// parseCommand splits a line into a lowercased command word and its
// argument remainder.
func parseCommand(input string) (cmd, arg string) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ""
	}

	parts := strings.SplitN(input, " ", 2)
	cmd = strings.ToLower(parts[0])
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}
	return cmd, arg
}
