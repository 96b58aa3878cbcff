// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Emberfall Contributors

package auth

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session is the per-connection authentication state. A session starts
// anonymous and becomes authenticated exactly when the Engine accepts a
// register or login request. AccountID, Username, and Email are meaningful
// only while LoggedIn is true.
type Session struct {
	ConnID      ulid.ULID
	LoggedIn    bool
	AccountID   int64
	Username    string
	Email       string
	ConnectedAt time.Time
}

// copySession returns a defensive copy to prevent external modification.
func copySession(s *Session) *Session {
	c := *s
	return &c
}

// SessionManager tracks sessions for active connections, keyed by
// connection ID. The Engine is the only writer of authentication state;
// other subsystems observe sessions through Get and ListActive, which
// return copies.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[ulid.ULID]*Session
}

// NewSessionManager creates an empty session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[ulid.ULID]*Session),
	}
}

// Connect registers an anonymous session for a new connection.
// Reconnecting with an existing connection ID resets the session.
func (sm *SessionManager) Connect(connID ulid.ULID) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session := &Session{
		ConnID:      connID,
		ConnectedAt: time.Now(),
	}
	sm.sessions[connID] = session
	return copySession(session)
}

// Disconnect removes a connection's session. Any authentication state is
// discarded; nothing about a session survives its connection.
func (sm *SessionManager) Disconnect(connID ulid.ULID) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, connID)
}

// Get returns a copy of a connection's session, or nil if none exists.
func (sm *SessionManager) Get(connID ulid.ULID) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[connID]
	if !exists {
		return nil
	}
	return copySession(session)
}

// ListActive returns copies of all active sessions.
func (sm *SessionManager) ListActive() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	result := make([]*Session, 0, len(sm.sessions))
	for _, session := range sm.sessions {
		result = append(result, copySession(session))
	}
	return result
}

// authenticate transitions a session to the logged-in state. Unexported so
// only the Engine can flip authentication state.
func (sm *SessionManager) authenticate(connID ulid.ULID, account *Account) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, exists := sm.sessions[connID]
	if !exists {
		return oops.Code("SESSION_NOT_FOUND").
			With("conn_id", connID.String()).
			Errorf("no session for connection %s", connID.String())
	}

	session.LoggedIn = true
	session.AccountID = account.ID
	session.Username = account.Username
	session.Email = account.Email
	return nil
}
