// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Emberfall Contributors

// Package gateway provides the line-based TCP adapter through which
// players register and log in.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/emberfall/emberfall/internal/auth"
	"github.com/emberfall/emberfall/internal/observability"
)

// Server accepts player connections and hands each one to a
// ConnectionHandler.
type Server struct {
	addr        string
	listener    net.Listener
	authHandler *AuthHandler
	sessions    *auth.SessionManager
	metrics     *observability.Metrics
	mu          sync.RWMutex
}

// NewServer creates a new gateway server. metrics may be nil.
func NewServer(addr string, authHandler *AuthHandler, sessions *auth.SessionManager, metrics *observability.Metrics) *Server {
	return &Server{
		addr:        addr,
		authHandler: authHandler,
		sessions:    sessions,
		metrics:     metrics,
	}
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run starts the server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	slog.Info("gateway server started", "addr", listener.Addr())

	go func() {
		<-ctx.Done()
		if err := listener.Close(); err != nil {
			slog.Debug("error closing listener", "error", err)
		}
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				slog.Error("accept failed", "error", err)
				continue
			}
		}
		handler := NewConnectionHandler(conn, s.authHandler, s.sessions, s.metrics)
		go handler.Handle(ctx)
	}
}
