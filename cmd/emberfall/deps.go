// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Emberfall Contributors

package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/pflag"

	"github.com/emberfall/emberfall/internal/config"
	"github.com/emberfall/emberfall/internal/observability"
	"github.com/emberfall/emberfall/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values use their default implementations.
type ServeDeps struct {
	// ConfigLoader loads the server configuration.
	// Default: config.Load
	ConfigLoader func(path string, flags *pflag.FlagSet) (*config.Config, error)

	// PoolConnector opens the database connection pool.
	// Default: store.Connect
	PoolConnector func(ctx context.Context, url string) (*pgxpool.Pool, error)

	// MigratorFactory creates a schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(url string) (SchemaMigrator, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer
}

// SchemaMigrator interface wraps the methods used from store.Migrator.
type SchemaMigrator interface {
	Up() error
	Close() error
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// withDefaults fills nil fields with production implementations.
func (d *ServeDeps) withDefaults() *ServeDeps {
	if d == nil {
		d = &ServeDeps{}
	}
	if d.ConfigLoader == nil {
		d.ConfigLoader = config.Load
	}
	if d.PoolConnector == nil {
		d.PoolConnector = store.Connect
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(url string) (SchemaMigrator, error) {
			return store.NewMigrator(url)
		}
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	return d
}
