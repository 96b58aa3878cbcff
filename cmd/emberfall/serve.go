// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Emberfall Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/emberfall/emberfall/internal/auth"
	authpg "github.com/emberfall/emberfall/internal/auth/postgres"
	"github.com/emberfall/emberfall/internal/config"
	"github.com/emberfall/emberfall/internal/gateway"
	"github.com/emberfall/emberfall/internal/logging"
	"github.com/emberfall/emberfall/internal/observability"
)

// Default values for serve command flags.
const (
	defaultListenAddr  = ":4201"
	defaultMetricsAddr = "127.0.0.1:9100"
	defaultLogFormat   = "json"
)

// newServeCmd creates the serve subcommand with all flags configured.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication gateway",
		Long: `Start the authentication gateway: a TCP server where players
register and log in, plus metrics and health endpoints. Pending schema
migrations are applied on startup.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, nil)
		},
	}

	cmd.Flags().String("listen-addr", defaultListenAddr, "gateway listen address")
	cmd.Flags().String("metrics-addr", defaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", defaultLogFormat, "log format (json or text)")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")
	cmd.Flags().Bool("registration-open", true, "whether new registrations are accepted")

	return cmd
}

// runServe starts the gateway process with injectable dependencies.
// If deps is nil, default implementations are used.
func runServe(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()

	cfg, err := deps.ConfigLoader(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := validateServeConfig(cfg); err != nil {
		return err
	}

	logging.SetDefault("emberfall", version, cfg.Log.Format)

	slog.Info("starting gateway",
		"listen_addr", cfg.Server.ListenAddr,
		"metrics_addr", cfg.Server.MetricsAddr,
		"registration_open", cfg.Auth.RegistrationOpen,
	)

	if err := autoMigrate(deps, cfg.Database.URL); err != nil {
		return err
	}

	pool, err := deps.PoolConnector(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	accounts := authpg.NewAccountRepository(pool)
	if count, countErr := accounts.CountAccounts(ctx); countErr == nil {
		slog.Info("connected to credential store", "accounts", count)
	} else {
		slog.Warn("connected to credential store, account count unavailable", "error", countErr)
	}

	sessions := auth.NewSessionManager()
	engine, err := auth.NewEngineWithLogger(
		accounts,
		auth.NewBcryptHasher(),
		sessions,
		slog.Default(),
	)
	if err != nil {
		return oops.With("operation", "create auth engine").Wrap(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start observability server if configured
	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Server.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Server.MetricsAddr, func() bool {
			pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
			defer pingCancel()
			return pool.Ping(pingCtx) == nil
		})
		obsErrChan, obsErr := obsServer.Start()
		if obsErr != nil {
			return oops.With("operation", "start observability server").Wrap(obsErr)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		metrics = obsServer.Metrics()
		slog.Info("observability server started", "addr", obsServer.Addr())
	}

	authHandler, err := gateway.NewAuthHandlerWithLogger(
		engine,
		metrics,
		cfg.Auth.RegistrationOpen,
		cfg.Database.QueryTimeout,
		slog.Default(),
	)
	if err != nil {
		return oops.With("operation", "create auth handler").Wrap(err)
	}

	gatewaySrv := gateway.NewServer(cfg.Server.ListenAddr, authHandler, sessions, metrics)

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		if runErr := gatewaySrv.Run(ctx); runErr != nil {
			errChan <- runErr
		}
	}()

	cmd.Println("Gateway started")

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case err := <-errChan:
		return oops.With("operation", "run gateway server").Wrap(err)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	// Graceful shutdown: cancelling the context closes the gateway listener.
	slog.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}

	slog.Info("shutdown complete")
	return nil
}

// validateServeConfig checks settings the config package cannot default.
func validateServeConfig(cfg *config.Config) error {
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").
			With("log_format", cfg.Log.Format).
			Errorf("log format must be 'json' or 'text', got %q", cfg.Log.Format)
	}
	if cfg.Server.ListenAddr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("listen address is required")
	}
	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").
			Errorf("database URL is required (--database-url flag or database.url in the config file)")
	}
	return nil
}

// autoMigrate applies pending schema migrations at startup.
func autoMigrate(deps *ServeDeps, databaseURL string) error {
	migrator, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return oops.With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("error closing migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.With("operation", "apply migrations").Wrap(err)
	}

	slog.Info("schema migrations applied")
	return nil
}

// monitorServerErrors monitors a server's error channel and cancels the
// context on error so a failed server triggers graceful shutdown.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			// Channel closed, server stopped gracefully
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
