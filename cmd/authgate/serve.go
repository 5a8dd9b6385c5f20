// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/internal/config"
	"github.com/holomush/authgate/internal/httpapi"
	"github.com/holomush/authgate/internal/logging"
	"github.com/holomush/authgate/internal/observability"
	"github.com/holomush/authgate/internal/store"
)

// readinessProbeTimeout bounds the store ping behind the readiness probe.
const readinessProbeTimeout = 2 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the auth API server",
		Long: `Start the HTTP API server. Configuration is read from the config file,
AUTHGATE_* environment variables and the flags below, with flags taking
precedence.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}

	config.BindFlags(cmd.Flags())

	return cmd
}

// runServeWithDeps starts the server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if deps == nil {
		deps = &ServeDeps{}
	}

	if deps.ConfigLoader == nil {
		deps.ConfigLoader = config.Load
	}
	if deps.StoreOpener == nil {
		deps.StoreOpener = openStore
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(url string) (AutoMigrator, error) {
			return store.NewMigrator(url)
		}
	}
	if deps.NotifierFactory == nil {
		deps.NotifierFactory = newNotifier
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if deps.APIServerFactory == nil {
		deps.APIServerFactory = func(cfg httpapi.Config, svc httpapi.AuthService, tokens httpapi.TokenVerifier, opts ...httpapi.Option) (APIServer, error) {
			return httpapi.NewServer(cfg, svc, tokens, opts...)
		}
	}

	cfg, err := deps.ConfigLoader(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := logging.SetDefault(logging.Options{
		Service: "authgate",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   level,
		Writer:  deps.LogWriter,
	})

	logger.Info("starting authgate",
		"env", cfg.Env,
		"store", cfg.Store.Driver,
		"notify", cfg.Notify.Driver,
		"config_file", cfg.File,
	)
	if cfg.Notify.LogCodes {
		logger.Warn("notify.log_codes is enabled: undelivered codes will be written to the log")
	}

	hasher, err := auth.NewPasswordHasher(cfg.HasherConfig())
	if err != nil {
		return fmt.Errorf("failed to create password hasher: %w", err)
	}
	codes, err := auth.NewCodeGenerator(cfg.Codes.Length, cfg.Codes.Charset)
	if err != nil {
		return fmt.Errorf("failed to create code generator: %w", err)
	}
	tokens, err := auth.NewJWTIssuer(cfg.Token.Secret, cfg.Token.Issuer)
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}
	notifier, err := deps.NotifierFactory(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create notifier: %w", err)
	}

	accounts, err := deps.StoreOpener(ctx, cfg, deps.MigratorFactory)
	if err != nil {
		return fmt.Errorf("failed to open account store: %w", err)
	}
	defer accounts.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var ready atomic.Bool
	readiness := func() bool {
		if !ready.Load() {
			return false
		}
		if accounts.ping == nil {
			return true
		}
		pingCtx, pingCancel := context.WithTimeout(ctx, readinessProbeTimeout)
		defer pingCancel()
		return accounts.ping(pingCtx) == nil
	}

	svcOpts := []auth.Option{
		auth.WithLogger(logger),
		auth.WithTokenTTL(cfg.Token.TTL),
		auth.WithCodeTTL(cfg.Codes.TTL),
		auth.WithNotifyTimeout(cfg.Notify.Timeout),
		auth.WithCodeLogFallback(cfg.Notify.LogCodes),
	}
	apiOpts := []httpapi.Option{httpapi.WithLogger(logger)}

	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, readiness)
		metrics := obsServer.Metrics()
		svcOpts = append(svcOpts, auth.WithRecorder(metrics))
		apiOpts = append(apiOpts, httpapi.WithObserver(metrics))

		obsErrChan, err := obsServer.Start()
		if err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		// Monitor observability server errors - cancel context on error
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	svc, err := auth.NewService(accounts.repo, hasher, codes, tokens, notifier, svcOpts...)
	if err != nil {
		stopServers(cfg.HTTP.ShutdownTimeout, nil, obsServer)
		return fmt.Errorf("failed to create auth service: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	apiServer, err := deps.APIServerFactory(httpapi.Config{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}, svc, tokens, apiOpts...)
	if err != nil {
		stopServers(cfg.HTTP.ShutdownTimeout, nil, obsServer)
		return fmt.Errorf("failed to create API server: %w", err)
	}

	apiErrChan, err := apiServer.Start()
	if err != nil {
		stopServers(cfg.HTTP.ShutdownTimeout, nil, obsServer)
		return fmt.Errorf("failed to start API server: %w", err)
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")
	ready.Store(true)

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Printf("authgate listening on %s\n", apiServer.Addr())
	logger.Info("authgate ready", "addr", apiServer.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	ready.Store(false)
	logger.Info("shutting down...")
	stopServers(cfg.HTTP.ShutdownTimeout, apiServer, obsServer)
	logger.Info("shutdown complete")
	return nil
}

// stopServers stops the API server first so in-flight requests drain while
// the probes still answer, then the observability server.
func stopServers(timeout time.Duration, api APIServer, obs ObservabilityServer) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	if api != nil {
		if err := api.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping API server", "error", err)
		}
	}
	if obs != nil {
		if err := obs.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
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
