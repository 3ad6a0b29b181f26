// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/allev1985/topten-sub005/internal/auth"
	"github.com/allev1985/topten-sub005/internal/config"
	"github.com/allev1985/topten-sub005/internal/logging"
	"github.com/allev1985/topten-sub005/internal/web"
)

// readinessProbeTimeout bounds the database ping behind /healthz/readiness.
const readinessProbeTimeout = time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the auth API server",
		Long: `Start the HTTP server that handles signup, login, logout, password
flows and session checks, plus the metrics and health endpoints.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := resolveConfigFile()
			if err != nil {
				return err
			}
			cfg, err := config.Load(path, cmd.Flags())
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

// runServeWithDeps starts the server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.SetDefault("topten", version, logging.Options{Format: cfg.Log.Format, Level: level})

	logger.Info("starting auth server",
		"addr", cfg.Server.Addr,
		"identity_provider", cfg.Identity.Provider,
		"log_format", cfg.Log.Format,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stack, err := buildIdentity(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	defer stack.close()

	var ready atomic.Bool
	readiness := func() bool {
		if !ready.Load() {
			return false
		}
		pingCtx, pingCancel := context.WithTimeout(context.Background(), readinessProbeTimeout)
		defer pingCancel()
		return stack.ping(pingCtx) == nil
	}

	// Metrics still need a registry when the observability listener is off.
	var registry prometheus.Registerer = prometheus.NewRegistry()
	var recorder web.RequestRecorder
	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, readiness)
		registry = obsServer.Registry()
		recorder = obsServer.Metrics()
	}

	svc, err := auth.NewService(stack.opener, stack.classifier, auth.Config{
		SiteURL:            cfg.Auth.SiteURL,
		ConfirmPath:        cfg.Auth.ConfirmPath,
		ResetPath:          cfg.Auth.ResetPath,
		ExpiringSoonWindow: cfg.Auth.ExpiringSoonWindow,
	}, auth.WithLogger(logger), auth.WithMetrics(auth.NewMetrics(registry)))
	if err != nil {
		return err
	}

	handler, err := web.NewHandler(svc, web.Options{
		ProtectedPaths:  cfg.Web.ProtectedPaths,
		LoginPath:       cfg.Web.LoginPath,
		DefaultRedirect: cfg.Auth.DefaultRedirect,
		Cookies: web.CookieOptions{
			Secure: cfg.Web.CookieSecure,
			Domain: cfg.Web.CookieDomain,
		},
		Recorder: recorder,
	}, logger)
	if err != nil {
		return err
	}

	listener, err := deps.ListenerFactory("tcp", cfg.Server.Addr)
	if err != nil {
		return oops.Code("LISTEN_FAILED").With("addr", cfg.Server.Addr).Wrap(err)
	}
	httpServer := &http.Server{
		Handler:           handler.Routes(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	if obsServer != nil {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			_ = listener.Close()
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.Metrics.Addr).Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	var workers sync.WaitGroup
	if stack.purger != nil && cfg.Identity.Local.PurgeInterval > 0 {
		workers.Go(func() {
			runPurger(ctx, stack.purger, cfg.Identity.Local.PurgeInterval, logger)
		})
	}

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		if serveErr := httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	ready.Store(true)
	cmd.Println("TopTen auth server started")
	logger.Info("auth server ready", "addr", listener.Addr().String())

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case serveErr := <-errChan:
		runErr = oops.Code("SERVER_FAILED").With("addr", cfg.Server.Addr).Wrap(serveErr)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")
	ready.Store(false)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping http server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}
	workers.Wait()

	logger.Info("shutdown complete")
	return runErr
}

// monitorServerErrors cancels ctx when a background server reports an error.
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
