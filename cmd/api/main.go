// Package main is the entry point for the Droplink payment API server.
//
// It loads configuration, connects to PostgreSQL, builds the DropPay provider
// client and the payment services, mounts the HTTP routes through the core
// chassis (middleware, routing, health checks), and listens for requests.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"droplink/internal/api/handlers"
	"droplink/internal/config"
	"droplink/internal/core"
	"droplink/internal/db"
	"droplink/internal/external"
	"droplink/internal/payments"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig(secretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("droplink payment API starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	pool, err := db.NewPool(ctx, cfg.Database)
	cancel()
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}

	// Provider client and webhook verifier.
	provider := external.NewDropPayClient(
		cfg.Provider.BaseURL,
		cfg.Provider.APIKey,
		cfg.Provider.AuthScheme,
		cfg.Provider.Timeout,
		logger,
	)
	verifier := external.NewHMACVerifier(cfg.Webhook.SharedSecret, logger)

	// Repositories and domain services.
	intentRepo := db.NewPaymentIntentRepo(pool, logger)
	effectStore := db.NewEffectStore(pool, logger)
	paymentSvc := payments.NewService(provider, intentRepo, logger)
	reconciler := payments.NewReconciler(verifier, intentRepo, effectStore, logger)

	// Build the server and wire routes.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		pool.Close()
		return fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = append(srv.HealthProbes, db.NewPoolProbe(pool))
	srv.Closers = append(srv.Closers, pool.Close)

	paymentHandler := handlers.NewPaymentHandler(paymentSvc, srv.Validator, logger)
	webhookHandler := handlers.NewWebhookHandler(reconciler, logger)
	srv.RouteRegistrars = append(srv.RouteRegistrars,
		paymentHandler.RegisterRoutes,
		webhookHandler.RegisterRoutes,
	)

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// secretProvider selects the SecretProvider for the current environment:
// local development resolves secrets from the environment or a .env file,
// deployed environments resolve _SSM_PARAM pointers against Parameter Store.
func secretProvider() config.SecretProvider {
	if os.Getenv("APP_ENV") == "local" {
		return config.NewEnvVarProvider()
	}
	return config.NewSSMProvider(os.Getenv("AWS_REGION"))
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
