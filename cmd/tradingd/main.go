// itirp trading control daemon — the transactional backbone between
// client-facing APIs and downstream market connectivity.
//
// Architecture:
//
//	main.go                  — entry point: loads config, starts the app, waits for SIGINT/SIGTERM
//	app/app.go               — composition root: wires the component graph, manages lifecycle
//	coordinator/coordinator.go — drives orders through the lifecycle state machine
//	risk/engine.go           — pre-trade gate: position, volume, and exposure limits + kill switch
//	pipeline/pipeline.go     — async execution: worker pool, retries, timeouts, backoff
//	breaker/breaker.go       — circuit breaker guarding the downstream executor
//	eventlog/log.go          — append-only, correlation-indexed audit journal
//	position/store.go        — per-symbol materialization of executed fills
//	idempotency/index.go     — duplicate-submission detection by fingerprint
//	executor/                — downstream seam: simulated + HTTP venue gateway
//	storage/eventstore.go    — optional SQLite persistence for the journal
//	auth/auth.go             — credential store (bcrypt) and JWT token service
//	api/                     — HTTP/WebSocket adapter with role enforcement
//
// Every order submission is risk-checked synchronously, executed
// asynchronously, and leaves an immutable, replayable audit trail keyed by
// correlation id.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/arontabacinik/itirp/internal/app"
	"github.com/arontabacinik/itirp/internal/config"
	"github.com/arontabacinik/itirp/pkg/types"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("ITIRP_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Set up logger
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	a, err := app.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create app", "error", err)
		os.Exit(1)
	}

	// Bootstrap users. A deployment replaces this with its directory
	// integration; the admin password comes from the environment.
	if pw := os.Getenv("ITIRP_ADMIN_PASSWORD"); pw != "" {
		if err := a.Credentials.AddUser("admin", pw, types.RoleAdmin); err != nil {
			logger.Error("failed to create admin user", "error", err)
			os.Exit(1)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Start()
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", "error", err)
		}
	}

	a.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
