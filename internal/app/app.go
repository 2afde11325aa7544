// Package app is the composition root of the trading control daemon.
//
// It wires together all subsystems:
//
//  1. The event log is created first; every other component appends to it.
//  2. The position store materializes fills; the risk engine projects
//     candidate orders onto its snapshots.
//  3. The pipeline wraps the chosen executor in idempotency, retries, and
//     the circuit breaker, and reports transitions back to the coordinator.
//  4. The coordinator drives the synchronous half of each submission.
//  5. The API server exposes the graph over HTTP/WebSocket.
//
// Everything is wired by reference here; no package owns a global.
//
// Lifecycle: New() → Start() → [runs until SIGINT] → Stop()
package app

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/arontabacinik/itirp/internal/api"
	"github.com/arontabacinik/itirp/internal/auth"
	"github.com/arontabacinik/itirp/internal/breaker"
	"github.com/arontabacinik/itirp/internal/config"
	"github.com/arontabacinik/itirp/internal/coordinator"
	"github.com/arontabacinik/itirp/internal/eventlog"
	"github.com/arontabacinik/itirp/internal/executor"
	"github.com/arontabacinik/itirp/internal/idempotency"
	"github.com/arontabacinik/itirp/internal/pipeline"
	"github.com/arontabacinik/itirp/internal/position"
	"github.com/arontabacinik/itirp/internal/risk"
	"github.com/arontabacinik/itirp/internal/storage"
	"github.com/arontabacinik/itirp/pkg/types"
)

// App owns the component graph and its lifecycle.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	Log         *eventlog.Log
	Positions   *position.Store
	Risk        *risk.Engine
	Coordinator *coordinator.Coordinator
	Credentials *auth.CredentialStore
	Tokens      *auth.TokenService

	pipe   *pipeline.Pipeline
	server *api.Server
	store  *storage.EventStore
}

// New creates and wires all components.
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	var logOpts []eventlog.Option
	var store *storage.EventStore
	if cfg.Storage.Path != "" {
		var err error
		store, err = storage.Open(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		logOpts = append(logOpts, eventlog.WithStore(store))
	}
	log := eventlog.New(cfg.EventLog.Capacity, logOpts...)

	positions := position.NewStore()
	riskEngine := risk.NewEngine(startingLimits(cfg.Risk), positions, log, logger)
	dedup := idempotency.NewIndex()

	brk := breaker.New(cfg.Breaker.FailureThreshold, cfg.Breaker.OpenDuration, logger)

	exec, err := buildExecutor(cfg.Executor, logger)
	if err != nil {
		return nil, err
	}

	var coord *coordinator.Coordinator
	pipe := pipeline.New(
		pipeline.Config{
			Workers:        cfg.Pipeline.Workers,
			QueueSize:      cfg.Pipeline.QueueSize,
			MaxAttempts:    cfg.Pipeline.MaxAttempts,
			AttemptTimeout: cfg.Pipeline.AttemptTimeout,
		},
		exec, brk, log, positions, dedup,
		func(orderID string, status types.OrderStatus, fill *types.Fill) {
			coord.OnExecutionTransition(orderID, status, fill)
		},
		logger,
	)
	coord = coordinator.New(log, riskEngine, dedup, pipe, logger)

	credentials := auth.NewCredentialStore()
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenExpiry)

	hub := api.NewHub(logger)
	handlers := api.NewHandlers(coord, riskEngine, log, credentials, tokens, hub, cfg.Server, logger)
	server := api.NewServer(cfg.Server, handlers, hub, log, logger)

	return &App{
		cfg:         cfg,
		logger:      logger.With("component", "app"),
		Log:         log,
		Positions:   positions,
		Risk:        riskEngine,
		Coordinator: coord,
		Credentials: credentials,
		Tokens:      tokens,
		pipe:        pipe,
		server:      server,
		store:       store,
	}, nil
}

// Start launches the pipeline workers and the API server. The server call
// blocks until shutdown.
func (a *App) Start() error {
	a.pipe.Start()

	a.logger.Info("trading control core started",
		"port", a.cfg.Server.Port,
		"executor", a.cfg.Executor.Mode,
		"workers", a.cfg.Pipeline.Workers,
		"persistent", a.cfg.Storage.Path != "",
	)

	return a.server.Start()
}

// Stop gracefully shuts down: stops accepting HTTP traffic, stops the
// pipeline (cancelling in-flight executions and waiting for its workers to
// exit), and closes the event store.
func (a *App) Stop() {
	a.logger.Info("shutting down...")

	if err := a.server.Stop(); err != nil {
		a.logger.Error("failed to stop api server", "error", err)
	}
	a.pipe.Stop()

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("failed to close event store", "error", err)
		}
	}

	a.logger.Info("shutdown complete")
}

func startingLimits(cfg config.RiskConfig) types.RiskLimits {
	return types.RiskLimits{
		MaxPositionSize:  decimal.NewFromFloat(cfg.MaxPositionSize),
		MaxDailyVolume:   decimal.NewFromFloat(cfg.MaxDailyVolume),
		MaxNetExposure:   decimal.NewFromFloat(cfg.MaxNetExposure),
		MaxGrossExposure: decimal.NewFromFloat(cfg.MaxGrossExposure),
	}
}

func buildExecutor(cfg config.ExecutorConfig, logger *slog.Logger) (executor.Executor, error) {
	switch cfg.Mode {
	case "simulated":
		return executor.NewSimulated(cfg.SimLatency, cfg.SimFailureRate), nil
	case "http":
		return executor.NewHTTPExecutor(cfg.BaseURL, cfg.APIKey, logger), nil
	default:
		return nil, fmt.Errorf("unknown executor mode %q", cfg.Mode)
	}
}
