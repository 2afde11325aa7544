// Package api exposes the control core over HTTP and WebSocket.
//
// Routing, JSON encoding, authentication and role checks all live here;
// the core packages never see an http.Request. Commands map to core calls
// as follows:
//
//	POST /api/orders                  → Coordinator.Submit      (TRADER+)
//	GET  /api/orders/{id}             → Coordinator.Get         (TRADER+)
//	GET  /api/risk/metrics            → Risk.Metrics            (TRADER+)
//	PUT  /api/risk/limits             → Risk.UpdateLimits       (RISK_MANAGER+)
//	POST /api/risk/kill-switch        → Risk.SetKillSwitch      (RISK_MANAGER+)
//	GET  /api/audit/correlation/{id}  → EventLog.ByCorrelation  (COMPLIANCE+)
//	GET  /api/audit/order/{id}        → EventLog.ByOrder        (COMPLIANCE+)
//	GET  /api/audit/recent            → EventLog.Recent         (COMPLIANCE+)
//	GET  /ws                          → live audit event stream (COMPLIANCE+)
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/arontabacinik/itirp/internal/config"
	"github.com/arontabacinik/itirp/internal/eventlog"
	"github.com/arontabacinik/itirp/pkg/types"
)

// Server runs the HTTP/WebSocket API.
type Server struct {
	cfg      config.ServerConfig
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	events   <-chan types.Event
	logger   *slog.Logger
}

// NewServer wires the routes and the audit stream.
func NewServer(cfg config.ServerConfig, handlers *Handlers, hub *Hub, log *eventlog.Log, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handlers.HandleHealth)
	mux.HandleFunc("POST /api/login", handlers.HandleLogin)

	mux.HandleFunc("POST /api/orders", handlers.requireRole(types.RoleTrader, handlers.HandleSubmitOrder))
	mux.HandleFunc("GET /api/orders/{id}", handlers.requireRole(types.RoleTrader, handlers.HandleGetOrder))
	mux.HandleFunc("GET /api/risk/metrics", handlers.requireRole(types.RoleTrader, handlers.HandleRiskMetrics))

	mux.HandleFunc("PUT /api/risk/limits", handlers.requireRole(types.RoleRiskManager, handlers.HandleUpdateLimits))
	mux.HandleFunc("POST /api/risk/kill-switch", handlers.requireRole(types.RoleRiskManager, handlers.HandleKillSwitch))

	mux.HandleFunc("GET /api/audit/correlation/{id}", handlers.requireRole(types.RoleCompliance, handlers.HandleAuditByCorrelation))
	mux.HandleFunc("GET /api/audit/order/{id}", handlers.requireRole(types.RoleCompliance, handlers.HandleAuditByOrder))
	mux.HandleFunc("GET /api/audit/recent", handlers.requireRole(types.RoleCompliance, handlers.HandleAuditRecent))
	mux.HandleFunc("GET /ws", handlers.requireRole(types.RoleCompliance, handlers.HandleWebSocket))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:      cfg,
		hub:      hub,
		handlers: handlers,
		server:   server,
		events:   log.Subscribe(256),
		logger:   logger.With("component", "api-server"),
	}
}

// Start starts the API server and hub. Blocks until shutdown.
func (s *Server) Start() error {
	go s.hub.Run()
	go s.consumeEvents()

	s.logger.Info("api server starting", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.logger.Info("stopping api server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// consumeEvents forwards appended audit events to connected WebSocket
// clients.
func (s *Server) consumeEvents() {
	for ev := range s.events {
		s.hub.BroadcastEvent(ev)
	}
}
