package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/arontabacinik/itirp/internal/auth"
	"github.com/arontabacinik/itirp/internal/config"
	"github.com/arontabacinik/itirp/internal/coordinator"
	"github.com/arontabacinik/itirp/internal/eventlog"
	"github.com/arontabacinik/itirp/internal/risk"
	"github.com/arontabacinik/itirp/pkg/types"
)

type principalKey struct{}

// Handlers holds all HTTP handler dependencies.
type Handlers struct {
	coord       *coordinator.Coordinator
	risk        *risk.Engine
	log         *eventlog.Log
	credentials *auth.CredentialStore
	tokens      *auth.TokenService
	hub         *Hub
	cfg         config.ServerConfig
	logger      *slog.Logger
}

// NewHandlers creates a new handlers instance.
func NewHandlers(
	coord *coordinator.Coordinator,
	riskEngine *risk.Engine,
	log *eventlog.Log,
	credentials *auth.CredentialStore,
	tokens *auth.TokenService,
	hub *Hub,
	cfg config.ServerConfig,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		coord:       coord,
		risk:        riskEngine,
		log:         log,
		credentials: credentials,
		tokens:      tokens,
		hub:         hub,
		cfg:         cfg,
		logger:      logger.With("component", "api-handlers"),
	}
}

// HandleHealth returns a simple health check response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleLogin exchanges credentials for a bearer token.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	principal, err := h.credentials.Authenticate(req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := h.tokens.Issue(principal)
	if err != nil {
		h.logger.Error("failed to issue token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, Role: principal.Role})
}

// HandleSubmitOrder runs the synchronous half of a submission and returns
// the approval or rejection.
func (h *Handlers) HandleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())

	var req submitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	order, err := h.coord.Submit(r.Context(), req, principal)
	if err != nil {
		var (
			verr    *types.ValidationError
			riskErr *types.RiskError
			dup     *types.DuplicateError
		)
		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error(), Code: "VALIDATION"})
		case errors.As(err, &riskErr):
			writeJSON(w, http.StatusUnprocessableEntity, orderResponse{
				Order:      order,
				Violations: riskErr.Violations,
			})
		case errors.As(err, &dup):
			writeJSON(w, http.StatusConflict, errorResponse{
				Error:        dup.Error(),
				Code:         "DUPLICATE",
				PriorOrderID: dup.OrderID,
			})
		default:
			h.logger.Error("submission failed", "error", err)
			writeError(w, http.StatusInternalServerError, "order state undefined, contact operations")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, orderResponse{Order: order})
}

// HandleGetOrder returns the current snapshot of one order.
func (h *Handlers) HandleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.coord.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{Order: order})
}

// HandleRiskMetrics returns aggregate exposure and the active limits.
func (h *Handlers) HandleRiskMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.risk.Metrics())
}

// HandleUpdateLimits atomically replaces the risk configuration.
func (h *Handlers) HandleUpdateLimits(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())

	var req updateLimitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	limits, err := parseLimits(req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "CONFIG"})
		return
	}

	if err := h.risk.UpdateLimits(limits, principal.UserID); err != nil {
		var cfgErr *types.ConfigError
		if errors.As(err, &cfgErr) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: cfgErr.Error(), Code: "CONFIG"})
			return
		}
		h.logger.Error("limit update failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, h.risk.Metrics())
}

// HandleKillSwitch toggles the global override.
func (h *Handlers) HandleKillSwitch(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())

	var req killSwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.risk.SetKillSwitch(req.Enabled, principal.UserID); err != nil {
		h.logger.Error("kill switch toggle failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"kill_switch_enabled": req.Enabled})
}

// HandleAuditByCorrelation returns one correlation chain in append order.
func (h *Handlers) HandleAuditByCorrelation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.log.ByCorrelation(r.PathValue("id")))
}

// HandleAuditByOrder returns one order's event chain in append order.
func (h *Handlers) HandleAuditByOrder(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.log.ByOrder(r.PathValue("id")))
}

// HandleAuditRecent returns the newest events, newest first. The limit
// query parameter defaults to 100.
func (h *Handlers) HandleAuditRecent(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, h.log.Recent(limit))
}

// HandleWebSocket upgrades the connection and streams audit events.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(req *http.Request) bool {
			return isOriginAllowed(req.Header.Get("Origin"), h.cfg.AllowedOrigins, req.Host)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	NewClient(h.hub, conn)
}

// requireRole authenticates the bearer token and enforces the minimum
// role before delegating to next.
func (h *Handlers) requireRole(required types.Role, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := h.authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		if !principal.Role.AtLeast(required) {
			writeError(w, http.StatusForbidden, "insufficient role")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, principal)))
	}
}

// authenticate extracts the principal from the Authorization header, or
// from the token query parameter for WebSocket clients that cannot set
// headers.
func (h *Handlers) authenticate(r *http.Request) (types.Principal, error) {
	token := ""
	if header := r.Header.Get("Authorization"); header != "" {
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			return types.Principal{}, auth.ErrInvalidToken
		}
		token = header[len(prefix):]
	} else {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return types.Principal{}, auth.ErrInvalidToken
	}
	return h.tokens.Verify(token)
}

func principalFrom(ctx context.Context) types.Principal {
	principal, _ := ctx.Value(principalKey{}).(types.Principal)
	return principal
}

func parseLimits(req updateLimitsRequest) (types.RiskLimits, error) {
	var limits types.RiskLimits
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"max_position_size", req.MaxPositionSize, &limits.MaxPositionSize},
		{"max_daily_volume", req.MaxDailyVolume, &limits.MaxDailyVolume},
		{"max_net_exposure", req.MaxNetExposure, &limits.MaxNetExposure},
		{"max_gross_exposure", req.MaxGrossExposure, &limits.MaxGrossExposure},
	} {
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return types.RiskLimits{}, &types.ConfigError{Field: f.name, Reason: "must be a decimal number"}
		}
		*f.dst = v
	}
	return limits, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
