package api

import (
	"github.com/arontabacinik/itirp/internal/coordinator"
	"github.com/arontabacinik/itirp/pkg/types"
)

// loginRequest is the credential exchange body for POST /api/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse carries the signed bearer token.
type loginResponse struct {
	Token string     `json:"token"`
	Role  types.Role `json:"role"`
}

// submitOrderRequest mirrors coordinator.SubmitRequest on the wire.
type submitOrderRequest = coordinator.SubmitRequest

// orderResponse is the synchronous submission result. Violations is set
// only for risk rejections.
type orderResponse struct {
	Order      types.Order       `json:"order"`
	Violations []types.Violation `json:"violations,omitempty"`
}

// updateLimitsRequest replaces the risk configuration. Amounts travel as
// strings to preserve decimal precision.
type updateLimitsRequest struct {
	MaxPositionSize  string `json:"max_position_size"`
	MaxDailyVolume   string `json:"max_daily_volume"`
	MaxNetExposure   string `json:"max_net_exposure"`
	MaxGrossExposure string `json:"max_gross_exposure"`
}

// killSwitchRequest toggles the override.
type killSwitchRequest struct {
	Enabled bool `json:"enabled"`
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error        string            `json:"error"`
	Code         string            `json:"code,omitempty"`
	Violations   []types.Violation `json:"violations,omitempty"`
	PriorOrderID string            `json:"prior_order_id,omitempty"`
}
