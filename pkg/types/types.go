// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the platform: orders, lifecycle
// events, fills, positions, and risk limits. It has no dependencies on
// internal packages, so it can be imported by any layer.
package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of an order: BUY or SELL.
type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

// Valid reports whether the side is one of the two known values.
func (s Side) Valid() bool {
	return s == BUY || s == SELL
}

// Sign returns +1 for BUY and -1 for SELL.
func (s Side) Sign() int {
	if s == SELL {
		return -1
	}
	return 1
}

// OrderStatus is the order lifecycle state machine.
//
// PENDING → RISK_CHECK → {APPROVED, REJECTED}
// APPROVED → EXECUTING → {EXECUTED, FAILED}
//
// REJECTED, EXECUTED and FAILED are terminal. Transitions are linear and
// monotone; no backward transition is legal.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusRiskCheck OrderStatus = "RISK_CHECK"
	StatusApproved  OrderStatus = "APPROVED"
	StatusRejected  OrderStatus = "REJECTED"
	StatusExecuting OrderStatus = "EXECUTING"
	StatusExecuted  OrderStatus = "EXECUTED"
	StatusFailed    OrderStatus = "FAILED"
)

// Terminal reports whether no further transition is legal from this status.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusRejected, StatusExecuted, StatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusRiskCheck
	case StatusRiskCheck:
		return next == StatusApproved || next == StatusRejected
	case StatusApproved:
		return next == StatusExecuting
	case StatusExecuting:
		return next == StatusExecuted || next == StatusFailed
	}
	return false
}

// ————————————————————————————————————————————————————————————————————————
// Orders and fills
// ————————————————————————————————————————————————————————————————————————

// Order is the unit of work flowing through the control core. Orders are
// created once; after creation only Status, FilledPrice and UpdatedAt mutate.
type Order struct {
	OrderID       string          `json:"order_id"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	CorrelationID string          `json:"correlation_id"`
	Symbol        string          `json:"symbol"`
	Side          Side            `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	LimitPrice    decimal.Decimal `json:"limit_price"`
	UserID        string          `json:"user_id"`
	Strategy      string          `json:"strategy,omitempty"`
	Status        OrderStatus     `json:"status"`
	FilledPrice   decimal.Decimal `json:"filled_price,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Notional returns quantity × limit price.
func (o Order) Notional() decimal.Decimal {
	return o.Quantity.Mul(o.LimitPrice)
}

// SignedNotional returns the notional with the side's sign applied.
func (o Order) SignedNotional() decimal.Decimal {
	n := o.Notional()
	if o.Side == SELL {
		return n.Neg()
	}
	return n
}

// Validate checks the order's structural invariants: known side, positive
// quantity, non-negative price, non-empty symbol.
func (o Order) Validate() error {
	if strings.TrimSpace(o.Symbol) == "" {
		return &ValidationError{Field: "symbol", Reason: "must not be empty"}
	}
	if !o.Side.Valid() {
		return &ValidationError{Field: "side", Reason: fmt.Sprintf("unknown side %q", o.Side)}
	}
	if !o.Quantity.IsPositive() {
		return &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if o.LimitPrice.IsNegative() {
		return &ValidationError{Field: "limit_price", Reason: "must not be negative"}
	}
	return nil
}

// Fill is the result of a successful downstream execution.
type Fill struct {
	OrderID  string          `json:"order_id"`
	Symbol   string          `json:"symbol"`
	Side     Side            `json:"side"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	FilledAt time.Time       `json:"filled_at"`
}

// ————————————————————————————————————————————————————————————————————————
// Positions
// ————————————————————————————————————————————————————————————————————————

// Position is the per-symbol materialization of executed fills. Quantity is
// signed: long positive, short negative. AveragePrice is weighted over the
// absolute quantity accumulated on the current side. LastPrice is the most
// recent fill price and serves as the reference price for exposure.
type Position struct {
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	AveragePrice decimal.Decimal `json:"average_price"`
	LastPrice    decimal.Decimal `json:"last_price"`
	LastUpdate   time.Time       `json:"last_update"`
}

// SignedNotional returns quantity × reference price, keeping the sign of
// the quantity.
func (p Position) SignedNotional() decimal.Decimal {
	return p.Quantity.Mul(p.LastPrice)
}

// ————————————————————————————————————————————————————————————————————————
// Risk limits
// ————————————————————————————————————————————————————————————————————————

// RiskLimits is the single process-wide risk configuration. All limits are
// notional amounts. Limits are replaced atomically through the risk engine's
// configuration API, never mutated in place.
type RiskLimits struct {
	MaxPositionSize   decimal.Decimal `json:"max_position_size"`
	MaxDailyVolume    decimal.Decimal `json:"max_daily_volume"`
	MaxNetExposure    decimal.Decimal `json:"max_net_exposure"`
	MaxGrossExposure  decimal.Decimal `json:"max_gross_exposure"`
	KillSwitchEnabled bool            `json:"kill_switch_enabled"`
}

// Validate rejects negative limit values.
func (l RiskLimits) Validate() error {
	for _, f := range []struct {
		name string
		v    decimal.Decimal
	}{
		{"max_position_size", l.MaxPositionSize},
		{"max_daily_volume", l.MaxDailyVolume},
		{"max_net_exposure", l.MaxNetExposure},
		{"max_gross_exposure", l.MaxGrossExposure},
	} {
		if f.v.IsNegative() {
			return &ConfigError{Field: f.name, Reason: "must not be negative"}
		}
	}
	return nil
}

// ViolationCode identifies one breached risk limit.
type ViolationCode string

const (
	ViolationPositionLimit    ViolationCode = "POSITION_LIMIT"
	ViolationDailyVolumeLimit ViolationCode = "DAILY_VOLUME_LIMIT"
	ViolationNetExposureLimit ViolationCode = "NET_EXPOSURE_LIMIT"
	ViolationGrossExposure    ViolationCode = "GROSS_EXPOSURE_LIMIT"
	ViolationKillSwitch       ViolationCode = "KILL_SWITCH_ACTIVE"
)

// Violation is one breached limit with the observed and allowed values.
type Violation struct {
	Code     ViolationCode   `json:"code"`
	Observed decimal.Decimal `json:"observed"`
	Limit    decimal.Decimal `json:"limit"`
}

// ————————————————————————————————————————————————————————————————————————
// Events
// ————————————————————————————————————————————————————————————————————————

// EventType enumerates the closed set of audit event kinds.
type EventType string

const (
	EventOrderCreated       EventType = "ORDER_CREATED"
	EventRiskCheckStarted   EventType = "RISK_CHECK_STARTED"
	EventRiskCheckPassed    EventType = "RISK_CHECK_PASSED"
	EventRiskCheckFailed    EventType = "RISK_CHECK_FAILED"
	EventExecutionStarted   EventType = "EXECUTION_STARTED"
	EventExecutionCompleted EventType = "EXECUTION_COMPLETED"
	EventExecutionFailed    EventType = "EXECUTION_FAILED"
	EventRiskConfigUpdated  EventType = "RISK_CONFIG_UPDATED"
	EventKillSwitchToggled  EventType = "KILL_SWITCH_TOGGLED"
	EventPositionUpdated    EventType = "POSITION_UPDATED"
)

// EventPayload is the sum type over event-kind-specific payloads. Each
// variant carries exactly the fields its event kind needs; the log's query
// APIs stay polymorphic over the variant.
type EventPayload interface {
	EventKind() EventType
}

// Event is an immutable audit record. Events are never mutated or deleted;
// the order of append establishes the canonical causal order within a
// correlation chain.
type Event struct {
	EventID       string       `json:"event_id"`
	Type          EventType    `json:"event_type"`
	CorrelationID string       `json:"correlation_id"`
	OrderID       string       `json:"order_id,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
	UserID        string       `json:"user_id,omitempty"`
	Payload       EventPayload `json:"payload,omitempty"`
}

// OrderCreatedPayload records the full order as accepted into the core.
type OrderCreatedPayload struct {
	Order Order `json:"order"`
}

func (OrderCreatedPayload) EventKind() EventType { return EventOrderCreated }

// RiskCheckStartedPayload marks entry into the pre-trade risk gate.
type RiskCheckStartedPayload struct {
	Symbol   string          `json:"symbol"`
	Notional decimal.Decimal `json:"notional"`
}

func (RiskCheckStartedPayload) EventKind() EventType { return EventRiskCheckStarted }

// RiskCheckPassedPayload records the metrics observed at approval time.
type RiskCheckPassedPayload struct {
	Notional    decimal.Decimal `json:"notional"`
	DailyVolume decimal.Decimal `json:"daily_volume"`
}

func (RiskCheckPassedPayload) EventKind() EventType { return EventRiskCheckPassed }

// RiskCheckFailedPayload carries every violated limit.
type RiskCheckFailedPayload struct {
	Violations []Violation `json:"violations"`
}

func (RiskCheckFailedPayload) EventKind() EventType { return EventRiskCheckFailed }

// ExecutionStartedPayload marks hand-off to the downstream executor.
type ExecutionStartedPayload struct {
	MaxAttempts int `json:"max_attempts"`
}

func (ExecutionStartedPayload) EventKind() EventType { return EventExecutionStarted }

// ExecutionCompletedPayload carries the fill returned by the venue.
type ExecutionCompletedPayload struct {
	Fill     Fill `json:"fill"`
	Attempts int  `json:"attempts"`
}

func (ExecutionCompletedPayload) EventKind() EventType { return EventExecutionCompleted }

// ExecutionFailedPayload records the final failure reason after retries.
type ExecutionFailedPayload struct {
	Reason   string `json:"reason"`
	Attempts int    `json:"attempts"`
}

func (ExecutionFailedPayload) EventKind() EventType { return EventExecutionFailed }

// RiskConfigUpdatedPayload records an atomic limit replacement.
type RiskConfigUpdatedPayload struct {
	Limits RiskLimits `json:"limits"`
	Actor  string     `json:"actor"`
}

func (RiskConfigUpdatedPayload) EventKind() EventType { return EventRiskConfigUpdated }

// KillSwitchToggledPayload records each toggle call, even when idempotent.
type KillSwitchToggledPayload struct {
	Enabled bool   `json:"enabled"`
	Actor   string `json:"actor"`
}

func (KillSwitchToggledPayload) EventKind() EventType { return EventKillSwitchToggled }

// PositionUpdatedPayload records the position after a fill was applied.
type PositionUpdatedPayload struct {
	Position Position `json:"position"`
}

func (PositionUpdatedPayload) EventKind() EventType { return EventPositionUpdated }

// ————————————————————————————————————————————————————————————————————————
// Principals and roles
// ————————————————————————————————————————————————————————————————————————

// Role is the coarse permission tier attached to an authenticated principal.
type Role string

const (
	RoleViewer      Role = "VIEWER"
	RoleTrader      Role = "TRADER"
	RoleRiskManager Role = "RISK_MANAGER"
	RoleCompliance  Role = "COMPLIANCE"
	RoleAdmin       Role = "ADMIN"
)

var roleRank = map[Role]int{
	RoleViewer:      0,
	RoleTrader:      1,
	RoleRiskManager: 2,
	RoleCompliance:  3,
	RoleAdmin:       4,
}

// AtLeast reports whether the role grants the permissions of required.
func (r Role) AtLeast(required Role) bool {
	rr, ok := roleRank[r]
	if !ok {
		return false
	}
	return rr >= roleRank[required]
}

// Principal is an already-authenticated identity handed to the core by the
// outer layer.
type Principal struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// ————————————————————————————————————————————————————————————————————————
// Error taxonomy
// ————————————————————————————————————————————————————————————————————————

// ValidationError is a permanent error for a malformed order.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order: %s %s", e.Field, e.Reason)
}

// RiskError is the permanent rejection carrying every violated limit.
type RiskError struct {
	Violations []Violation
}

func (e *RiskError) Error() string {
	codes := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		codes[i] = string(v.Code)
	}
	return "risk check failed: " + strings.Join(codes, ", ")
}

// DuplicateError is returned when a submission's idempotency fingerprint is
// already claimed by an earlier order.
type DuplicateError struct {
	OrderID string // the prior order's identifier
}

func (e *DuplicateError) Error() string {
	return "duplicate submission of order " + e.OrderID
}

// ConfigError is an invalid limit update.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid risk config: %s %s", e.Field, e.Reason)
}

// ExecError is a downstream execution failure. Transient failures (timeouts,
// temporary unavailability, rate limits) are eligible for retry; permanent
// failures (business rejections) are not.
type ExecError struct {
	Reason    string
	Transient bool
	Err       error
}

func (e *ExecError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s execution error: %s: %v", kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s execution error: %s", kind, e.Reason)
}

func (e *ExecError) Unwrap() error { return e.Err }

// TransientExecError builds a retryable execution error.
func TransientExecError(reason string, err error) *ExecError {
	return &ExecError{Reason: reason, Transient: true, Err: err}
}

// PermanentExecError builds a non-retryable execution error.
func PermanentExecError(reason string, err error) *ExecError {
	return &ExecError{Reason: reason, Transient: false, Err: err}
}
