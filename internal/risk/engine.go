// Package risk implements the pre-trade gate every order passes before it
// may reach the market.
//
// The engine evaluates the configured limits against a projection of the
// live position book with the candidate order applied at its limit price:
//
//   - Kill switch:   operator override, rejects everything, short-circuits
//   - Position size: caps absolute projected notional in any single symbol
//   - Daily volume:  caps the sum of approved notionals per UTC day
//   - Net exposure:  caps the absolute sum of signed notionals
//   - Gross exposure: caps the sum of absolute notionals
//
// Checks run in that fixed order and accumulate every violation before
// returning; only the kill switch stops evaluation early. A passing check
// accrues the order's notional into the daily volume counter inside the
// same critical section, so two concurrent approvals can never both observe
// the pre-increment counter.
//
// The engine is the sole owner of the risk configuration and the kill
// switch; both mutate only through its API, and every mutation appends an
// audit event.
package risk

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arontabacinik/itirp/internal/eventlog"
	"github.com/arontabacinik/itirp/pkg/types"
)

// ErrEmptyActor is returned when a configuration mutation arrives without
// an attributable user identity.
var ErrEmptyActor = errors.New("risk: actor must not be empty")

// PositionView is the read-side of the position book the engine projects
// orders onto.
type PositionView interface {
	Snapshot() map[string]types.Position
}

// CheckResult is the outcome of one pre-trade evaluation.
type CheckResult struct {
	Passed     bool
	Violations []types.Violation
}

// Metrics is the aggregate risk state exposed for dashboards and the API.
type Metrics struct {
	NetExposure   decimal.Decimal  `json:"net_exposure"`
	GrossExposure decimal.Decimal  `json:"gross_exposure"`
	DailyVolume   decimal.Decimal  `json:"daily_volume"`
	Limits        types.RiskLimits `json:"limits"`
	PositionCount int              `json:"position_count"`
}

// Engine evaluates orders against the configured limits.
type Engine struct {
	positions PositionView
	log       *eventlog.Log
	logger    *slog.Logger

	// mu guards limits, the kill switch, and the daily volume counter.
	// Grouping the volume counter with the configuration keeps the
	// rollover check and the post-approval increment in one critical
	// section.
	mu          sync.Mutex
	limits      types.RiskLimits
	dailyVolume decimal.Decimal
	volumeDate  string // UTC date the counter belongs to, "2006-01-02"

	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects the time source used for daily volume rollover.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a risk engine with the given starting limits.
func NewEngine(limits types.RiskLimits, positions PositionView, log *eventlog.Log, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		positions: positions,
		log:       log,
		logger:    logger.With("component", "risk"),
		limits:    limits,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.volumeDate = e.now().UTC().Format("2006-01-02")
	return e
}

// Check evaluates the order against all limits. Violations accumulate in
// the documented order; the kill switch short-circuits with a single
// violation. On a pass, the order's notional is accrued into today's
// volume counter before the lock is released.
func (e *Engine) Check(order types.Order) CheckResult {
	notional := order.Notional()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.rolloverLocked()

	if e.limits.KillSwitchEnabled {
		return CheckResult{Violations: []types.Violation{{
			Code: types.ViolationKillSwitch,
		}}}
	}

	var violations []types.Violation

	snap := e.positions.Snapshot()

	// Projected notional in the order's symbol.
	symbolNotional := order.SignedNotional()
	if pos, ok := snap[order.Symbol]; ok {
		symbolNotional = symbolNotional.Add(pos.SignedNotional())
	}
	if symbolNotional.Abs().GreaterThan(e.limits.MaxPositionSize) {
		violations = append(violations, types.Violation{
			Code:     types.ViolationPositionLimit,
			Observed: symbolNotional.Abs(),
			Limit:    e.limits.MaxPositionSize,
		})
	}

	if projected := e.dailyVolume.Add(notional); projected.GreaterThan(e.limits.MaxDailyVolume) {
		violations = append(violations, types.Violation{
			Code:     types.ViolationDailyVolumeLimit,
			Observed: projected,
			Limit:    e.limits.MaxDailyVolume,
		})
	}

	// Project the whole book with this order applied at its limit price.
	net := order.SignedNotional()
	gross := decimal.Zero
	for sym, pos := range snap {
		if sym == order.Symbol {
			continue
		}
		net = net.Add(pos.SignedNotional())
		gross = gross.Add(pos.SignedNotional().Abs())
	}
	if pos, ok := snap[order.Symbol]; ok {
		net = net.Add(pos.SignedNotional())
	}
	gross = gross.Add(symbolNotional.Abs())

	if net.Abs().GreaterThan(e.limits.MaxNetExposure) {
		violations = append(violations, types.Violation{
			Code:     types.ViolationNetExposureLimit,
			Observed: net.Abs(),
			Limit:    e.limits.MaxNetExposure,
		})
	}
	if gross.GreaterThan(e.limits.MaxGrossExposure) {
		violations = append(violations, types.Violation{
			Code:     types.ViolationGrossExposure,
			Observed: gross,
			Limit:    e.limits.MaxGrossExposure,
		})
	}

	if len(violations) > 0 {
		return CheckResult{Violations: violations}
	}

	// Approval and accrual share the critical section: a concurrent Check
	// entering after we release the lock sees the incremented counter.
	e.dailyVolume = e.dailyVolume.Add(notional)
	return CheckResult{Passed: true}
}

// UpdateLimits validates and atomically replaces the configuration,
// attributing the change to actor.
func (e *Engine) UpdateLimits(limits types.RiskLimits, actor string) error {
	if actor == "" {
		return ErrEmptyActor
	}
	if err := limits.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	// The kill switch is owned by SetKillSwitch; a limit update never
	// flips it.
	limits.KillSwitchEnabled = e.limits.KillSwitchEnabled
	e.limits = limits
	e.mu.Unlock()

	e.logger.Info("risk limits updated",
		"actor", actor,
		"max_position_size", limits.MaxPositionSize,
		"max_daily_volume", limits.MaxDailyVolume,
		"max_net_exposure", limits.MaxNetExposure,
		"max_gross_exposure", limits.MaxGrossExposure,
	)

	_, err := e.log.Append(types.Event{
		Type:          types.EventRiskConfigUpdated,
		CorrelationID: uuid.NewString(),
		UserID:        actor,
		Payload:       types.RiskConfigUpdatedPayload{Limits: limits, Actor: actor},
	})
	if err != nil {
		return fmt.Errorf("append config event: %w", err)
	}
	return nil
}

// SetKillSwitch atomically flips the override. Every call appends one
// event, even when the state does not change.
func (e *Engine) SetKillSwitch(enabled bool, actor string) error {
	if actor == "" {
		return ErrEmptyActor
	}

	e.mu.Lock()
	e.limits.KillSwitchEnabled = enabled
	e.mu.Unlock()

	if enabled {
		e.logger.Warn("KILL SWITCH ENABLED", "actor", actor)
	} else {
		e.logger.Info("kill switch disabled", "actor", actor)
	}

	_, err := e.log.Append(types.Event{
		Type:          types.EventKillSwitchToggled,
		CorrelationID: uuid.NewString(),
		UserID:        actor,
		Payload:       types.KillSwitchToggledPayload{Enabled: enabled, Actor: actor},
	})
	if err != nil {
		return fmt.Errorf("append kill switch event: %w", err)
	}
	return nil
}

// Metrics returns the current aggregate risk state.
func (e *Engine) Metrics() Metrics {
	snap := e.positions.Snapshot()

	net := decimal.Zero
	gross := decimal.Zero
	for _, pos := range snap {
		net = net.Add(pos.SignedNotional())
		gross = gross.Add(pos.SignedNotional().Abs())
	}

	e.mu.Lock()
	e.rolloverLocked()
	m := Metrics{
		NetExposure:   net,
		GrossExposure: gross,
		DailyVolume:   e.dailyVolume,
		Limits:        e.limits,
		PositionCount: len(snap),
	}
	e.mu.Unlock()
	return m
}

// Limits returns a copy of the active configuration.
func (e *Engine) Limits() types.RiskLimits {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.limits
}

// DailyVolume returns today's accrued notional.
func (e *Engine) DailyVolume() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rolloverLocked()
	return e.dailyVolume
}

// rolloverLocked resets the counter when the UTC date has changed since it
// last accrued. Caller holds e.mu.
func (e *Engine) rolloverLocked() {
	today := e.now().UTC().Format("2006-01-02")
	if e.volumeDate != today {
		e.logger.Info("daily volume rollover",
			"previous_date", e.volumeDate,
			"previous_volume", e.dailyVolume,
		)
		e.volumeDate = today
		e.dailyVolume = decimal.Zero
	}
}
