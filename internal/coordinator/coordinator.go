// Package coordinator drives orders through their lifecycle state machine.
//
// The coordinator is the single writer for order lifecycle events. A
// submission is processed synchronously up to the risk decision: the order
// is validated, claimed against the idempotency index, recorded with
// ORDER_CREATED, and evaluated by the risk engine. The caller gets the
// approval or rejection back immediately; execution happens afterwards on
// the pipeline, which reports its terminal transition back through a
// callback.
//
// Status transitions are validated against the state machine and applied
// under one mutex, so the same order never has two outstanding transitions.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arontabacinik/itirp/internal/eventlog"
	"github.com/arontabacinik/itirp/internal/idempotency"
	"github.com/arontabacinik/itirp/internal/risk"
	"github.com/arontabacinik/itirp/pkg/types"
)

// SubmitRequest is one order submission from an authenticated principal.
type SubmitRequest struct {
	ClientOrderID string          `json:"client_order_id,omitempty"`
	Symbol        string          `json:"symbol"`
	Side          types.Side      `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	LimitPrice    decimal.Decimal `json:"limit_price"`
	Strategy      string          `json:"strategy,omitempty"`
}

// ExecutionQueue is the asynchronous stage approved orders are handed to.
type ExecutionQueue interface {
	Enqueue(order types.Order) error
}

// Coordinator owns the current status of every order.
type Coordinator struct {
	log    *eventlog.Log
	risk   *risk.Engine
	dedup  *idempotency.Index
	queue  ExecutionQueue
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	orders map[string]types.Order
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock injects the time source used for order timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New wires a coordinator.
func New(log *eventlog.Log, riskEngine *risk.Engine, dedup *idempotency.Index, queue ExecutionQueue, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		log:    log,
		risk:   riskEngine,
		dedup:  dedup,
		queue:  queue,
		logger: logger.With("component", "coordinator"),
		now:    time.Now,
		orders: make(map[string]types.Order),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit runs the synchronous half of the order lifecycle and returns the
// order as the caller should see it: APPROVED (execution pending) or
// REJECTED. Rejections also return the matching error from the taxonomy:
// *types.ValidationError, *types.DuplicateError or *types.RiskError. Any
// other error means the audit trail could not be written and the order's
// state is undefined.
func (c *Coordinator) Submit(ctx context.Context, req SubmitRequest, principal types.Principal) (types.Order, error) {
	now := c.now().UTC()
	order := types.Order{
		OrderID:       uuid.NewString(),
		ClientOrderID: req.ClientOrderID,
		CorrelationID: uuid.NewString(),
		Symbol:        req.Symbol,
		Side:          req.Side,
		Quantity:      req.Quantity,
		LimitPrice:    req.LimitPrice,
		UserID:        principal.UserID,
		Strategy:      req.Strategy,
		Status:        types.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := order.Validate(); err != nil {
		return types.Order{}, err
	}

	// Claim before the first event so a duplicate submission leaves no
	// trace: exactly one ORDER_CREATED ever exists per fingerprint.
	fp := idempotency.FingerprintOrder(order)
	if accepted, prior := c.dedup.Claim(fp, order.OrderID); !accepted {
		c.logger.Info("duplicate submission",
			"user_id", principal.UserID,
			"client_order_id", req.ClientOrderID,
			"prior_order_id", prior,
		)
		return types.Order{}, &types.DuplicateError{OrderID: prior}
	}

	c.mu.Lock()
	c.orders[order.OrderID] = order
	c.mu.Unlock()

	if err := c.emit(order, types.OrderCreatedPayload{Order: order}); err != nil {
		// The order never became visible; free the fingerprint so the
		// client can retry.
		c.dedup.Release(fp)
		c.forget(order.OrderID)
		return types.Order{}, err
	}

	order = c.setStatus(order.OrderID, types.StatusRiskCheck, decimal.Decimal{})
	if err := c.emit(order, types.RiskCheckStartedPayload{
		Symbol:   order.Symbol,
		Notional: order.Notional(),
	}); err != nil {
		return types.Order{}, err
	}

	res := c.risk.Check(order)
	if !res.Passed {
		order = c.setStatus(order.OrderID, types.StatusRejected, decimal.Decimal{})
		if err := c.emit(order, types.RiskCheckFailedPayload{Violations: res.Violations}); err != nil {
			return types.Order{}, err
		}
		c.logger.Info("order rejected",
			"order_id", order.OrderID,
			"symbol", order.Symbol,
			"violations", len(res.Violations),
		)
		return order, &types.RiskError{Violations: res.Violations}
	}

	order = c.setStatus(order.OrderID, types.StatusApproved, decimal.Decimal{})
	if err := c.emit(order, types.RiskCheckPassedPayload{
		Notional:    order.Notional(),
		DailyVolume: c.risk.DailyVolume(),
	}); err != nil {
		return types.Order{}, err
	}

	c.logger.Info("order approved",
		"order_id", order.OrderID,
		"symbol", order.Symbol,
		"side", order.Side,
		"notional", order.Notional(),
	)

	// Asynchronous from here: the caller's response is the APPROVED
	// snapshot, execution events land after it returns.
	if err := c.queue.Enqueue(order); err != nil {
		return order, fmt.Errorf("enqueue order %s: %w", order.OrderID, err)
	}
	return order, nil
}

// Get returns the current snapshot of an order.
func (c *Coordinator) Get(orderID string) (types.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	order, ok := c.orders[orderID]
	return order, ok
}

// OnExecutionTransition is the pipeline's callback for post-approval
// transitions (EXECUTING, then EXECUTED or FAILED).
func (c *Coordinator) OnExecutionTransition(orderID string, status types.OrderStatus, fill *types.Fill) {
	filled := decimal.Decimal{}
	if fill != nil {
		filled = fill.Price
	}
	c.setStatus(orderID, status, filled)
}

// setStatus applies a transition under the map lock, enforcing the state
// machine. An illegal transition is a programming error and is logged at
// error level without mutating the order.
func (c *Coordinator) setStatus(orderID string, next types.OrderStatus, filledPrice decimal.Decimal) types.Order {
	c.mu.Lock()
	defer c.mu.Unlock()

	order, ok := c.orders[orderID]
	if !ok {
		c.logger.Error("transition for unknown order", "order_id", orderID, "status", next)
		return types.Order{}
	}
	if !order.Status.CanTransitionTo(next) {
		c.logger.Error("illegal status transition",
			"order_id", orderID,
			"from", order.Status,
			"to", next,
		)
		return order
	}

	order.Status = next
	order.UpdatedAt = c.now().UTC()
	if !filledPrice.IsZero() {
		order.FilledPrice = filledPrice
	}
	c.orders[orderID] = order
	return order
}

func (c *Coordinator) forget(orderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.orders, orderID)
}

func (c *Coordinator) emit(order types.Order, payload types.EventPayload) error {
	_, err := c.log.Append(types.Event{
		Type:          payload.EventKind(),
		CorrelationID: order.CorrelationID,
		OrderID:       order.OrderID,
		UserID:        order.UserID,
		Payload:       payload,
	})
	if err != nil {
		c.logger.Error("FATAL: event append failed, order state undefined",
			"order_id", order.OrderID,
			"event_type", payload.EventKind(),
			"error", err,
		)
		return fmt.Errorf("append %s: %w", payload.EventKind(), err)
	}
	return nil
}
