// Package pipeline executes approved orders asynchronously.
//
// Approved orders are queued onto a bounded channel and drained by a fixed
// pool of workers. Each worker drives one order at a time through the
// resilience stack:
//
//  1. Idempotency guard: a submission whose fingerprint is claimed by a
//     different order is surfaced as a duplicate and dropped.
//  2. Circuit breaker admission: while the circuit is open the order fails
//     immediately with BREAKER_OPEN and the executor is never invoked.
//  3. Bounded retries: up to MaxAttempts executor calls, each under its own
//     timeout, with exponential backoff between transient failures.
//
// Success emits EXECUTION_COMPLETED, applies the fill to the position book
// and emits POSITION_UPDATED immediately after under the same order id.
// Exhaustion or a permanent rejection emits EXECUTION_FAILED with the final
// reason. No lock is held across an executor call; backoff sleeps are
// cancellable.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arontabacinik/itirp/internal/breaker"
	"github.com/arontabacinik/itirp/internal/eventlog"
	"github.com/arontabacinik/itirp/internal/executor"
	"github.com/arontabacinik/itirp/internal/idempotency"
	"github.com/arontabacinik/itirp/internal/position"
	"github.com/arontabacinik/itirp/pkg/types"
)

// ReasonBreakerOpen is the EXECUTION_FAILED reason when the circuit
// breaker rejects admission.
const ReasonBreakerOpen = "BREAKER_OPEN"

// TransitionFunc lets the order's owner observe pipeline-side lifecycle
// transitions. fill is non-nil only for EXECUTED.
type TransitionFunc func(orderID string, status types.OrderStatus, fill *types.Fill)

// Config tunes the pipeline.
type Config struct {
	Workers        int
	QueueSize      int
	MaxAttempts    int
	AttemptTimeout time.Duration
	// RetryBase scales the exponential backoff: attempt n sleeps
	// RetryBase × 2^(n-1). Defaults to one second.
	RetryBase time.Duration
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 5 * time.Second
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
}

// Pipeline is the asynchronous execution stage.
type Pipeline struct {
	cfg        Config
	exec       executor.Executor
	brk        *breaker.Breaker
	log        *eventlog.Log
	positions  *position.Store
	dedup      *idempotency.Index
	transition TransitionFunc
	logger     *slog.Logger

	queue  chan types.Order
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires a pipeline. transition may be nil.
func New(
	cfg Config,
	exec executor.Executor,
	brk *breaker.Breaker,
	log *eventlog.Log,
	positions *position.Store,
	dedup *idempotency.Index,
	transition TransitionFunc,
	logger *slog.Logger,
) *Pipeline {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		cfg:        cfg,
		exec:       exec,
		brk:        brk,
		log:        log,
		positions:  positions,
		dedup:      dedup,
		transition: transition,
		logger:     logger.With("component", "pipeline"),
		queue:      make(chan types.Order, cfg.QueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the worker pool.
func (p *Pipeline) Start() {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.work()
		}()
	}
}

// Stop cancels in-flight work and waits for the workers to drain.
func (p *Pipeline) Stop() {
	p.cancel()
	p.wg.Wait()
}

// Enqueue hands an approved order to the pipeline. It blocks when the
// queue is full and fails only if the pipeline is shutting down.
func (p *Pipeline) Enqueue(order types.Order) error {
	select {
	case p.queue <- order:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("pipeline stopped: %w", p.ctx.Err())
	}
}

func (p *Pipeline) work() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case order := <-p.queue:
			p.process(order)
		}
	}
}

func (p *Pipeline) process(order types.Order) {
	// Defensive duplicate guard: the coordinator claims the fingerprint
	// before approval, so a foreign claim here means this order lost a
	// race and must not execute.
	fp := idempotency.FingerprintOrder(order)
	if accepted, prior := p.dedup.Claim(fp, order.OrderID); !accepted && prior != order.OrderID {
		p.logger.Warn("duplicate order reached pipeline, dropping",
			"order_id", order.OrderID,
			"prior_order_id", prior,
		)
		return
	}

	p.emit(order, types.ExecutionStartedPayload{MaxAttempts: p.cfg.MaxAttempts})
	p.observe(order.OrderID, types.StatusExecuting, nil)

	if !p.brk.Allow() {
		p.logger.Warn("circuit open, rejecting execution", "order_id", order.OrderID)
		p.fail(order, ReasonBreakerOpen, 0)
		return
	}

	attempts := 0
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		attempts = attempt

		fill, err := p.attempt(order)
		if err == nil {
			p.brk.RecordSuccess()
			p.complete(order, fill, attempts)
			return
		}

		transient := executor.IsTransient(err)
		p.logger.Warn("execution attempt failed",
			"order_id", order.OrderID,
			"attempt", attempt,
			"transient", transient,
			"error", err,
		)

		if !transient || attempt == p.cfg.MaxAttempts {
			p.brk.RecordFailure()
			p.fail(order, err.Error(), attempts)
			return
		}

		// Exponential backoff: base, 2×base, 4×base, …
		backoff := p.cfg.RetryBase << (attempt - 1)
		select {
		case <-p.ctx.Done():
			p.brk.RecordFailure()
			p.fail(order, "pipeline shutdown during retry", attempts)
			return
		case <-time.After(backoff):
		}
	}
}

// attempt runs one executor call under the per-attempt timeout.
func (p *Pipeline) attempt(order types.Order) (types.Fill, error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.AttemptTimeout)
	defer cancel()
	return p.exec.Execute(ctx, order)
}

func (p *Pipeline) complete(order types.Order, fill types.Fill, attempts int) {
	p.emit(order, types.ExecutionCompletedPayload{Fill: fill, Attempts: attempts})

	pos := p.positions.ApplyFill(fill.Symbol, fill.Side, fill.Quantity, fill.Price)
	p.emit(order, types.PositionUpdatedPayload{Position: pos})

	p.observe(order.OrderID, types.StatusExecuted, &fill)

	p.logger.Info("order executed",
		"order_id", order.OrderID,
		"symbol", fill.Symbol,
		"quantity", fill.Quantity,
		"price", fill.Price,
		"attempts", attempts,
	)
}

func (p *Pipeline) fail(order types.Order, reason string, attempts int) {
	p.emit(order, types.ExecutionFailedPayload{Reason: reason, Attempts: attempts})
	p.observe(order.OrderID, types.StatusFailed, nil)
}

// emit appends one lifecycle event. An append failure here is fatal for
// the order's audit trail; it is logged loudly and requires operator
// intervention.
func (p *Pipeline) emit(order types.Order, payload types.EventPayload) {
	_, err := p.log.Append(types.Event{
		Type:          payload.EventKind(),
		CorrelationID: order.CorrelationID,
		OrderID:       order.OrderID,
		UserID:        order.UserID,
		Payload:       payload,
	})
	if err != nil {
		p.logger.Error("FATAL: event append failed, order state undefined",
			"order_id", order.OrderID,
			"event_type", payload.EventKind(),
			"error", err,
		)
	}
}

func (p *Pipeline) observe(orderID string, status types.OrderStatus, fill *types.Fill) {
	if p.transition != nil {
		p.transition(orderID, status, fill)
	}
}
