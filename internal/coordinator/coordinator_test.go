package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arontabacinik/itirp/internal/breaker"
	"github.com/arontabacinik/itirp/internal/eventlog"
	"github.com/arontabacinik/itirp/internal/executor"
	"github.com/arontabacinik/itirp/internal/idempotency"
	"github.com/arontabacinik/itirp/internal/pipeline"
	"github.com/arontabacinik/itirp/internal/position"
	"github.com/arontabacinik/itirp/internal/risk"
	"github.com/arontabacinik/itirp/pkg/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func bigLimits() types.RiskLimits {
	return types.RiskLimits{
		MaxPositionSize:  dec("1000000"),
		MaxDailyVolume:   dec("1000000000"),
		MaxNetExposure:   dec("1000000000"),
		MaxGrossExposure: dec("1000000000"),
	}
}

type stack struct {
	coord     *Coordinator
	log       *eventlog.Log
	risk      *risk.Engine
	positions *position.Store
	pipe      *pipeline.Pipeline
}

// newStack wires the full core with the given executor, mirroring the
// composition root.
func newStack(t *testing.T, limits types.RiskLimits, exec executor.Executor) *stack {
	t.Helper()

	logger := testLogger()
	log := eventlog.New(4096)
	positions := position.NewStore()
	riskEngine := risk.NewEngine(limits, positions, log, logger)
	dedup := idempotency.NewIndex()
	brk := breaker.New(5, time.Minute, logger)

	var coord *Coordinator
	pipe := pipeline.New(
		pipeline.Config{
			Workers:        2,
			MaxAttempts:    3,
			AttemptTimeout: time.Second,
			RetryBase:      time.Millisecond,
		},
		exec, brk, log, positions, dedup,
		func(orderID string, status types.OrderStatus, fill *types.Fill) {
			coord.OnExecutionTransition(orderID, status, fill)
		},
		logger,
	)
	coord = New(log, riskEngine, dedup, pipe, logger)

	pipe.Start()
	t.Cleanup(pipe.Stop)

	return &stack{coord: coord, log: log, risk: riskEngine, positions: positions, pipe: pipe}
}

func trader() types.Principal {
	return types.Principal{UserID: "trader-1", Role: types.RoleTrader}
}

// waitTerminal polls until the order reaches a terminal status.
func waitTerminal(t *testing.T, c *Coordinator, orderID string) types.Order {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if order, ok := c.Get(orderID); ok && order.Status.Terminal() {
			return order
		}
		time.Sleep(5 * time.Millisecond)
	}
	order, _ := c.Get(orderID)
	t.Fatalf("order %s never reached a terminal status (stuck at %s)", orderID, order.Status)
	return types.Order{}
}

func eventTypes(events []types.Event) []types.EventType {
	out := make([]types.EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestHappyPathBuy(t *testing.T) {
	t.Parallel()

	s := newStack(t, bigLimits(), executor.NewSimulated(0, 0))

	order, err := s.coord.Submit(context.Background(), SubmitRequest{
		Symbol:     "AAPL",
		Side:       types.BUY,
		Quantity:   dec("100"),
		LimitPrice: dec("150.50"),
	}, trader())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if order.Status != types.StatusApproved {
		t.Fatalf("synchronous status = %s, want APPROVED", order.Status)
	}

	final := waitTerminal(t, s.coord, order.OrderID)
	if final.Status != types.StatusExecuted {
		t.Fatalf("terminal status = %s, want EXECUTED", final.Status)
	}
	if !final.FilledPrice.Equal(dec("150.50")) {
		t.Errorf("filled price = %s, want 150.50", final.FilledPrice)
	}

	want := []types.EventType{
		types.EventOrderCreated,
		types.EventRiskCheckStarted,
		types.EventRiskCheckPassed,
		types.EventExecutionStarted,
		types.EventExecutionCompleted,
		types.EventPositionUpdated,
	}
	got := eventTypes(s.log.ByOrder(order.OrderID))
	if len(got) != len(want) {
		t.Fatalf("event chain = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event chain = %v, want %v", got, want)
		}
	}

	pos, ok := s.positions.Position("AAPL")
	if !ok {
		t.Fatal("no AAPL position after execution")
	}
	if !pos.Quantity.Equal(dec("100")) || !pos.AveragePrice.Equal(dec("150.50")) {
		t.Errorf("position = %s @ %s, want 100 @ 150.50", pos.Quantity, pos.AveragePrice)
	}
	if got := s.risk.DailyVolume(); !got.Equal(dec("15050")) {
		t.Errorf("daily volume = %s, want 15050", got)
	}
}

func TestPositionLimitRejection(t *testing.T) {
	t.Parallel()

	s := newStack(t, bigLimits(), executor.NewSimulated(0, 0))

	order, err := s.coord.Submit(context.Background(), SubmitRequest{
		Symbol:     "TSLA",
		Side:       types.BUY,
		Quantity:   dec("100000"),
		LimitPrice: dec("200"),
	}, trader())

	var riskErr *types.RiskError
	if !errors.As(err, &riskErr) {
		t.Fatalf("Submit() error = %v, want *types.RiskError", err)
	}
	if len(riskErr.Violations) != 1 || riskErr.Violations[0].Code != types.ViolationPositionLimit {
		t.Fatalf("violations = %v, want [POSITION_LIMIT]", riskErr.Violations)
	}
	if order.Status != types.StatusRejected {
		t.Errorf("status = %s, want REJECTED", order.Status)
	}

	want := []types.EventType{
		types.EventOrderCreated,
		types.EventRiskCheckStarted,
		types.EventRiskCheckFailed,
	}
	got := eventTypes(s.log.ByOrder(order.OrderID))
	if len(got) != len(want) {
		t.Fatalf("event chain = %v, want %v (no EXECUTION_* events)", got, want)
	}
	if got := s.risk.DailyVolume(); !got.IsZero() {
		t.Errorf("daily volume = %s after rejection, want 0", got)
	}
}

func TestKillSwitchGate(t *testing.T) {
	t.Parallel()

	s := newStack(t, bigLimits(), executor.NewSimulated(0, 0))
	if err := s.risk.SetKillSwitch(true, "ops"); err != nil {
		t.Fatalf("SetKillSwitch() error = %v", err)
	}

	_, err := s.coord.Submit(context.Background(), SubmitRequest{
		Symbol:     "AAPL",
		Side:       types.BUY,
		Quantity:   dec("1"),
		LimitPrice: dec("1"),
	}, trader())

	var riskErr *types.RiskError
	if !errors.As(err, &riskErr) {
		t.Fatalf("Submit() error = %v, want *types.RiskError", err)
	}
	if len(riskErr.Violations) != 1 || riskErr.Violations[0].Code != types.ViolationKillSwitch {
		t.Fatalf("violations = %v, want [KILL_SWITCH_ACTIVE] only", riskErr.Violations)
	}
}

func TestIdempotentDuplicate(t *testing.T) {
	t.Parallel()

	s := newStack(t, bigLimits(), executor.NewSimulated(0, 0))
	req := SubmitRequest{
		ClientOrderID: "k1",
		Symbol:        "AAPL",
		Side:          types.BUY,
		Quantity:      dec("100"),
		LimitPrice:    dec("150"),
	}

	first, err := s.coord.Submit(context.Background(), req, trader())
	if err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}

	_, err = s.coord.Submit(context.Background(), req, trader())
	var dup *types.DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("second Submit() error = %v, want *types.DuplicateError", err)
	}
	if dup.OrderID != first.OrderID {
		t.Errorf("duplicate references %s, want %s", dup.OrderID, first.OrderID)
	}

	// Exactly one ORDER_CREATED exists for (user, k1).
	waitTerminal(t, s.coord, first.OrderID)
	created := s.log.ByType(types.EventOrderCreated, time.Time{}, time.Time{})
	if len(created) != 1 {
		t.Errorf("got %d ORDER_CREATED events, want 1", len(created))
	}
}

func TestDifferentClientKeysDoNotCollide(t *testing.T) {
	t.Parallel()

	s := newStack(t, bigLimits(), executor.NewSimulated(0, 0))
	req := SubmitRequest{
		ClientOrderID: "k1",
		Symbol:        "AAPL",
		Side:          types.BUY,
		Quantity:      dec("100"),
		LimitPrice:    dec("150"),
	}
	if _, err := s.coord.Submit(context.Background(), req, trader()); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	req.ClientOrderID = "k2"
	if _, err := s.coord.Submit(context.Background(), req, trader()); err != nil {
		t.Fatalf("Submit() with fresh key error = %v", err)
	}
}

func TestValidationErrors(t *testing.T) {
	t.Parallel()

	s := newStack(t, bigLimits(), executor.NewSimulated(0, 0))

	tests := []struct {
		name string
		req  SubmitRequest
	}{
		{"zero quantity", SubmitRequest{Symbol: "AAPL", Side: types.BUY, Quantity: dec("0"), LimitPrice: dec("1")}},
		{"unknown side", SubmitRequest{Symbol: "AAPL", Side: "HOLD", Quantity: dec("1"), LimitPrice: dec("1")}},
		{"negative price", SubmitRequest{Symbol: "AAPL", Side: types.BUY, Quantity: dec("1"), LimitPrice: dec("-1")}},
		{"empty symbol", SubmitRequest{Side: types.BUY, Quantity: dec("1"), LimitPrice: dec("1")}},
	}
	for _, tt := range tests {
		_, err := s.coord.Submit(context.Background(), tt.req, trader())
		var verr *types.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%s: error = %v, want *types.ValidationError", tt.name, err)
		}
	}
	// Malformed orders leave no events behind.
	if got := s.log.Len(); got != 0 {
		t.Errorf("log has %d events after validation failures, want 0", got)
	}
}

func TestExecutionFailureChain(t *testing.T) {
	t.Parallel()

	s := newStack(t, bigLimits(), executor.NewSimulated(0, 1.0))

	order, err := s.coord.Submit(context.Background(), SubmitRequest{
		Symbol:     "AAPL",
		Side:       types.BUY,
		Quantity:   dec("100"),
		LimitPrice: dec("150"),
	}, trader())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if order.Status != types.StatusApproved {
		t.Fatalf("synchronous status = %s, want APPROVED", order.Status)
	}

	final := waitTerminal(t, s.coord, order.OrderID)
	if final.Status != types.StatusFailed {
		t.Fatalf("terminal status = %s, want FAILED", final.Status)
	}

	got := eventTypes(s.log.ByOrder(order.OrderID))
	want := []types.EventType{
		types.EventOrderCreated,
		types.EventRiskCheckStarted,
		types.EventRiskCheckPassed,
		types.EventExecutionStarted,
		types.EventExecutionFailed,
	}
	if len(got) != len(want) {
		t.Fatalf("event chain = %v, want %v", got, want)
	}
	// Daily volume counts approved notionals regardless of execution
	// outcome.
	if got := s.risk.DailyVolume(); !got.Equal(dec("15000")) {
		t.Errorf("daily volume = %s, want 15000", got)
	}
}

func TestReplayReproducesFinalState(t *testing.T) {
	t.Parallel()

	s := newStack(t, bigLimits(), executor.NewSimulated(0, 0))

	order, err := s.coord.Submit(context.Background(), SubmitRequest{
		Symbol:     "AAPL",
		Side:       types.BUY,
		Quantity:   dec("100"),
		LimitPrice: dec("150.50"),
	}, trader())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	final := waitTerminal(t, s.coord, order.OrderID)

	res, err := Replay(s.log.ByCorrelation(order.CorrelationID))
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if res.Status != final.Status {
		t.Errorf("replayed status = %s, live status = %s", res.Status, final.Status)
	}
	if res.Fill == nil {
		t.Fatal("replay lost the fill")
	}
	if !res.Fill.Quantity.Equal(dec("100")) || !res.Fill.Price.Equal(dec("150.50")) {
		t.Errorf("replayed fill = %s @ %s, want 100 @ 150.50", res.Fill.Quantity, res.Fill.Price)
	}
}

func TestReplayRejectsCorruptChain(t *testing.T) {
	t.Parallel()

	events := []types.Event{
		{Type: types.EventOrderCreated},
		{Type: types.EventExecutionCompleted}, // skips the risk gate
	}
	if _, err := Replay(events); err == nil {
		t.Error("Replay() accepted an illegal chain")
	}
}
