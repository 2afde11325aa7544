package types

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestStatusTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from OrderStatus
		to   OrderStatus
		want bool
	}{
		{StatusPending, StatusRiskCheck, true},
		{StatusRiskCheck, StatusApproved, true},
		{StatusRiskCheck, StatusRejected, true},
		{StatusApproved, StatusExecuting, true},
		{StatusExecuting, StatusExecuted, true},
		{StatusExecuting, StatusFailed, true},
		{StatusApproved, StatusPending, false}, // no backward transition
		{StatusExecuted, StatusFailed, false},  // terminal
		{StatusRejected, StatusRiskCheck, false},
		{StatusPending, StatusApproved, false}, // must pass through RISK_CHECK
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("CanTransitionTo(%s → %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	terminal := []OrderStatus{StatusRejected, StatusExecuted, StatusFailed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
	for _, s := range []OrderStatus{StatusPending, StatusRiskCheck, StatusApproved, StatusExecuting} {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
	}
}

func TestOrderValidate(t *testing.T) {
	t.Parallel()

	valid := Order{
		Symbol:     "AAPL",
		Side:       BUY,
		Quantity:   decimal.NewFromInt(100),
		LimitPrice: decimal.NewFromFloat(150.50),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}

	tests := []struct {
		name   string
		mutate func(*Order)
	}{
		{"empty symbol", func(o *Order) { o.Symbol = "  " }},
		{"unknown side", func(o *Order) { o.Side = "HOLD" }},
		{"zero quantity", func(o *Order) { o.Quantity = decimal.Zero }},
		{"negative quantity", func(o *Order) { o.Quantity = decimal.NewFromInt(-1) }},
		{"negative price", func(o *Order) { o.LimitPrice = decimal.NewFromInt(-1) }},
	}
	for _, tt := range tests {
		o := valid
		tt.mutate(&o)
		var verr *ValidationError
		err := o.Validate()
		if err == nil {
			t.Errorf("%s: Validate() = nil, want error", tt.name)
			continue
		}
		if !errors.As(err, &verr) {
			t.Errorf("%s: Validate() = %T, want *ValidationError", tt.name, err)
		}
	}
}

func TestSignedNotional(t *testing.T) {
	t.Parallel()

	buy := Order{Side: BUY, Quantity: decimal.NewFromInt(100), LimitPrice: decimal.NewFromFloat(150.50)}
	if got := buy.SignedNotional(); !got.Equal(decimal.NewFromInt(15050)) {
		t.Errorf("BUY signed notional = %s, want 15050", got)
	}

	sell := Order{Side: SELL, Quantity: decimal.NewFromInt(100), LimitPrice: decimal.NewFromFloat(150.50)}
	if got := sell.SignedNotional(); !got.Equal(decimal.NewFromInt(-15050)) {
		t.Errorf("SELL signed notional = %s, want -15050", got)
	}
}

func TestRiskLimitsValidate(t *testing.T) {
	t.Parallel()

	ok := RiskLimits{
		MaxPositionSize:  decimal.NewFromInt(1_000_000),
		MaxDailyVolume:   decimal.NewFromInt(10_000_000),
		MaxNetExposure:   decimal.NewFromInt(5_000_000),
		MaxGrossExposure: decimal.NewFromInt(10_000_000),
	}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}

	bad := ok
	bad.MaxNetExposure = decimal.NewFromInt(-1)
	if err := bad.Validate(); err == nil {
		t.Error("Validate() = nil for negative limit, want error")
	}
}

func TestRoleAtLeast(t *testing.T) {
	t.Parallel()

	tests := []struct {
		role     Role
		required Role
		want     bool
	}{
		{RoleTrader, RoleTrader, true},
		{RoleViewer, RoleTrader, false},
		{RoleRiskManager, RoleTrader, true},
		{RoleTrader, RoleRiskManager, false},
		{RoleCompliance, RoleCompliance, true},
		{RoleAdmin, RoleCompliance, true},
		{Role("bogus"), RoleViewer, false},
	}
	for _, tt := range tests {
		if got := tt.role.AtLeast(tt.required); got != tt.want {
			t.Errorf("%s.AtLeast(%s) = %v, want %v", tt.role, tt.required, got, tt.want)
		}
	}
}

func TestPayloadKinds(t *testing.T) {
	t.Parallel()

	payloads := []EventPayload{
		OrderCreatedPayload{},
		RiskCheckStartedPayload{},
		RiskCheckPassedPayload{},
		RiskCheckFailedPayload{},
		ExecutionStartedPayload{},
		ExecutionCompletedPayload{},
		ExecutionFailedPayload{},
		RiskConfigUpdatedPayload{},
		KillSwitchToggledPayload{},
		PositionUpdatedPayload{},
	}
	seen := make(map[EventType]bool)
	for _, p := range payloads {
		kind := p.EventKind()
		if seen[kind] {
			t.Errorf("duplicate payload kind %s", kind)
		}
		seen[kind] = true
	}
	if len(seen) != 10 {
		t.Errorf("got %d distinct payload kinds, want 10", len(seen))
	}
}
