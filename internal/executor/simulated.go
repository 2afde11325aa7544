package executor

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/arontabacinik/itirp/pkg/types"
)

// Simulated is the default executor: it sleeps for a configurable latency
// and fails with a configurable probability. Fills come back at the
// order's limit price.
type Simulated struct {
	latency     time.Duration
	failureRate float64

	mu  sync.Mutex
	rng *rand.Rand

	now func() time.Time
}

// SimOption configures a Simulated executor.
type SimOption func(*Simulated)

// WithSeed makes the failure sequence deterministic.
func WithSeed(seed int64) SimOption {
	return func(s *Simulated) { s.rng = rand.New(rand.NewSource(seed)) }
}

// WithSimClock injects the time source used to stamp fills.
func WithSimClock(now func() time.Time) SimOption {
	return func(s *Simulated) { s.now = now }
}

// NewSimulated creates a simulated executor. failureRate is the probability
// in [0, 1] that an attempt fails with a transient error.
func NewSimulated(latency time.Duration, failureRate float64, opts ...SimOption) *Simulated {
	s := &Simulated{
		latency:     latency,
		failureRate: failureRate,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute simulates the venue round trip.
func (s *Simulated) Execute(ctx context.Context, order types.Order) (types.Fill, error) {
	if s.latency > 0 {
		select {
		case <-ctx.Done():
			return types.Fill{}, types.TransientExecError("timeout", ctx.Err())
		case <-time.After(s.latency):
		}
	}

	s.mu.Lock()
	failed := s.rng.Float64() < s.failureRate
	s.mu.Unlock()
	if failed {
		return types.Fill{}, types.TransientExecError("venue unavailable", nil)
	}

	return types.Fill{
		OrderID:  order.OrderID,
		Symbol:   order.Symbol,
		Side:     order.Side,
		Quantity: order.Quantity,
		Price:    order.LimitPrice,
		FilledAt: s.now().UTC(),
	}, nil
}
