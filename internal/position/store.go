// Package position materializes executed fills into per-symbol positions.
//
// The store is the only component allowed to mutate positions; every
// mutation happens in response to a completed execution. Quantity is signed
// (long positive, short negative) and the average price is weighted over the
// absolute quantity accumulated on the current side:
//
//   - New position: quantity = ±q, average price = fill price.
//   - Same-direction add: average price reweighted, quantity grows.
//   - Opposite-direction reduce: quantity shrinks, average price unchanged.
//   - Sign cross: the residual opens a fresh position on the other side at
//     the fill price.
//   - Reduce to exactly zero: the row stays with quantity 0 and average
//     price set to the fill price, so the next fill of either side opens
//     cleanly.
//
// Each symbol has its own mutex so unrelated symbols never contend. Fills
// also hold a coarse lock in shared mode, and Snapshot takes that lock
// exclusively to guarantee a consistent point-in-time copy.
package position

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arontabacinik/itirp/pkg/types"
)

type entry struct {
	mu  sync.Mutex
	pos types.Position
}

// Store holds the live position book.
type Store struct {
	// mu guards the symbols map. Fills hold it shared, Snapshot holds it
	// exclusive so the copy is point-in-time consistent.
	mu      sync.RWMutex
	symbols map[string]*entry
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock injects the time source used for LastUpdate stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty position book.
func NewStore(opts ...Option) *Store {
	s := &Store{
		symbols: make(map[string]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ApplyFill folds one fill into the symbol's position and returns the
// resulting position snapshot. Fills on different symbols proceed
// concurrently; fills on one symbol serialize on its mutex.
func (s *Store) ApplyFill(symbol string, side types.Side, quantity, price decimal.Decimal) types.Position {
	e := s.entry(symbol)

	// The shared read lock keeps Snapshot (which takes the write lock)
	// from observing a half-applied book.
	s.mu.RLock()
	defer s.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	signed := quantity
	if side == types.SELL {
		signed = quantity.Neg()
	}

	pos := e.pos
	switch {
	case pos.Quantity.IsZero():
		// Flat (or brand new): the fill opens the position.
		pos.Quantity = signed
		pos.AveragePrice = price

	case pos.Quantity.Sign() == signed.Sign():
		// Same-direction add: reweight the average over absolute quantity.
		absQty := pos.Quantity.Abs()
		weighted := absQty.Mul(pos.AveragePrice).Add(quantity.Mul(price))
		pos.AveragePrice = weighted.Div(absQty.Add(quantity))
		pos.Quantity = pos.Quantity.Add(signed)

	default:
		// Opposite direction: reduce, and open the residual on the other
		// side if the fill crosses through zero.
		remaining := pos.Quantity.Add(signed)
		switch remaining.Sign() {
		case pos.Quantity.Sign():
			// Partial reduce, average entry unchanged.
			pos.Quantity = remaining
		case 0:
			pos.Quantity = decimal.Zero
			pos.AveragePrice = price
		default:
			pos.Quantity = remaining
			pos.AveragePrice = price
		}
	}

	pos.Symbol = symbol
	pos.LastPrice = price
	pos.LastUpdate = s.now().UTC()
	e.pos = pos
	return pos
}

// Position returns the symbol's position and whether one exists.
func (s *Store) Position(symbol string) (types.Position, bool) {
	s.mu.RLock()
	e, ok := s.symbols[symbol]
	s.mu.RUnlock()
	if !ok {
		return types.Position{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos, true
}

// Snapshot returns a consistent point-in-time copy of every position. The
// coarse write lock excludes all in-flight fills for the duration of the
// copy.
func (s *Store) Snapshot() map[string]types.Position {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]types.Position, len(s.symbols))
	for sym, e := range s.symbols {
		out[sym] = e.pos
	}
	return out
}

func (s *Store) entry(symbol string) *entry {
	s.mu.RLock()
	e, ok := s.symbols[symbol]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.symbols[symbol]; ok {
		return e
	}
	e = &entry{pos: types.Position{Symbol: symbol}}
	s.symbols[symbol] = e
	return e
}
