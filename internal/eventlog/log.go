// Package eventlog implements the append-only audit journal.
//
// The log is the single source of truth for reconstructing order and
// position state. Every lifecycle transition in the system appends exactly
// one event here, and every event carries the correlation identifier of the
// user action it arose from, so a full causal chain can be read back with
// ByCorrelation.
//
// Three index structures are maintained on append: by correlation id, by
// order id, and by event type. Timestamps are strictly increasing across
// the whole log; when the wall clock has not advanced since the previous
// append, the new timestamp is bumped by one microsecond. This makes append
// order and timestamp order identical, so cross-chain ties never occur.
//
// The default deployment is memory-only with a bounded capacity. A Store
// can be plugged to make appends durable; the write happens under the
// append lock, before the event becomes visible to queries.
package eventlog

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arontabacinik/itirp/pkg/types"
)

// ErrLogFull is returned when the journal has reached its configured
// capacity. Appends past capacity are rejected rather than evicting history.
var ErrLogFull = errors.New("event log full")

// Store persists events appended to the log. Implementations must preserve
// append order and every event field losslessly.
type Store interface {
	SaveEvent(ev types.Event) error
}

// Log is the append-only, correlation-indexed journal.
type Log struct {
	mu            sync.RWMutex
	events        []types.Event
	byCorrelation map[string][]int
	byOrder       map[string][]int
	byType        map[types.EventType][]int
	capacity      int
	lastTS        time.Time
	now           func() time.Time
	store         Store

	subsMu sync.RWMutex
	subs   []chan types.Event
}

// Option configures a Log.
type Option func(*Log)

// WithClock injects the time source. The log enforces strict monotonicity
// itself, so the clock does not need to be monotonic.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// WithStore plugs a persistence adapter. Append returns only after the
// adapter write succeeds.
func WithStore(store Store) Option {
	return func(l *Log) { l.store = store }
}

// New creates a journal bounded to capacity events.
func New(capacity int, opts ...Option) *Log {
	l := &Log{
		byCorrelation: make(map[string][]int),
		byOrder:       make(map[string][]int),
		byType:        make(map[types.EventType][]int),
		capacity:      capacity,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append assigns the event id and a strictly increasing timestamp, records
// the event, and returns the stamped copy. The append is visible to every
// subsequent query as soon as Append returns.
func (l *Log) Append(ev types.Event) (types.Event, error) {
	l.mu.Lock()

	if len(l.events) >= l.capacity {
		l.mu.Unlock()
		return types.Event{}, ErrLogFull
	}

	ts := l.now().UTC().Truncate(time.Microsecond)
	if !ts.After(l.lastTS) {
		ts = l.lastTS.Add(time.Microsecond)
	}
	l.lastTS = ts

	ev.EventID = uuid.NewString()
	ev.Timestamp = ts

	if l.store != nil {
		if err := l.store.SaveEvent(ev); err != nil {
			// Roll the clock reservation back so the failed append leaves
			// no trace.
			l.lastTS = ts.Add(-time.Microsecond)
			l.mu.Unlock()
			return types.Event{}, fmt.Errorf("persist event: %w", err)
		}
	}

	idx := len(l.events)
	l.events = append(l.events, ev)
	if ev.CorrelationID != "" {
		l.byCorrelation[ev.CorrelationID] = append(l.byCorrelation[ev.CorrelationID], idx)
	}
	if ev.OrderID != "" {
		l.byOrder[ev.OrderID] = append(l.byOrder[ev.OrderID], idx)
	}
	l.byType[ev.Type] = append(l.byType[ev.Type], idx)

	l.mu.Unlock()

	l.notify(ev)
	return ev, nil
}

// ByCorrelation returns all events of one correlation chain in append order.
func (l *Log) ByCorrelation(correlationID string) []types.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.collect(l.byCorrelation[correlationID])
}

// ByOrder returns all events for one order in append order.
func (l *Log) ByOrder(orderID string) []types.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.collect(l.byOrder[orderID])
}

// ByType returns events of one type whose timestamps fall in [since, until],
// in append order. Zero bounds are open.
func (l *Log) ByType(t types.EventType, since, until time.Time) []types.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []types.Event
	for _, idx := range l.byType[t] {
		ev := l.events[idx]
		if !since.IsZero() && ev.Timestamp.Before(since) {
			continue
		}
		if !until.IsZero() && ev.Timestamp.After(until) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Recent returns up to limit events, newest first.
func (l *Log) Recent(limit int) []types.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > len(l.events) {
		limit = len(l.events)
	}
	out := make([]types.Event, limit)
	for i := 0; i < limit; i++ {
		out[i] = l.events[len(l.events)-1-i]
	}
	return out
}

// Len returns the number of recorded events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Restore bulk-loads previously persisted events, preserving their ids and
// timestamps. Events must arrive in their original append order; a
// non-increasing timestamp indicates a corrupted source.
func (l *Log) Restore(events []types.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.events) != 0 {
		return errors.New("restore into non-empty log")
	}
	for _, ev := range events {
		if !ev.Timestamp.After(l.lastTS) {
			return fmt.Errorf("restore: timestamp regression at event %s", ev.EventID)
		}
		if len(l.events) >= l.capacity {
			return ErrLogFull
		}
		l.lastTS = ev.Timestamp
		idx := len(l.events)
		l.events = append(l.events, ev)
		if ev.CorrelationID != "" {
			l.byCorrelation[ev.CorrelationID] = append(l.byCorrelation[ev.CorrelationID], idx)
		}
		if ev.OrderID != "" {
			l.byOrder[ev.OrderID] = append(l.byOrder[ev.OrderID], idx)
		}
		l.byType[ev.Type] = append(l.byType[ev.Type], idx)
	}
	return nil
}

// Subscribe returns a channel receiving every event appended after the call.
// Slow subscribers drop events rather than blocking appends.
func (l *Log) Subscribe(buffer int) <-chan types.Event {
	ch := make(chan types.Event, buffer)
	l.subsMu.Lock()
	l.subs = append(l.subs, ch)
	l.subsMu.Unlock()
	return ch
}

func (l *Log) notify(ev types.Event) {
	l.subsMu.RLock()
	defer l.subsMu.RUnlock()
	for _, ch := range l.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber can't keep up, drop event
		}
	}
}

// collect copies the events at the given indexes. Caller holds at least a
// read lock.
func (l *Log) collect(idxs []int) []types.Event {
	if len(idxs) == 0 {
		return nil
	}
	out := make([]types.Event, len(idxs))
	for i, idx := range idxs {
		out[i] = l.events[idx]
	}
	return out
}
