package breaker

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// manualClock lets tests walk time forward deterministically.
type manualClock struct {
	at time.Time
}

func (c *manualClock) now() time.Time          { return c.at }
func (c *manualClock) advance(d time.Duration) { c.at = c.at.Add(d) }

func newTestBreaker(threshold int, open time.Duration) (*Breaker, *manualClock) {
	clock := &manualClock{at: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	return New(threshold, open, testLogger(), WithClock(clock.now)), clock
}

func TestStartsClosed(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(5, time.Minute)

	if got := b.State(); got != Closed {
		t.Errorf("State() = %s, want CLOSED", got)
	}
	if !b.Allow() {
		t.Error("Allow() = false while CLOSED")
	}
}

func TestOpensAtThreshold(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(5, time.Minute)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
		if got := b.State(); got != Closed {
			t.Fatalf("State() = %s after %d failures, want CLOSED", got, i+1)
		}
	}
	b.RecordFailure() // fifth consecutive failure
	if got := b.State(); got != Open {
		t.Fatalf("State() = %s after threshold failures, want OPEN", got)
	}
	if b.Allow() {
		t.Error("Allow() = true while OPEN")
	}
}

func TestSuccessResetsCounter(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	// Four failures total, but never three consecutive.
	if got := b.State(); got != Closed {
		t.Errorf("State() = %s, want CLOSED", got)
	}
}

func TestHalfOpenAdmitsSingleProbe(t *testing.T) {
	t.Parallel()
	b, clock := newTestBreaker(1, time.Minute)

	b.RecordFailure()
	if got := b.State(); got != Open {
		t.Fatalf("State() = %s, want OPEN", got)
	}

	clock.advance(59 * time.Second)
	if b.Allow() {
		t.Fatal("Allow() = true before open duration elapsed")
	}

	clock.advance(2 * time.Second)
	if !b.Allow() {
		t.Fatal("Allow() = false for the probe after expiry")
	}
	if got := b.State(); got != HalfOpen {
		t.Fatalf("State() = %s, want HALF_OPEN", got)
	}

	// Exactly one probe per cycle.
	if b.Allow() {
		t.Error("Allow() admitted a second attempt during the probe")
	}
}

func TestProbeSuccessCloses(t *testing.T) {
	t.Parallel()
	b, clock := newTestBreaker(1, time.Minute)

	b.RecordFailure()
	clock.advance(61 * time.Second)
	if !b.Allow() {
		t.Fatal("probe not admitted")
	}
	b.RecordSuccess()

	if got := b.State(); got != Closed {
		t.Fatalf("State() = %s after probe success, want CLOSED", got)
	}
	if !b.Allow() {
		t.Error("Allow() = false after circuit closed")
	}
}

func TestProbeFailureReopens(t *testing.T) {
	t.Parallel()
	b, clock := newTestBreaker(1, time.Minute)

	b.RecordFailure()
	clock.advance(61 * time.Second)
	if !b.Allow() {
		t.Fatal("probe not admitted")
	}
	b.RecordFailure()

	if got := b.State(); got != Open {
		t.Fatalf("State() = %s after probe failure, want OPEN", got)
	}
	// The expiry was reset: another full window must pass.
	clock.advance(59 * time.Second)
	if b.Allow() {
		t.Error("Allow() = true before the reset window elapsed")
	}
	clock.advance(2 * time.Second)
	if !b.Allow() {
		t.Error("Allow() = false for the next probe")
	}
}

func TestStateChangeObserver(t *testing.T) {
	t.Parallel()

	clock := &manualClock{at: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	var transitions []string
	b := New(1, time.Minute, testLogger(),
		WithClock(clock.now),
		WithStateChange(func(from, to State) {
			transitions = append(transitions, string(from)+"→"+string(to))
		}),
	)

	b.RecordFailure()
	clock.advance(61 * time.Second)
	b.Allow()
	b.RecordSuccess()

	want := []string{"CLOSED→OPEN", "OPEN→HALF_OPEN", "HALF_OPEN→CLOSED"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}
