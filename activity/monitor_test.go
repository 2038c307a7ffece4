package activity

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func collect(m *Monitor) (<-chan Signal, func()) {
	ch := make(chan Signal, 32)
	cancel := m.Subscribe(func(s Signal) { ch <- s })
	return ch, cancel
}

func waitSignal(t *testing.T, ch <-chan Signal, want Signal) {
	t.Helper()
	select {
	case got := <-ch:
		if got.Kind != want.Kind || got.Active != want.Active {
			t.Fatalf("expected %s active=%v, got %s active=%v", want.Kind, want.Active, got.Kind, got.Active)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s active=%v", want.Kind, want.Active)
	}
}

func TestDebounceCollapsesBursts(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := &manualClock{now: time.Unix(1000, 0)}
	m, err := New(Config{IdleTimeout: time.Hour, LongIdleTimeout: 2 * time.Hour, Debounce: time.Second}, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.Start()
	defer m.Stop()

	if !m.OnActivity() {
		t.Fatal("first activity must be accepted")
	}
	clock.Advance(300 * time.Millisecond)
	if m.OnActivity() {
		t.Fatal("activity inside the debounce window must be dropped")
	}
	if got := m.LastActivityAt(); !got.Equal(time.Unix(1000, 0)) {
		t.Fatalf("dropped activity moved lastActivityAt to %v", got)
	}

	clock.Advance(time.Second)
	if !m.OnActivity() {
		t.Fatal("activity after the debounce window must be accepted")
	}
	if got := m.LastActivityAt(); !got.Equal(time.Unix(1001, 300_000_000)) {
		t.Fatalf("unexpected lastActivityAt %v", got)
	}
}

func TestTimersEmitIdleThenLongIdle(t *testing.T) {
	defer goleak.VerifyNone(t)

	m, err := New(Config{IdleTimeout: 20 * time.Millisecond, LongIdleTimeout: 60 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ch, cancel := collect(m)
	defer cancel()

	m.Start()
	defer m.Stop()

	waitSignal(t, ch, Signal{Kind: KindIdle, Active: true})
	waitSignal(t, ch, Signal{Kind: KindLongIdle, Active: true})
	if !m.Idle() || !m.LongIdle() {
		t.Fatal("both flags must be set after the timers fire")
	}
}

func TestActivityClearsFlags(t *testing.T) {
	defer goleak.VerifyNone(t)

	m, err := New(Config{IdleTimeout: 50 * time.Millisecond, LongIdleTimeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ch, cancel := collect(m)
	defer cancel()

	m.Start()
	defer m.Stop()

	waitSignal(t, ch, Signal{Kind: KindIdle, Active: true})
	waitSignal(t, ch, Signal{Kind: KindLongIdle, Active: true})

	if !m.OnActivity() {
		t.Fatal("activity must be accepted with no debounce")
	}
	if m.Idle() || m.LongIdle() {
		t.Fatal("flags must reset on accepted activity")
	}
	waitSignal(t, ch, Signal{Kind: KindIdle, Active: false})
	waitSignal(t, ch, Signal{Kind: KindLongIdle, Active: false})
}

func TestActivityKeepsTimersFromFiring(t *testing.T) {
	defer goleak.VerifyNone(t)

	m, err := New(Config{IdleTimeout: 200 * time.Millisecond, LongIdleTimeout: 400 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ch, cancel := collect(m)
	defer cancel()

	m.Start()
	defer m.Stop()

	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		m.OnActivity()
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case s := <-ch:
		t.Fatalf("unexpected signal while active: %+v", s)
	default:
	}
}

func TestForceResetBypassesDebounce(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := &manualClock{now: time.Unix(1000, 0)}
	m, err := New(Config{IdleTimeout: time.Hour, LongIdleTimeout: time.Hour, Debounce: time.Minute}, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.Start()
	defer m.Stop()

	m.OnActivity()
	clock.Advance(time.Second)
	m.ForceReset()
	if got := m.LastActivityAt(); !got.Equal(time.Unix(1001, 0)) {
		t.Fatalf("ForceReset did not record activity: %v", got)
	}
}

func TestStopSilencesPendingTimers(t *testing.T) {
	defer goleak.VerifyNone(t)

	m, err := New(Config{IdleTimeout: 30 * time.Millisecond, LongIdleTimeout: 30 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ch, cancel := collect(m)
	defer cancel()

	m.Start()
	m.Stop()

	time.Sleep(80 * time.Millisecond)
	select {
	case s := <-ch:
		t.Fatalf("signal after Stop: %+v", s)
	default:
	}
	if m.OnActivity() && m.Idle() {
		t.Fatal("stopped monitor must not track idleness")
	}
}

func TestNewRejectsInvertedThresholds(t *testing.T) {
	if _, err := New(Config{IdleTimeout: time.Minute, LongIdleTimeout: time.Second}); err == nil {
		t.Fatal("expected long idle < idle to be rejected")
	}
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected zero thresholds to be rejected")
	}
}
