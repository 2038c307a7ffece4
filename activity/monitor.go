package activity

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Kind names one of the two idle signals.
type Kind uint8

const (
	KindIdle Kind = iota + 1
	KindLongIdle
)

func (k Kind) String() string {
	switch k {
	case KindIdle:
		return "idle"
	case KindLongIdle:
		return "long_idle"
	default:
		return "unknown"
	}
}

// Signal is emitted whenever an idle flag changes.
type Signal struct {
	Kind   Kind
	Active bool
	At     time.Time
}

// Config sets the monitor thresholds.
type Config struct {
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" validate:"gt=0"`
	LongIdleTimeout time.Duration `mapstructure:"long_idle_timeout" validate:"gt=0"`
	Debounce        time.Duration `mapstructure:"debounce" validate:"gte=0"`
}

func DefaultConfig() Config {
	return Config{
		IdleTimeout:     15 * time.Minute,
		LongIdleTimeout: 30 * time.Minute,
		Debounce:        time.Second,
	}
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithClock replaces time.Now for activity timestamps and debouncing.
// Timers still run on wall time.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// Monitor tracks user activity and emits idle signals.
type Monitor struct {
	cfg     Config
	now     func() time.Time
	limiter *rate.Limiter

	// emitMu serializes flag transitions with their delivery so subscribers
	// observe signals in the order the flags changed.
	emitMu sync.Mutex

	mu             sync.Mutex
	running        bool
	gen            uint64
	lastActivityAt time.Time
	idle           bool
	longIdle       bool
	idleTimer      *time.Timer
	longTimer      *time.Timer
	subs           map[uint64]func(Signal)
	nextSub        uint64
}

func New(cfg Config, opts ...Option) (*Monitor, error) {
	if cfg.IdleTimeout <= 0 || cfg.LongIdleTimeout <= 0 {
		return nil, errors.New("activity: idle timeouts must be > 0")
	}
	if cfg.LongIdleTimeout < cfg.IdleTimeout {
		return nil, errors.New("activity: long idle timeout must be >= idle timeout")
	}
	if cfg.Debounce < 0 {
		return nil, errors.New("activity: debounce must be >= 0")
	}

	m := &Monitor{
		cfg:  cfg,
		now:  time.Now,
		subs: make(map[uint64]func(Signal)),
	}
	for _, opt := range opts {
		opt(m)
	}

	limit := rate.Inf
	if cfg.Debounce > 0 {
		limit = rate.Every(cfg.Debounce)
	}
	m.limiter = rate.NewLimiter(limit, 1)

	return m, nil
}

// Start arms both timers as if activity had just been seen. Calling Start
// on a running monitor is a no-op.
func (m *Monitor) Start() {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.lastActivityAt = m.now()
	m.armLocked()
	m.mu.Unlock()
}

// Stop cancels both timers. Pending timer callbacks become no-ops.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.running = false
	m.gen++
	m.stopTimersLocked()
}

// OnActivity records an interaction. It reports whether the activity was
// accepted; activity inside the debounce window is dropped.
func (m *Monitor) OnActivity() bool {
	now := m.now()
	if !m.limiter.AllowN(now, 1) {
		return false
	}
	m.reset(now)
	return true
}

// ForceReset re-arms both timers and clears both flags regardless of the
// debounce window.
func (m *Monitor) ForceReset() {
	m.reset(m.now())
}

func (m *Monitor) reset(now time.Time) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.lastActivityAt = now

	var cleared []Signal
	if m.idle {
		m.idle = false
		cleared = append(cleared, Signal{Kind: KindIdle, At: now})
	}
	if m.longIdle {
		m.longIdle = false
		cleared = append(cleared, Signal{Kind: KindLongIdle, At: now})
	}
	m.armLocked()
	subs := m.subscribersLocked()
	m.mu.Unlock()

	for _, s := range cleared {
		deliver(subs, s)
	}
}

// Subscribe registers fn for idle signals and returns a cancel function.
// fn runs on the goroutine that changed the flag and must not call back
// into the monitor.
func (m *Monitor) Subscribe(fn func(Signal)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

func (m *Monitor) LastActivityAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivityAt
}

func (m *Monitor) Idle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idle
}

func (m *Monitor) LongIdle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.longIdle
}

func (m *Monitor) armLocked() {
	m.stopTimersLocked()
	m.gen++
	gen := m.gen
	m.idleTimer = time.AfterFunc(m.cfg.IdleTimeout, func() { m.fire(gen, KindIdle) })
	m.longTimer = time.AfterFunc(m.cfg.LongIdleTimeout, func() { m.fire(gen, KindLongIdle) })
}

func (m *Monitor) stopTimersLocked() {
	if m.idleTimer != nil {
		m.idleTimer.Stop()
		m.idleTimer = nil
	}
	if m.longTimer != nil {
		m.longTimer.Stop()
		m.longTimer = nil
	}
}

func (m *Monitor) fire(gen uint64, kind Kind) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	if !m.running || gen != m.gen {
		m.mu.Unlock()
		return
	}
	switch kind {
	case KindIdle:
		if m.idle {
			m.mu.Unlock()
			return
		}
		m.idle = true
	case KindLongIdle:
		if m.longIdle {
			m.mu.Unlock()
			return
		}
		m.longIdle = true
	}
	subs := m.subscribersLocked()
	m.mu.Unlock()

	deliver(subs, Signal{Kind: kind, Active: true, At: m.now()})
}

func (m *Monitor) subscribersLocked() []func(Signal) {
	out := make([]func(Signal), 0, len(m.subs))
	for _, fn := range m.subs {
		out = append(out, fn)
	}
	return out
}

func deliver(subs []func(Signal), s Signal) {
	for _, fn := range subs {
		fn(s)
	}
}
