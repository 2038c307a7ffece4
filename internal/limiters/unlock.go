package limiters

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrEthical07/goSession/store"
)

// UnlockConfig holds configuration for the local unlock attempt limiter.
type UnlockConfig struct {
	Enabled     bool
	MaxAttempts int
	Cooldown    time.Duration
}

// FailureStore persists the failure window so a restart cannot reset it.
type FailureStore interface {
	UnlockFailures(ctx context.Context) (store.FailureWindow, bool)
	SetUnlockFailures(ctx context.Context, w store.FailureWindow) error
	ClearUnlockFailures(ctx context.Context) error
}

// UnlockLimiter counts consecutive failed local unlocks. Once MaxAttempts
// failures land inside one Cooldown window, local verification is refused
// until the window expires.
type UnlockLimiter struct {
	store  FailureStore
	config UnlockConfig
	now    func() time.Time
	mu     sync.Mutex
}

// NewUnlockLimiter creates a new unlock limiter. A nil now uses time.Now.
func NewUnlockLimiter(s FailureStore, cfg UnlockConfig, now func() time.Time) *UnlockLimiter {
	if now == nil {
		now = time.Now
	}
	return &UnlockLimiter{store: s, config: cfg, now: now}
}

// Allowed reports whether a local verification may be attempted.
func (l *UnlockLimiter) Allowed(ctx context.Context) bool {
	if l == nil || !l.config.Enabled {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.store.UnlockFailures(ctx)
	if !ok || l.expired(w) {
		return true
	}
	return int(w.Count) < l.config.MaxAttempts
}

// RecordFailure increments the failure counter. Returns true if the
// threshold has been reached.
func (l *UnlockLimiter) RecordFailure(ctx context.Context) (bool, error) {
	if l == nil || !l.config.Enabled {
		return false, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.store.UnlockFailures(ctx)
	if !ok || l.expired(w) {
		// First failure opens a fresh window.
		w = store.FailureWindow{First: l.now()}
	}
	w.Count++

	if err := l.store.SetUnlockFailures(ctx, w); err != nil {
		return false, fmt.Errorf("limiters: record unlock failure: %w", err)
	}
	return int(w.Count) >= l.config.MaxAttempts, nil
}

// Reset clears the failure counter after a successful unlock or login.
func (l *UnlockLimiter) Reset(ctx context.Context) error {
	if l == nil || !l.config.Enabled {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.ClearUnlockFailures(ctx); err != nil {
		return fmt.Errorf("limiters: reset unlock failures: %w", err)
	}
	return nil
}

// FailureCount returns the failures in the current window.
func (l *UnlockLimiter) FailureCount(ctx context.Context) int {
	if l == nil || !l.config.Enabled {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.store.UnlockFailures(ctx)
	if !ok || l.expired(w) {
		return 0
	}
	return int(w.Count)
}

func (l *UnlockLimiter) expired(w store.FailureWindow) bool {
	if l.config.Cooldown <= 0 {
		return false
	}
	now := l.now()
	// A window stamped in the future means the clock moved; keep counting.
	return !w.First.After(now) && now.Sub(w.First) >= l.config.Cooldown
}
