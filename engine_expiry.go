package goSession

import (
	"context"
	"time"

	"github.com/MrEthical07/goSession/internal/flows"
)

// freshLocked reports whether the held credential is inside its cache TTL.
// Caller holds mu.
func (e *Engine) freshLocked() bool {
	return flows.CacheFresh(e.now(), e.state.cachedAt, e.config.Session.CacheTTL)
}

// expireStale ends an Authenticated or Locked session whose cache TTL has
// passed: the credential is wiped and the state falls back to Anonymous.
// The manual-logout flag is untouched. It reports whether it expired
// anything.
func (e *Engine) expireStale(ctx context.Context) bool {
	ttl := e.config.Session.CacheTTL
	var userID, sessionID string

	e.persistMu.Lock()
	_, ok := e.updateIf(func(s *sessionState) bool {
		if s.status != StatusAuthenticated && s.status != StatusLocked {
			return false
		}
		return !flows.CacheFresh(e.now(), s.cachedAt, ttl)
	}, func(s *sessionState) {
		userID = profileID(s.user)
		sessionID = s.epoch
		*s = sessionState{online: s.online, idle: s.idle}
	})
	if ok {
		if err := e.creds.WipeSession(ctx); err != nil {
			e.logger.Warn("expired credential wipe failed", "error", err)
		}
	}
	e.persistMu.Unlock()
	if !ok {
		return false
	}

	e.cancelBackground()
	e.stopExpiry()
	e.metricInc(MetricSessionExpired)
	e.logger.Info("session expired", "ttl", ttl.String())
	e.emitAudit(ctx, auditEventSessionExpired, true, userID, sessionID, nil, nil)
	return true
}

// armExpiry schedules expireStale for the moment the current credential
// leaves its cache TTL, replacing any pending schedule.
func (e *Engine) armExpiry() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopExpiryLocked()
	if e.closed || (e.state.status != StatusAuthenticated && e.state.status != StatusLocked) {
		return
	}
	wait := e.state.cachedAt.Add(e.config.Session.CacheTTL).Sub(e.now())
	if wait < 0 {
		wait = 0
	}
	gen := e.expiryGen
	e.expiryTimer = time.AfterFunc(wait, func() { e.onExpiryTimer(gen) })
}

func (e *Engine) stopExpiry() {
	e.mu.Lock()
	e.stopExpiryLocked()
	e.mu.Unlock()
}

func (e *Engine) stopExpiryLocked() {
	e.expiryGen++
	if e.expiryTimer != nil {
		e.expiryTimer.Stop()
		e.expiryTimer = nil
	}
}

func (e *Engine) onExpiryTimer(gen uint64) {
	e.mu.Lock()
	if e.closed || gen != e.expiryGen {
		e.mu.Unlock()
		return
	}
	e.bgWG.Add(1)
	e.mu.Unlock()
	defer e.bgWG.Done()

	if e.expireStale(context.Background()) {
		return
	}
	// A profile refresh moved cachedAt forward.
	e.armExpiry()
}
