package goSession

import (
	"context"
	"encoding/json"
	"time"

	"github.com/MrEthical07/goSession/activity"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/store"
	"github.com/google/uuid"
)

type cachedSession struct {
	token    string
	profile  *Profile
	cachedAt time.Time
}

// Start hydrates the state from the credential store, applies the
// return-from-background policy to any exit markers left by the previous
// run, and starts the activity monitor. A session restored as
// authenticated gets a background profile refresh. Start is a no-op on a
// started engine.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.mu.Unlock()

	e.hydrate(ctx)
	e.Resume(ctx)
	e.armExpiry()

	e.monitor.Start()
	cancel := e.monitor.Subscribe(e.onActivitySignal)
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		cancel()
		return ErrEngineNotReady
	}
	e.stopMonitor = cancel
	e.mu.Unlock()

	if e.Status() == StatusAuthenticated {
		e.refreshInBackground()
		e.armSync()
	}
	return nil
}

func (e *Engine) hydrate(ctx context.Context) {
	now := e.now()
	manual := e.creds.ManualLogout(ctx)
	token, hasToken := e.creds.Token(ctx)
	cached, hasProfile := e.creds.CachedProfile(ctx)

	var profile *Profile
	if hasProfile {
		profile, hasProfile = e.decodeProfile(cached.Profile)
	}
	reason, locked := e.creds.LockMarker(ctx)

	outcome := flows.RunHydrate(flows.HydrateInput{
		Now:          now,
		CacheTTL:     e.config.Session.CacheTTL,
		ManualLogout: manual,
		HasToken:     hasToken,
		HasProfile:   hasProfile,
		CachedAt:     cached.CachedAt,
		Locked:       locked,
	})
	e.logger.Debug("session hydrated", "outcome", outcome.String())

	switch outcome {
	case flows.HydrateExpired:
		e.persistMu.Lock()
		if err := e.creds.WipeSession(ctx); err != nil {
			e.logger.Warn("expired credential wipe failed", "error", err)
		}
		e.update(func(s *sessionState) {
			*s = sessionState{online: s.online, manualLogout: manual}
		})
		e.persistMu.Unlock()
		e.metricInc(MetricSessionExpired)
		e.emitAudit(ctx, auditEventSessionExpired, true, profileID(profile), "", nil, nil)

	case flows.HydrateAuthenticated, flows.HydrateLocked:
		lockReason := LockNone
		status := StatusAuthenticated
		if outcome == flows.HydrateLocked {
			status = StatusLocked
			lockReason = LockReason(reason)
			if !lockReason.valid() {
				lockReason = LockDemoted
			}
		}
		e.update(func(s *sessionState) {
			*s = sessionState{
				status:     status,
				user:       profile,
				token:      token,
				cachedAt:   cached.CachedAt,
				online:     s.online,
				lockReason: lockReason,
				epoch:      uuid.NewString(),
			}
		})

	default:
		e.update(func(s *sessionState) {
			*s = sessionState{online: s.online, manualLogout: manual}
		})
	}
}

// loadCached returns the stored credential when it is complete, fresh and
// not blocked by a manual logout.
func (e *Engine) loadCached(ctx context.Context) (cachedSession, bool) {
	if e.creds.ManualLogout(ctx) {
		return cachedSession{}, false
	}
	token, ok := e.creds.Token(ctx)
	if !ok {
		return cachedSession{}, false
	}
	cached, ok := e.creds.CachedProfile(ctx)
	if !ok || !flows.CacheFresh(e.now(), cached.CachedAt, e.config.Session.CacheTTL) {
		return cachedSession{}, false
	}
	profile, ok := e.decodeProfile(cached.Profile)
	if !ok {
		return cachedSession{}, false
	}
	return cachedSession{token: token, profile: profile, cachedAt: cached.CachedAt}, true
}

func (e *Engine) decodeProfile(data []byte) (*Profile, bool) {
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		e.metricInc(MetricStorageReadFailure)
		e.logger.Warn("cached profile unreadable, treating as absent", "error", err)
		return nil, false
	}
	return &p, true
}

// restoreFromCache moves an anonymous engine onto the stored credential.
func (e *Engine) restoreFromCache(ctx context.Context, status Status, reason LockReason) bool {
	cached, ok := e.loadCached(ctx)
	if !ok {
		return false
	}
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	_, applied := e.updateIf(func(s *sessionState) bool {
		return s.status == StatusAnonymous && !s.manualLogout
	}, func(s *sessionState) {
		*s = sessionState{
			status:     status,
			user:       cached.profile,
			token:      cached.token,
			cachedAt:   cached.cachedAt,
			online:     s.online,
			lockReason: reason,
			epoch:      uuid.NewString(),
		}
	})
	if applied && status == StatusLocked {
		e.persistLock(ctx, reason)
	}
	if applied {
		e.armExpiry()
	}
	return applied
}

// Resume applies the return-from-background policy to the stored exit
// markers and then clears them. Hosts call it when the app regains
// visibility, focus or network. A session past its cache TTL is expired
// before the markers are looked at.
func (e *Engine) Resume(ctx context.Context) {
	e.expireStale(ctx)
	markers, has := e.creds.ExitMarkers(ctx)
	if err := e.creds.ClearExitMarkers(ctx); err != nil {
		e.logger.Warn("exit markers not cleared", "error", err)
	}
	if !has {
		return
	}

	st := e.current()
	fresh := false
	switch st.status {
	case StatusAuthenticated, StatusLocked:
		fresh = flows.CacheFresh(e.now(), st.cachedAt, e.config.Session.CacheTTL)
	case StatusAnonymous:
		_, fresh = e.loadCached(ctx)
	}
	manual := st.manualLogout || e.creds.ManualLogout(ctx)

	in := flows.ResumeInput{
		Now:              e.now(),
		LockTimeout:      e.config.Session.LockTimeout,
		HasMarkers:       true,
		ExitedAt:         markers.ExitedAt,
		WasAuthenticated: markers.WasAuthenticated,
		CacheFresh:       fresh,
		ManualLogout:     manual,
	}
	outcome := flows.RunResume(in)
	e.logger.Debug("resume evaluated", "outcome", outcome.String(), "absence", in.Absence())

	switch outcome {
	case flows.ResumeRestore:
		// A lock is never lifted by returning quickly.
		if st.status == StatusAnonymous && e.restoreFromCache(ctx, StatusAuthenticated, LockNone) {
			e.onRestored(ctx)
		}
	case flows.ResumeLock:
		switch {
		case st.status == StatusAuthenticated:
			e.lock(ctx, LockAbsence, "")
		case st.status == StatusAnonymous && fresh && !manual:
			if e.restoreFromCache(ctx, StatusLocked, LockAbsence) {
				e.metricInc(MetricSessionLockedAbsence)
			}
		}
	}
}

func (e *Engine) onRestored(ctx context.Context) {
	st := e.current()
	e.metricInc(MetricSessionRestored)
	e.emitAudit(ctx, auditEventSessionRestored, true, profileID(st.user), st.epoch, nil, nil)
	e.monitor.ForceReset()
	e.refreshInBackground()
	e.armSync()
}

// ForceRestore re-enters Authenticated from a fresh cached credential
// without consulting exit markers. It never lifts a lock and never
// overrides a manual logout.
func (e *Engine) ForceRestore(ctx context.Context) bool {
	if e.ready() != nil {
		return false
	}
	switch e.Status() {
	case StatusAuthenticated:
		return true
	case StatusAnonymous:
		if e.restoreFromCache(ctx, StatusAuthenticated, LockNone) {
			e.onRestored(ctx)
			return true
		}
	}
	return false
}

// HandleHostSignal feeds a host lifecycle event into the engine. Hidden and
// Exiting record exit markers; Visible and Focused run Resume.
func (e *Engine) HandleHostSignal(ctx context.Context, sig HostSignal) {
	if e.ready() != nil {
		return
	}
	switch sig {
	case SignalHidden, SignalExiting:
		st := e.current()
		m := store.ExitMarkers{
			ExitedAt:         e.now(),
			WasAuthenticated: st.status == StatusAuthenticated || st.status == StatusLocked,
		}
		if err := e.creds.SetExitMarkers(ctx, m); err != nil {
			e.logger.Warn("exit markers not written", "signal", sig.String(), "error", err)
		}
	case SignalVisible, SignalFocused:
		e.Resume(ctx)
	case SignalBlurred:
	default:
		e.logger.Debug("ignoring unknown host signal", "signal", uint8(sig))
	}
}

// SetOnline records network reachability. Regaining the network runs the
// return policy and refreshes an authenticated session in the background.
func (e *Engine) SetOnline(ctx context.Context, online bool) {
	var wasOnline bool
	e.update(func(s *sessionState) {
		wasOnline = s.online
		s.online = online
	})
	if !online || wasOnline {
		e.expireStale(ctx)
		return
	}
	e.Resume(ctx)
	if e.Status() == StatusAuthenticated {
		e.refreshInBackground()
	}
}

// lock demotes an authenticated session. A non-empty epoch restricts the
// transition to that session. It reports whether the state changed.
func (e *Engine) lock(ctx context.Context, reason LockReason, epoch string) bool {
	var sessionID string
	e.persistMu.Lock()
	snap, ok := e.updateIf(func(s *sessionState) bool {
		if s.status != StatusAuthenticated {
			return false
		}
		return epoch == "" || s.epoch == epoch
	}, func(s *sessionState) {
		s.status = StatusLocked
		s.lockReason = reason
		sessionID = s.epoch
	})
	if ok {
		e.persistLock(ctx, reason)
	}
	e.persistMu.Unlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	e.stopSyncLocked()
	e.mu.Unlock()

	switch reason {
	case LockIdle:
		e.metricInc(MetricSessionLockedIdle)
	case LockAbsence:
		e.metricInc(MetricSessionLockedAbsence)
	case LockDemoted:
		e.metricInc(MetricSessionLockedDemoted)
	}
	e.logger.Info("session locked", "reason", reason.String())
	e.emitAudit(ctx, auditEventSessionLocked, true, profileID(snap.User), sessionID, nil, func() map[string]string {
		return map[string]string{"reason": reason.String()}
	})
	return true
}

func (e *Engine) persistLock(ctx context.Context, reason LockReason) {
	if err := e.creds.SetLockMarker(ctx, uint8(reason)); err != nil {
		e.logger.Warn("lock marker not written", "error", err)
	}
}

// onActivitySignal runs on the activity monitor's timer goroutine.
func (e *Engine) onActivitySignal(sig activity.Signal) {
	if e.expireStale(context.Background()) {
		return
	}
	switch sig.Kind {
	case activity.KindIdle:
		e.updateIf(func(s *sessionState) bool {
			return s.idle != sig.Active
		}, func(s *sessionState) {
			s.idle = sig.Active
		})
	case activity.KindLongIdle:
		if !sig.Active {
			return
		}
		e.lock(context.Background(), LockIdle, "")
	}
}

func profileID(p *Profile) string {
	if p == nil {
		return ""
	}
	return p.ID
}
