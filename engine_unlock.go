package goSession

import (
	"context"
	"errors"

	"github.com/MrEthical07/goSession/jwt"
	pwhash "github.com/MrEthical07/goSession/password"
)

// UnlockLocal proves presence on the lock-screen. The password is checked
// against the stored verifier without any network call; on a match the
// session returns to Authenticated and the idle timers are re-armed.
//
// A miss while online falls back to a server login with the cached
// principal's identifier when Unlock.ServerFallback is set. After a manual
// logout UnlockLocal always fails: only Login clears that state.
//
// UnlockLocal never returns an error. The reason for a false result is in
// Snapshot().Err.
func (e *Engine) UnlockLocal(ctx context.Context, password string) bool {
	if e.ready() != nil {
		return false
	}
	ok, err := e.unlock(ctx, password)
	if err != nil {
		e.setError(err)
		e.metricInc(MetricUnlockLocalFailure)
		st := e.current()
		e.emitAudit(ctx, auditEventUnlockFailure, false, profileID(st.user), st.epoch, err, nil)
	}
	return ok
}

func (e *Engine) unlock(ctx context.Context, password string) (bool, error) {
	st := e.current()
	if st.manualLogout || e.creds.ManualLogout(ctx) {
		return false, ErrManualLogout
	}

	switch st.status {
	case StatusAuthenticated:
		return true, nil
	case StatusAuthenticating:
		return false, ErrNotLocked
	case StatusAnonymous:
		// Cold start straight onto the lock-screen.
		if !e.restoreFromCache(ctx, StatusLocked, LockAbsence) {
			return false, ErrNoCachedSession
		}
		st = e.current()
		if st.status != StatusLocked {
			return false, ErrNotLocked
		}
	}
	if e.expireStale(ctx) {
		return false, ErrSessionExpired
	}
	if password == "" {
		return false, ErrCredentialsRequired
	}

	allowed := e.limiter.Allowed(ctx)
	verifier, hasVerifier := e.creds.Verifier(ctx)

	if allowed && hasVerifier {
		match, err := e.hasher.Verify(password, verifier)
		if errors.Is(err, pwhash.ErrPasswordTooLong) {
			// No stored verifier can match it; count it as a miss.
			err = nil
		}
		if err != nil {
			e.logger.Warn("stored unlock verifier unreadable", "error", err)
			e.metricInc(MetricStorageReadFailure)
			hasVerifier = false
		}
		if match {
			return e.unlockMatched(ctx, st, password, verifier)
		}
	}

	if allowed && hasVerifier {
		reached, err := e.limiter.RecordFailure(ctx)
		if err != nil {
			e.logger.Warn("unlock failure not recorded", "error", err)
		}
		if reached {
			e.metricInc(MetricUnlockRateLimited)
		}
	} else if !allowed {
		e.metricInc(MetricUnlockRateLimited)
	}

	if e.config.Unlock.ServerFallback && st.online && e.identity != nil {
		e.metricInc(MetricUnlockServerFallback)
		if err := e.serverUnlock(ctx, st, password); err != nil {
			return false, err
		}
		return true, nil
	}

	switch {
	case !allowed:
		return false, ErrUnlockRateLimited
	case !hasVerifier:
		return false, ErrVerifierMissing
	default:
		return false, ErrUnlockFailed
	}
}

// unlockMatched finishes a local match. A bearer token that is a JWT past
// its exp is replaced by a server login first when the network is up; a
// transient failure there keeps the local unlock.
func (e *Engine) unlockMatched(ctx context.Context, st sessionState, password, verifier string) (bool, error) {
	if st.online && e.identity != nil && jwt.Expired(st.token, e.now(), e.config.Session.TokenExpiryLeeway) {
		err := e.serverUnlock(ctx, st, password)
		switch {
		case err == nil:
			return true, nil
		case IsTransient(err):
			e.logger.Info("token refresh on unlock deferred", "error", err)
		default:
			if errors.Is(err, ErrInvalidCredentials) {
				if rerr := e.creds.RemoveVerifier(ctx); rerr != nil {
					e.logger.Warn("stale unlock verifier not removed", "error", rerr)
				}
			}
			return false, err
		}
	}

	e.persistMu.Lock()
	_, ok := e.updateIf(func(s *sessionState) bool {
		return s.status == StatusLocked && s.epoch == st.epoch
	}, func(s *sessionState) {
		s.status = StatusAuthenticated
		s.lockReason = LockNone
		s.err = nil
	})
	if ok {
		if err := e.creds.ClearLockMarker(ctx); err != nil {
			e.logger.Warn("lock marker not cleared", "error", err)
		}
		if err := e.limiter.Reset(ctx); err != nil {
			e.logger.Warn("unlock failures not cleared", "error", err)
		}
	}
	e.persistMu.Unlock()
	if !ok {
		return false, ErrSessionChanged
	}

	e.monitor.ForceReset()
	e.armSync()
	e.upgradeVerifier(ctx, password, verifier)

	e.metricInc(MetricUnlockLocalSuccess)
	e.emitAudit(ctx, auditEventUnlockSuccess, true, profileID(st.user), st.epoch, nil, func() map[string]string {
		return map[string]string{"method": "local"}
	})
	return true, nil
}

// serverUnlock re-authenticates the locked principal against the identity
// server. It only applies while the same session is still locked.
func (e *Engine) serverUnlock(ctx context.Context, st sessionState, password string) error {
	if st.user == nil || st.user.LoginIdentifier() == "" {
		return ErrNotAuthenticated
	}
	token, profile, err := e.authenticate(ctx, st.user.LoginIdentifier(), password)
	if err != nil {
		return err
	}
	if !e.establish(ctx, token, profile, password, func(s *sessionState) bool {
		return s.status == StatusLocked && s.epoch == st.epoch
	}) {
		return ErrSessionChanged
	}
	e.metricInc(MetricUnlockLocalSuccess)
	e.emitAudit(ctx, auditEventUnlockSuccess, true, profile.ID, e.current().epoch, nil, func() map[string]string {
		return map[string]string{"method": "server"}
	})
	return nil
}

func (e *Engine) upgradeVerifier(ctx context.Context, password, verifier string) {
	upgrade, err := e.hasher.NeedsUpgrade(verifier)
	if err != nil || !upgrade {
		return
	}
	fresh, err := e.hasher.Hash(password)
	if err != nil {
		e.logger.Warn("verifier upgrade failed", "error", err)
		return
	}
	if err := e.creds.SetVerifier(ctx, fresh); err != nil {
		e.logger.Warn("upgraded verifier not persisted", "error", err)
	}
}
