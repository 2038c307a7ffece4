package goSession

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/store"
	"github.com/google/uuid"
)

// Login authenticates against the identity server, loads the profile and
// persists the credential, the profile cache and a local unlock verifier
// derived from password. A successful login clears the manual-logout flag.
//
// The identity client owns retries; Login bounds the whole exchange with
// Identity.LoginTimeout. On failure the previous state is restored, the
// store is untouched and the error is surfaced. Concurrent calls are not
// coalesced.
func (e *Engine) Login(ctx context.Context, identifier, password string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if identifier == "" || password == "" {
		return ErrCredentialsRequired
	}
	if e.identity == nil {
		return ErrIdentityUnavailable
	}

	start := time.Now()
	var prev Status
	var gen uint64
	e.update(func(s *sessionState) {
		prev = s.status
		gen = e.logoutGen
		if s.status != StatusLocked {
			s.status = StatusAuthenticating
		}
		s.loading++
		s.err = nil
	})

	token, profile, err := e.authenticate(ctx, identifier, password)
	if err == nil {
		// A manual logout issued while the exchange was in flight wins.
		unchanged := func(*sessionState) bool { return e.logoutGen == gen }
		if !e.establish(ctx, token, profile, password, unchanged) {
			err = ErrSessionChanged
		}
	}
	e.metrics.Observe(MetricLoginLatency, time.Since(start))

	if err != nil {
		e.update(func(s *sessionState) {
			if s.status == StatusAuthenticating {
				s.status = prev
				if prev == StatusAuthenticating {
					s.status = StatusAnonymous
				}
			}
			if s.loading > 0 {
				s.loading--
			}
			s.err = err
		})
		e.metricInc(MetricLoginFailure)
		e.logger.Info("login failed", "error", err)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", err, func() map[string]string {
			return map[string]string{"identifier": identifier}
		})
		return err
	}

	e.update(func(s *sessionState) {
		if s.loading > 0 {
			s.loading--
		}
	})
	st := e.current()
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, profileID(st.user), st.epoch, nil, nil)
	return nil
}

// authenticate runs the login and profile round trip without touching
// engine state.
func (e *Engine) authenticate(ctx context.Context, identifier, password string) (string, Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.Identity.LoginTimeout)
	defer cancel()

	token, err := e.identity.Login(ctx, identifier, password)
	if err != nil {
		return "", Profile{}, err
	}
	if token == "" {
		return "", Profile{}, ErrTokenMissing
	}

	pctx, pcancel := context.WithTimeout(ctx, e.config.Identity.ProfileTimeout)
	defer pcancel()
	profile, err := e.identity.FetchProfile(pctx, token)
	if err != nil {
		// A token the server just issued and then refused is not a
		// credential problem of the caller.
		if errors.Is(err, ErrTokenRejected) {
			return "", Profile{}, errors.Join(ErrConnectionFailed, err)
		}
		return "", Profile{}, err
	}
	return token, profile, nil
}

// establish persists a freshly authenticated session and makes it current
// under a new epoch. A non-nil cond restricts the transition.
func (e *Engine) establish(ctx context.Context, token string, profile Profile, password string, cond func(*sessionState) bool) bool {
	verifier, err := e.hasher.Hash(password)
	if err != nil {
		e.logger.Warn("local unlock verifier not derived", "error", err)
		verifier = ""
	}
	raw, err := json.Marshal(profile)
	if err != nil {
		e.logger.Warn("profile not encodable for cache", "error", err)
		raw = nil
	}
	now := e.now()

	e.persistMu.Lock()
	_, ok := e.updateIf(cond, func(s *sessionState) {
		s.status = StatusAuthenticated
		s.user = profile.clone()
		s.token = token
		s.cachedAt = now
		s.lastSync = now
		s.lockReason = LockNone
		s.manualLogout = false
		s.err = nil
		s.epoch = uuid.NewString()
	})
	if ok {
		e.persistSession(ctx, token, raw, now, verifier)
	}
	e.persistMu.Unlock()
	if !ok {
		return false
	}

	e.monitor.ForceReset()
	e.armSync()
	e.armExpiry()
	return true
}

func (e *Engine) persistSession(ctx context.Context, token string, profile []byte, cachedAt time.Time, verifier string) {
	if err := e.creds.SetToken(ctx, token); err != nil {
		e.logger.Warn("token not persisted", "error", err)
	}
	if profile != nil {
		if err := e.creds.SetCachedProfile(ctx, store.CachedProfile{Profile: profile, CachedAt: cachedAt}); err != nil {
			e.logger.Warn("profile cache not persisted", "error", err)
		}
	}
	if verifier != "" {
		if err := e.creds.SetVerifier(ctx, verifier); err != nil {
			e.logger.Warn("unlock verifier not persisted", "error", err)
		}
	} else if err := e.creds.RemoveVerifier(ctx); err != nil {
		e.logger.Warn("stale unlock verifier not removed", "error", err)
	}
	if err := e.creds.SetManualLogout(ctx, false); err != nil {
		e.logger.Warn("manual logout flag not cleared", "error", err)
	}
	if err := e.creds.ClearLockMarker(ctx); err != nil {
		e.logger.Warn("lock marker not cleared", "error", err)
	}
	if err := e.limiter.Reset(ctx); err != nil {
		e.logger.Warn("unlock failures not cleared", "error", err)
	}
}

// Logout ends the session.
//
// With manual set the local credential is wiped, the manual-logout flag is
// stored and the server is notified best-effort within
// Identity.LogoutTimeout; the result is Anonymous and repeating the call
// changes nothing. Without manual the session is demoted to Locked and
// the cached credential kept for a fast unlock.
func (e *Engine) Logout(ctx context.Context, manual bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !manual {
		return e.demote(ctx)
	}

	e.cancelBackground()
	e.stopExpiry()

	var token, userID, sessionID string
	e.persistMu.Lock()
	e.mu.Lock()
	e.logoutGen++
	e.mu.Unlock()
	e.updateIf(func(s *sessionState) bool {
		return s.status != StatusAnonymous || !s.manualLogout || s.token != ""
	}, func(s *sessionState) {
		token = s.token
		userID = profileID(s.user)
		sessionID = s.epoch
		*s = sessionState{online: s.online, manualLogout: true, idle: s.idle}
	})
	if err := e.creds.WipeSession(ctx); err != nil {
		e.logger.Warn("credential wipe failed", "error", err)
	}
	if err := e.creds.SetManualLogout(ctx, true); err != nil {
		e.logger.Warn("manual logout flag not persisted", "error", err)
	}
	e.persistMu.Unlock()

	if token != "" {
		e.notifyLogout(ctx, token)
		e.metricInc(MetricLogoutManual)
		e.emitAudit(ctx, auditEventLogoutManual, true, userID, sessionID, nil, nil)
	}
	return nil
}

func (e *Engine) notifyLogout(ctx context.Context, token string) {
	if e.identity == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.Identity.LogoutTimeout)
	defer cancel()
	if err := e.identity.Logout(ctx, token); err != nil {
		e.logger.Debug("server logout failed", "error", err)
	}
}

// demote is the automatic logout: Authenticated becomes Locked, Locked
// stays Locked.
func (e *Engine) demote(ctx context.Context) error {
	switch e.Status() {
	case StatusLocked:
		return nil
	case StatusAuthenticated:
		if e.lock(ctx, LockDemoted, "") {
			e.metricInc(MetricLogoutDemoted)
		}
		return nil
	default:
		return ErrNotAuthenticated
	}
}
