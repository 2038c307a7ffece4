package goSession

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/MrEthical07/goSession/store"
)

// FetchProfile reloads the principal from the identity server and refreshes
// the cache timestamp. It requires a held token. A rejected token demotes
// the session to Locked; a session that ended while the request was in
// flight yields ErrSessionChanged and nothing is applied.
func (e *Engine) FetchProfile(ctx context.Context) (Profile, error) {
	if err := e.ready(); err != nil {
		return Profile{}, err
	}
	st := e.current()
	if st.token == "" {
		return Profile{}, ErrTokenMissing
	}
	if e.identity == nil {
		return Profile{}, ErrIdentityUnavailable
	}

	e.beginLoading()
	profile, err := e.fetchProfile(ctx, st.token)
	if err == nil && !e.applyProfile(ctx, st.epoch, profile) {
		err = ErrSessionChanged
	}
	e.endLoading(err)

	if err != nil {
		e.metricInc(MetricProfileFetchFailure)
		if errors.Is(err, ErrTokenRejected) {
			e.onTokenRejected(ctx, st)
		}
		return Profile{}, err
	}
	e.metricInc(MetricProfileFetchSuccess)
	return profile, nil
}

func (e *Engine) fetchProfile(ctx context.Context, token string) (Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.Identity.ProfileTimeout)
	defer cancel()
	return e.identity.FetchProfile(ctx, token)
}

// applyProfile stores a server profile for the session named by epoch.
func (e *Engine) applyProfile(ctx context.Context, epoch string, profile Profile) bool {
	if epoch == "" {
		return false
	}
	raw, err := json.Marshal(profile)
	if err != nil {
		e.logger.Warn("profile not encodable for cache", "error", err)
		return false
	}
	now := e.now()

	e.persistMu.Lock()
	defer e.persistMu.Unlock()
	_, ok := e.updateIf(func(s *sessionState) bool {
		if s.epoch != epoch {
			return false
		}
		return s.status == StatusAuthenticated || s.status == StatusLocked
	}, func(s *sessionState) {
		s.user = profile.clone()
		s.cachedAt = now
		s.lastSync = now
	})
	if !ok {
		return false
	}
	if err := e.creds.SetCachedProfile(ctx, store.CachedProfile{Profile: raw, CachedAt: now}); err != nil {
		e.logger.Warn("profile cache not persisted", "error", err)
	}
	return true
}

func (e *Engine) onTokenRejected(ctx context.Context, st sessionState) {
	if e.lock(ctx, LockDemoted, st.epoch) {
		e.emitAudit(ctx, auditEventTokenRejected, false, profileID(st.user), st.epoch, ErrTokenRejected, nil)
	}
}

// requireAuthenticated returns the current state when it is Authenticated
// with a token.
func (e *Engine) requireAuthenticated() (sessionState, error) {
	if err := e.ready(); err != nil {
		return sessionState{}, err
	}
	if e.identity == nil {
		return sessionState{}, ErrIdentityUnavailable
	}
	st := e.current()
	if st.status != StatusAuthenticated {
		return st, ErrNotAuthenticated
	}
	if st.token == "" {
		return st, ErrTokenMissing
	}
	return st, nil
}

// UpdateProfile sends fields to the profile endpoint and caches the profile
// the server returns.
func (e *Engine) UpdateProfile(ctx context.Context, fields ProfileUpdate) (Profile, error) {
	st, err := e.requireAuthenticated()
	if err != nil {
		return Profile{}, err
	}

	e.beginLoading()
	pctx, cancel := context.WithTimeout(ctx, e.config.Identity.ProfileTimeout)
	profile, err := e.identity.UpdateProfile(pctx, st.token, fields)
	cancel()
	if err == nil && !e.applyProfile(ctx, st.epoch, profile) {
		err = ErrSessionChanged
	}
	e.endLoading(err)

	if err != nil {
		if errors.Is(err, ErrTokenRejected) {
			e.onTokenRejected(ctx, st)
		}
		return Profile{}, err
	}
	e.metricInc(MetricProfileUpdate)
	e.emitAudit(ctx, auditEventProfileUpdated, true, profile.ID, st.epoch, nil, func() map[string]string {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		return map[string]string{"fields": strings.Join(keys, ",")}
	})
	return profile, nil
}

// ChangePassword changes the server password and re-derives the local
// unlock verifier from the new one.
func (e *Engine) ChangePassword(ctx context.Context, change PasswordChange) error {
	if change.OldPassword == "" || change.Password == "" {
		return ErrCredentialsRequired
	}
	if change.Password != change.Confirm {
		return ErrPasswordMismatch
	}
	st, err := e.requireAuthenticated()
	if err != nil {
		return err
	}

	e.beginLoading()
	cctx, cancel := context.WithTimeout(ctx, e.config.Identity.LoginTimeout)
	err = e.identity.ChangePassword(cctx, st.token, change)
	cancel()
	e.endLoading(err)

	if err != nil {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, profileID(st.user), st.epoch, err, nil)
		if errors.Is(err, ErrTokenRejected) {
			e.onTokenRejected(ctx, st)
		}
		return err
	}

	verifier, herr := e.hasher.Hash(change.Password)
	e.persistMu.Lock()
	if e.current().epoch == st.epoch {
		if herr == nil {
			herr = e.creds.SetVerifier(ctx, verifier)
		}
		if herr != nil {
			// An old-password verifier must not outlive the change.
			e.logger.Warn("unlock verifier not re-derived", "error", herr)
			if err := e.creds.RemoveVerifier(ctx); err != nil {
				e.logger.Warn("stale unlock verifier not removed", "error", err)
			}
		}
	}
	e.persistMu.Unlock()

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, profileID(st.user), st.epoch, nil, nil)
	return nil
}
