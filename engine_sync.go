package goSession

import (
	"context"
	"errors"
	"time"
)

// refreshInBackground starts one advisory profile refresh for the current
// session. Failures are logged and never change the state, except a
// rejected token which demotes to Locked.
func (e *Engine) refreshInBackground() {
	if e.identity == nil {
		return
	}
	e.goBackground(func(ctx context.Context, st sessionState) {
		e.syncOnce(ctx, st)
	})
}

func (e *Engine) syncOnce(ctx context.Context, st sessionState) {
	if st.token == "" || st.epoch == "" || !st.online {
		return
	}
	if e.expireStale(context.WithoutCancel(ctx)) {
		return
	}
	profile, err := e.fetchProfile(ctx, st.token)
	if err != nil {
		if errors.Is(err, ErrTokenRejected) {
			e.metricInc(MetricBackgroundSyncFailure)
			e.onTokenRejected(context.WithoutCancel(ctx), st)
			return
		}
		e.metricInc(MetricBackgroundSyncFailure)
		e.logger.Debug("background sync failed", "error", err)
		return
	}
	if !e.applyProfile(context.WithoutCancel(ctx), st.epoch, profile) {
		e.metricInc(MetricBackgroundSyncDiscarded)
		e.logger.Debug("background sync result discarded, session changed")
		return
	}
	e.metricInc(MetricBackgroundSyncSuccess)
}

// armSync schedules the next periodic sync, replacing any pending one.
func (e *Engine) armSync() {
	if !e.config.Sync.Enabled || e.config.Sync.Interval <= 0 || e.identity == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.state.status != StatusAuthenticated {
		return
	}
	e.stopSyncLocked()
	gen := e.syncGen
	e.syncTimer = time.AfterFunc(e.config.Sync.Interval, func() { e.onSyncTimer(gen) })
}

func (e *Engine) stopSyncLocked() {
	e.syncGen++
	if e.syncTimer != nil {
		e.syncTimer.Stop()
		e.syncTimer = nil
	}
}

func (e *Engine) onSyncTimer(gen uint64) {
	e.mu.Lock()
	if e.closed || gen != e.syncGen || e.state.status != StatusAuthenticated {
		e.mu.Unlock()
		return
	}
	ctx := e.bgCtx
	st := e.state
	e.bgWG.Add(1)
	e.mu.Unlock()
	defer e.bgWG.Done()

	e.syncOnce(ctx, st)

	e.mu.Lock()
	rearm := !e.closed && gen == e.syncGen
	e.mu.Unlock()
	if rearm {
		e.armSync()
	}
}
