package goSession

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/goSession/activity"
	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/internal/limiters"
	"github.com/MrEthical07/goSession/password"
	"github.com/MrEthical07/goSession/permission"
	"github.com/MrEthical07/goSession/store"
)

// Engine is the session state machine. It is the only writer of the
// in-memory session state and of the token, profile cache, verifier and
// lock marker keys of the credential store.
//
// Lock order: persistMu, then mu. notifyMu is never taken while mu is held.
// No engine lock is held while calling into the activity monitor.
type Engine struct {
	config   Config
	logger   *slog.Logger
	creds    *store.Credentials
	identity IdentityClient
	hasher   *password.Argon2
	monitor  *activity.Monitor
	limiter  *limiters.UnlockLimiter
	metrics  *Metrics
	audit    *internalaudit.Dispatcher
	now      func() time.Time

	// persistMu makes a state transition and its credential store writes
	// one step with respect to other transitions.
	persistMu sync.Mutex

	mu          sync.Mutex
	state       sessionState
	version     uint64
	started     bool
	closed      bool
	bgCtx       context.Context
	bgCancel    context.CancelFunc
	syncTimer   *time.Timer
	syncGen     uint64
	expiryTimer *time.Timer
	expiryGen   uint64
	// logoutGen counts manual logouts. A login only commits when no
	// manual logout happened while it was in flight.
	logoutGen   uint64
	stopMonitor func()

	bgWG sync.WaitGroup

	notifyMu sync.Mutex
	subs     map[uint64]*subscriber
	nextSub  uint64
}

type sessionState struct {
	status       Status
	user         *Profile
	token        string
	cachedAt     time.Time
	loading      int
	err          error
	online       bool
	lastSync     time.Time
	lockReason   LockReason
	idle         bool
	manualLogout bool
	// epoch names one authenticated session. Background work captures it
	// and may only apply its result while it is unchanged.
	epoch string
}

type subscriber struct {
	fn   func(Snapshot)
	last uint64
}

func (e *Engine) ready() error {
	if e == nil {
		return ErrEngineNotReady
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) current() sessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// update applies fn to the state and publishes the result.
func (e *Engine) update(fn func(*sessionState)) Snapshot {
	snap, _ := e.updateIf(nil, fn)
	return snap
}

// updateIf applies fn only when cond holds for the state as it is now.
func (e *Engine) updateIf(cond func(*sessionState) bool, fn func(*sessionState)) (Snapshot, bool) {
	e.mu.Lock()
	if cond != nil && !cond(&e.state) {
		e.mu.Unlock()
		return Snapshot{}, false
	}
	fn(&e.state)
	e.version++
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.publish(snap)
	return snap, true
}

func (e *Engine) publish(snap Snapshot) {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	for _, sub := range e.subs {
		if snap.Version <= sub.last {
			continue
		}
		sub.last = snap.Version
		sub.fn(snap)
	}
}

func (e *Engine) snapshotLocked() Snapshot {
	s := e.state
	snap := Snapshot{
		Version:         e.version,
		Status:          s.status,
		IsAuthenticated: s.status == StatusAuthenticated,
		IsLoading:       s.loading > 0,
		Err:             s.err,
		Error:           userMessage(s.err),
		IsOnline:        s.online,
		LastSync:        s.lastSync,
		LockReason:      s.lockReason,
		IsIdle:          s.idle,
		ManualLogout:    s.manualLogout,
	}
	if s.user != nil {
		snap.User = s.user.clone()
	}
	return snap
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.status
}

// IsAuthenticated reports an authenticated session whose credential is
// still inside its cache TTL.
func (e *Engine) IsAuthenticated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.status == StatusAuthenticated && e.freshLocked()
}

func (e *Engine) IsLocked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.status == StatusLocked && e.freshLocked()
}

// Subscribe registers fn for state changes and delivers the current
// snapshot immediately. Each subscriber sees strictly increasing versions;
// a snapshot superseded before delivery is skipped.
//
// fn runs synchronously on the goroutine that changed the state. It may
// read the engine but must not call operations that change it.
func (e *Engine) Subscribe(fn func(Snapshot)) (cancel func()) {
	e.notifyMu.Lock()
	id := e.nextSub
	e.nextSub++
	sub := &subscriber{fn: fn}
	e.subs[id] = sub

	snap := e.Snapshot()
	sub.last = snap.Version
	fn(snap)
	e.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.notifyMu.Lock()
			delete(e.subs, id)
			e.notifyMu.Unlock()
		})
	}
}

// CurrentUser returns the cached principal, or nil when anonymous. While
// locked the principal is still returned so a lock-screen can name it.
func (e *Engine) CurrentUser() *Profile {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.user == nil {
		return nil
	}
	return e.state.user.clone()
}

// IsTokenValid reports whether the held credential is inside its cache
// TTL. It never contacts the network.
func (e *Engine) IsTokenValid() bool {
	e.mu.Lock()
	st := e.state
	e.mu.Unlock()
	if st.token == "" {
		return false
	}
	return flows.CacheFresh(e.now(), st.cachedAt, e.config.Session.CacheTTL)
}

func (e *Engine) WasManualLogout() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.manualLogout
}

// HasPermission checks required against the permission code of the
// authenticated principal. A credential past its cache TTL grants nothing. "ALL" granted satisfies everything; otherwise
// every operation in required must be granted.
func (e *Engine) HasPermission(required string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.status != StatusAuthenticated || e.state.user == nil || !e.freshLocked() {
		return false
	}
	return permission.Satisfies(e.state.user.Permission, required)
}

// HasFreshCachedSession reports whether a lock-screen may be shown: the
// engine is locked, or the store holds a fresh credential and profile and
// the user did not log out explicitly.
func (e *Engine) HasFreshCachedSession(ctx context.Context) bool {
	st := e.current()
	if st.status == StatusLocked {
		return flows.CacheFresh(e.now(), st.cachedAt, e.config.Session.CacheTTL)
	}
	if st.manualLogout {
		return false
	}
	_, ok := e.loadCached(ctx)
	return ok
}

// NotifyActivity forwards a user interaction to the activity monitor.
// It reports whether the interaction was outside the debounce window. A
// session found past its cache TTL is expired first.
func (e *Engine) NotifyActivity() bool {
	if e.ready() == nil {
		e.expireStale(context.Background())
	}
	return e.monitor.OnActivity()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

// Close stops timers, cancels background work, waits for it to finish and
// flushes the audit dispatcher. Persisted state is left as is.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.bgCancel()
	e.stopSyncLocked()
	e.stopExpiryLocked()
	stop := e.stopMonitor
	e.stopMonitor = nil
	e.mu.Unlock()

	if stop != nil {
		stop()
	}
	e.monitor.Stop()
	e.bgWG.Wait()
	e.audit.Close()
}

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

func (e *Engine) beginLoading() {
	e.update(func(s *sessionState) {
		s.loading++
		s.err = nil
	})
}

func (e *Engine) endLoading(err error) {
	e.update(func(s *sessionState) {
		if s.loading > 0 {
			s.loading--
		}
		s.err = err
	})
}

func (e *Engine) setError(err error) {
	e.update(func(s *sessionState) {
		s.err = err
	})
}

// goBackground runs fn on the background context of the current session
// unless the engine is closed.
func (e *Engine) goBackground(fn func(ctx context.Context, st sessionState)) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	ctx := e.bgCtx
	st := e.state
	e.bgWG.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.bgWG.Done()
		fn(ctx, st)
	}()
	return true
}

// cancelBackground aborts in-flight background work and the sync timer.
func (e *Engine) cancelBackground() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.bgCancel()
	e.bgCtx, e.bgCancel = context.WithCancel(context.Background())
	e.stopSyncLocked()
}
