//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"testing"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/store"
)

// restart simulates the host process exiting and a new one starting on
// the same credential store.
func restart(t *testing.T, e *goSession.Engine, backend store.Backend, baseURL string, clock *manualClock, away time.Duration) *goSession.Engine {
	t.Helper()
	e.HandleHostSignal(context.Background(), goSession.SignalExiting)
	e.Close()
	clock.Advance(away)
	next := newEngine(t, backend, baseURL, clock.Now)
	t.Cleanup(next.Close)
	return next
}

func TestRedisSessionLifecycle(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			ctx := context.Background()
			is := newIdentityServer(t)
			backend := store.NewRedisBackend(mode.setup(t))
			clock := newManualClock()

			e := newEngine(t, backend, is.URL, clock.Now)
			if err := e.Login(ctx, "alice", "secret1"); err != nil {
				t.Fatalf("login: %v", err)
			}

			t.Run("quick return restores", func(t *testing.T) {
				e = restart(t, e, backend, is.URL, clock, time.Minute)
				if e.Status() != goSession.StatusAuthenticated {
					t.Fatalf("expected authenticated after quick return, got %v", e.Status())
				}
				if u := e.CurrentUser(); u == nil || u.Username != "alice" {
					t.Fatalf("unexpected user %+v", u)
				}
			})

			t.Run("long absence locks", func(t *testing.T) {
				e = restart(t, e, backend, is.URL, clock, 10*time.Minute)
				snap := e.Snapshot()
				if snap.Status != goSession.StatusLocked || snap.LockReason != goSession.LockAbsence {
					t.Fatalf("expected absence lock, got %v/%v", snap.Status, snap.LockReason)
				}
			})

			t.Run("lock survives restart", func(t *testing.T) {
				e = restart(t, e, backend, is.URL, clock, time.Second)
				if e.Status() != goSession.StatusLocked {
					t.Fatalf("lock lifted by restart: %v", e.Status())
				}
			})

			t.Run("local unlock", func(t *testing.T) {
				before := is.logins.Load()
				if !e.UnlockLocal(ctx, "secret1") {
					t.Fatalf("unlock failed: %v", e.Snapshot().Err)
				}
				if is.logins.Load() != before {
					t.Fatal("local unlock reached the server")
				}
			})

			t.Run("manual logout blocks restore", func(t *testing.T) {
				if err := e.Logout(ctx, true); err != nil {
					t.Fatal(err)
				}
				e = restart(t, e, backend, is.URL, clock, time.Second)
				if e.Status() != goSession.StatusAnonymous {
					t.Fatalf("expected anonymous, got %v", e.Status())
				}
				if e.ForceRestore(ctx) {
					t.Fatal("force restore succeeded after manual logout")
				}
				if e.UnlockLocal(ctx, "secret1") || !errors.Is(e.Snapshot().Err, goSession.ErrManualLogout) {
					t.Fatalf("unlock after manual logout: %v", e.Snapshot().Err)
				}
			})
		})
	}
}

func TestRedisCacheExpiryWipesCredential(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			ctx := context.Background()
			is := newIdentityServer(t)
			backend := store.NewRedisBackend(mode.setup(t))
			clock := newManualClock()

			e := newEngine(t, backend, is.URL, clock.Now)
			if err := e.Login(ctx, "alice", "secret1"); err != nil {
				t.Fatalf("login: %v", err)
			}
			e = restart(t, e, backend, is.URL, clock, testConfig(is.URL).Session.CacheTTL+time.Hour)

			if e.Status() != goSession.StatusAnonymous {
				t.Fatalf("expired cache restored: %v", e.Status())
			}
			if e.HasFreshCachedSession(ctx) {
				t.Fatal("expired cache reported fresh")
			}
			creds := store.NewCredentials(backend, "it", nil)
			if _, ok := creds.Token(ctx); ok {
				t.Fatal("expired token left in store")
			}
		})
	}
}

func TestRedisServerUnlockAfterPasswordRotation(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			ctx := context.Background()
			is := newIdentityServer(t)
			backend := store.NewRedisBackend(mode.setup(t))
			clock := newManualClock()

			e := newEngine(t, backend, is.URL, clock.Now)
			t.Cleanup(e.Close)
			if err := e.Login(ctx, "alice", "secret1"); err != nil {
				t.Fatalf("login: %v", err)
			}
			if err := e.Logout(ctx, false); err != nil {
				t.Fatal(err)
			}

			// The server accepts the new password; the local verifier
			// still holds the old one, so unlock falls back to the server.
			is.password.Store("rotated1")
			if !e.UnlockLocal(ctx, "rotated1") {
				t.Fatalf("server fallback unlock failed: %v", e.Snapshot().Err)
			}
			if e.Status() != goSession.StatusAuthenticated {
				t.Fatalf("expected authenticated, got %v", e.Status())
			}
			if err := e.Logout(ctx, false); err != nil {
				t.Fatal(err)
			}
			if !e.UnlockLocal(ctx, "rotated1") {
				t.Fatalf("verifier not replaced after server unlock: %v", e.Snapshot().Err)
			}
		})
	}
}
