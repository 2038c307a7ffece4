package goSession

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

func shortLivedJWT(clock *testClock) func() string {
	return func() string {
		claims := jwtlib.RegisteredClaims{
			Subject:   "42",
			IssuedAt:  jwtlib.NewNumericDate(clock.Now()),
			ExpiresAt: jwtlib.NewNumericDate(clock.Now().Add(time.Minute)),
		}
		tok, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("issuer-key"))
		if err != nil {
			panic(err)
		}
		return tok
	}
}

func TestUnlockWithExpiredTokenReauthenticates(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.identity.issue = shortLivedJWT(h.clock)
	loginAlice(t, h)
	first, _ := h.creds().Token(ctx)

	if err := h.engine.Logout(ctx, false); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(10 * time.Minute)
	h.identity.resetCalls()

	if !h.engine.UnlockLocal(ctx, "secret1") {
		t.Fatalf("unlock failed: %v", h.engine.Snapshot().Err)
	}
	if h.identity.count("login") != 1 {
		t.Fatalf("expected a server login for the expired token, got %d", h.identity.count("login"))
	}
	if second, _ := h.creds().Token(ctx); second == first {
		t.Fatal("expired token not replaced")
	}
}

func TestUnlockWithExpiredTokenOfflineStaysLocal(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.identity.issue = shortLivedJWT(h.clock)
	loginAlice(t, h)
	h.engine.SetOnline(ctx, false)
	if err := h.engine.Logout(ctx, false); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(10 * time.Minute)
	h.identity.resetCalls()

	if !h.engine.UnlockLocal(ctx, "secret1") {
		t.Fatalf("offline unlock failed: %v", h.engine.Snapshot().Err)
	}
	if h.identity.total() != 0 {
		t.Fatal("offline unlock reached the server")
	}
}

func TestUnlockWithExpiredTokenRejectedByServer(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.identity.issue = shortLivedJWT(h.clock)
	loginAlice(t, h)
	if err := h.engine.Logout(ctx, false); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(10 * time.Minute)
	h.identity.setPassword("alice", "rotated")

	if h.engine.UnlockLocal(ctx, "secret1") {
		t.Fatal("unlock succeeded with a password the server no longer accepts")
	}
	snap := h.engine.Snapshot()
	if snap.Status != StatusLocked || !errors.Is(snap.Err, ErrInvalidCredentials) {
		t.Fatalf("unexpected state %v err %v", snap.Status, snap.Err)
	}
	if _, ok := h.creds().Verifier(ctx); ok {
		t.Fatal("stale verifier kept after server rejection")
	}
}

func TestLockedUnlockPastCacheTTLRequiresLogin(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	loginAlice(t, h)
	h.engine.SetOnline(ctx, false)
	if err := h.engine.Logout(ctx, false); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(h.cfg.Session.CacheTTL + time.Hour)

	if h.engine.IsLocked() || h.engine.HasFreshCachedSession(ctx) {
		t.Fatal("lock-screen offered past the cache TTL")
	}
	if h.engine.UnlockLocal(ctx, "secret1") {
		t.Fatal("local unlock accepted an expired credential")
	}
	snap := h.engine.Snapshot()
	if snap.Status != StatusAnonymous || !errors.Is(snap.Err, ErrSessionExpired) {
		t.Fatalf("unexpected state %v err %v", snap.Status, snap.Err)
	}
	if _, ok := h.creds().Token(ctx); ok {
		t.Fatal("expired token left in store")
	}
	if _, ok := h.creds().Verifier(ctx); ok {
		t.Fatal("expired verifier left in store")
	}
	if got := h.engine.MetricsSnapshot().Counters[MetricSessionExpired]; got != 1 {
		t.Fatalf("expected one expiry, got %d", got)
	}
	if h.engine.UnlockLocal(ctx, "secret1") {
		t.Fatal("second unlock succeeded without a credential")
	}

	h.engine.SetOnline(ctx, true)
	loginAlice(t, h)
	if !h.engine.IsAuthenticated() {
		t.Fatalf("login after expiry failed: %v", h.engine.Status())
	}
}

func TestUnlockOverlongPasswordCountsAsMiss(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	loginAlice(t, h)
	h.engine.SetOnline(ctx, false)
	if err := h.engine.Logout(ctx, false); err != nil {
		t.Fatal(err)
	}

	overlong := strings.Repeat("x", 2048)
	if h.engine.UnlockLocal(ctx, overlong) {
		t.Fatal("overlong password unlocked the session")
	}
	if err := h.engine.Snapshot().Err; !errors.Is(err, ErrUnlockFailed) {
		t.Fatalf("expected ErrUnlockFailed, got %v", err)
	}
	if got := h.engine.MetricsSnapshot().Counters[MetricStorageReadFailure]; got != 0 {
		t.Fatalf("overlong input reported as storage failure %d times", got)
	}
	if _, ok := h.creds().Verifier(ctx); !ok {
		t.Fatal("verifier dropped after an overlong attempt")
	}
	if !h.engine.UnlockLocal(ctx, "secret1") {
		t.Fatalf("correct password rejected after an overlong attempt: %v", h.engine.Snapshot().Err)
	}
}
