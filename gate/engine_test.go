package gate_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/gate"
	"github.com/MrEthical07/goSession/store"
)

func seedCachedSession(t *testing.T, backend store.Backend, ns string, cachedAt time.Time) {
	t.Helper()
	ctx := context.Background()
	creds := store.NewCredentials(backend, ns, nil)
	raw, err := json.Marshal(goSession.Profile{ID: "42", Username: "alice", Permission: "CRU"})
	if err != nil {
		t.Fatal(err)
	}
	if err := creds.SetToken(ctx, "tok-1"); err != nil {
		t.Fatal(err)
	}
	if err := creds.SetCachedProfile(ctx, store.CachedProfile{Profile: raw, CachedAt: cachedAt}); err != nil {
		t.Fatal(err)
	}
}

func buildEngine(t *testing.T, backend store.Backend) *goSession.Engine {
	t.Helper()
	cfg := goSession.DefaultConfig()
	cfg.Sync.Enabled = false
	e, err := goSession.New().WithConfig(cfg).WithBackend(backend).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func TestColdReloadOntoLockScreen(t *testing.T) {
	backend := store.NewMemoryBackend()
	seedCachedSession(t, backend, goSession.DefaultConfig().Session.Namespace, time.Now())

	// Not started: in-memory state is still Anonymous.
	e := buildEngine(t, backend)
	g := gate.New(e, gate.DefaultRoutes())
	ctx := context.Background()

	if d := g.RequireLockScreenEligible(ctx, "/lock"); !d.Admit {
		t.Fatalf("fresh cached session denied lock-screen: %+v", d)
	}
	if d := g.RequireAuthenticated(ctx, "/reports"); d.Admit {
		t.Fatal("unhydrated engine admitted to protected route")
	}
}

func TestStaleCacheNotLockScreenEligible(t *testing.T) {
	backend := store.NewMemoryBackend()
	ttl := goSession.DefaultConfig().Session.CacheTTL
	seedCachedSession(t, backend, goSession.DefaultConfig().Session.Namespace, time.Now().Add(-ttl-time.Minute))

	g := gate.New(buildEngine(t, backend), gate.Routes{})
	d := g.RequireLockScreenEligible(context.Background(), "/lock")
	if d.Admit || d.Redirect != "/login" {
		t.Fatalf("stale cache admitted to lock-screen: %+v", d)
	}
}

func TestHydratedSessionPermissions(t *testing.T) {
	backend := store.NewMemoryBackend()
	seedCachedSession(t, backend, goSession.DefaultConfig().Session.Namespace, time.Now())

	e := buildEngine(t, backend)
	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	g := gate.New(e, gate.Routes{})

	if d := g.RequireAuthenticated(ctx, "/reports"); !d.Admit {
		t.Fatalf("hydrated session denied: %+v", d)
	}
	if d := g.RequireGuest(ctx, "/login"); d.Admit {
		t.Fatal("hydrated session admitted to guest route")
	}
	if d := g.RequirePermission("CR")(ctx, "/items"); !d.Admit {
		t.Fatalf("granted permission denied: %+v", d)
	}
	if d := g.RequirePermission("D")(ctx, "/items"); d.Admit {
		t.Fatal("delete admitted without grant")
	}

	if err := e.Logout(ctx, false); err != nil {
		t.Fatal(err)
	}
	if d := g.RequireLockScreenEligible(ctx, "/lock"); !d.Admit {
		t.Fatalf("locked session denied lock-screen: %+v", d)
	}
	if d := g.RequirePermission("R")(ctx, "/items"); d.Admit {
		t.Fatal("locked session passed permission check")
	}

	if err := e.Logout(ctx, true); err != nil {
		t.Fatal(err)
	}
	if d := g.RequireLockScreenEligible(ctx, "/lock"); d.Admit {
		t.Fatal("manual logout left the lock-screen reachable")
	}
}
