//go:build integration
// +build integration

package test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/identity"
	"github.com/MrEthical07/goSession/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// redisMode describes which Redis backend the suite is running against.
type redisMode struct {
	name  string
	setup func(t *testing.T) redis.UniversalClient
}

// redisModes returns miniredis, plus a real standalone Redis when
// REDIS_ADDR is set (e.g. "127.0.0.1:6379").
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{{
		name: "miniredis",
		setup: func(t *testing.T) redis.UniversalClient {
			t.Helper()
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			return rdb
		},
	}}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "redis",
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				if err := rdb.Ping(t.Context()).Err(); err != nil {
					t.Skipf("redis at %s unreachable: %v", addr, err)
				}
				t.Cleanup(func() {
					_ = rdb.FlushDB(t.Context()).Err()
					_ = rdb.Close()
				})
				return rdb
			},
		})
	}
	return modes
}

type identityServer struct {
	*httptest.Server
	logins atomic.Int32
	// password accepted for alice; changeable mid-test
	password atomic.Value
}

func newIdentityServer(t *testing.T) *identityServer {
	t.Helper()
	is := &identityServer{}
	is.password.Store("secret1")

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		is.logins.Add(1)
		var body struct {
			Identifier string `json:"identifier"`
			Password   string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Identifier != "alice" || body.Password != is.password.Load().(string) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, map[string]any{"token": "tok-alice"})
	})
	mux.HandleFunc("GET /auth/user", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "tok-alice" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, map[string]any{"data": map[string]any{
			"id": "42", "username": "alice", "permission": "CRU",
		}})
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	is.Server = httptest.NewServer(mux)
	t.Cleanup(is.Close)
	return is
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func testConfig(baseURL string) goSession.Config {
	cfg := goSession.DefaultConfig()
	cfg.Session.Namespace = "it"
	cfg.Sync.Enabled = false
	cfg.Identity.BaseURL = baseURL
	cfg.Identity.RetryWaitMin = time.Millisecond
	cfg.Identity.RetryWaitMax = 2 * time.Millisecond
	cfg.Password.Memory = 8 * 1024
	return cfg
}

// newEngine builds and starts an engine the way a fresh process would.
func newEngine(t *testing.T, backend store.Backend, baseURL string, now func() time.Time) *goSession.Engine {
	t.Helper()
	cfg := testConfig(baseURL)
	client, err := identity.New(cfg.Identity, nil)
	if err != nil {
		t.Fatalf("identity client: %v", err)
	}
	b := goSession.New().
		WithConfig(cfg).
		WithBackend(backend).
		WithIdentityClient(client)
	if now != nil {
		b = b.WithClock(now)
	}
	e, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := e.Start(t.Context()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return e
}

// manualClock is a settable clock shared by consecutive engines.
type manualClock struct{ now atomic.Int64 }

func newManualClock() *manualClock {
	c := &manualClock{}
	c.now.Store(time.Now().UnixNano())
	return c
}

func (c *manualClock) Now() time.Time { return time.Unix(0, c.now.Load()) }

func (c *manualClock) Advance(d time.Duration) { c.now.Add(int64(d)) }
