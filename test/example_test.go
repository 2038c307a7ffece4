package test

import (
	"context"
	"errors"
	"log/slog"
	"os"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/identity"
	"github.com/MrEthical07/goSession/store"
)

// ExampleNew demonstrates engine construction with production-style dependencies.
func ExampleNew() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg := goSession.DefaultConfig()
	cfg.Identity.BaseURL = "https://id.example.com/api"

	client, err := identity.New(cfg.Identity, logger)
	if err != nil {
		return
	}
	backend, err := store.NewFileBackend(os.ExpandEnv("$HOME/.myapp/session"))
	if err != nil {
		return
	}

	engine, _ := goSession.New().
		WithConfig(cfg).
		WithBackend(backend).
		WithIdentityClient(client).
		WithLogger(logger).
		Build()
	_ = engine
}

// ExampleEngine_Login shows a login call and error classification.
func ExampleEngine_Login() {
	var engine *goSession.Engine
	err := engine.Login(context.Background(), "alice@example.com", "password")
	switch {
	case err == nil:
	case errors.Is(err, goSession.ErrInvalidCredentials):
		// ask again
	case goSession.IsTransient(err):
		// offer a retry
	}
}

// ExampleEngine_Subscribe shows how a UI layer follows state changes.
func ExampleEngine_Subscribe() {
	var engine *goSession.Engine
	cancel := engine.Subscribe(func(s goSession.Snapshot) {
		if s.Status == goSession.StatusLocked {
			_ = s.LockReason
		}
	})
	defer cancel()
}

// ExampleEngine_MetricsSnapshot shows how to read in-process metrics counters.
func ExampleEngine_MetricsSnapshot() {
	var engine *goSession.Engine
	snapshot := engine.MetricsSnapshot()
	_ = snapshot.Counters[goSession.MetricLoginSuccess]
}
