package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/config"
	"github.com/MrEthical07/goSession/identity"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// app owns the per-invocation engine and the resources behind it.
type app struct {
	configPath string
	envFile    string
	output     string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	settings     *config.Settings
	logger       *slog.Logger
	engine       *goSession.Engine
	closeBackend func() error
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(context.Background())
	a.close(context.Background())
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		if errors.Is(err, errDenied) {
			return 3
		}
		return 1
	}
	return 0
}

var errDenied = errors.New("denied")

// open loads configuration and starts the engine. It runs before every
// command.
func (a *app) open(cmd *cobra.Command) error {
	if err := loadEnvFile(a.envFile); err != nil {
		return err
	}
	settings, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.settings = settings

	logger, err := newLogger(a.stderr, settings.Log)
	if err != nil {
		return err
	}
	a.logger = logger

	backend, closeBackend, err := openBackend(cmd.Context(), settings.Store)
	if err != nil {
		return err
	}
	a.closeBackend = closeBackend

	builder := goSession.New().
		WithConfig(settings.Config).
		WithBackend(backend).
		WithLogger(logger)
	if settings.Identity.BaseURL != "" {
		client, err := identity.New(settings.Identity, logger)
		if err != nil {
			return err
		}
		builder = builder.WithIdentityClient(client)
	}
	if settings.Audit.Enabled {
		builder = builder.WithAuditSink(goSession.NewSlogSink(logger))
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	a.engine = engine
	return engine.Start(cmd.Context())
}

// close records exit markers and releases the engine and backend. It is
// safe to call when open failed part way.
func (a *app) close(ctx context.Context) {
	if a.engine != nil {
		a.engine.HandleHostSignal(ctx, goSession.SignalExiting)
		a.engine.Close()
		a.engine = nil
	}
	if a.closeBackend != nil {
		if err := a.closeBackend(); err != nil && a.logger != nil {
			a.logger.Warn("credential store close failed", "error", err)
		}
		a.closeBackend = nil
	}
}

// loadEnvFile applies a .env file without overriding variables already
// set. A missing default file is ignored; a missing explicit one is not.
func loadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
		return nil
	}
	_ = godotenv.Load()
	return nil
}

func newLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
