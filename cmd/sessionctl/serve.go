package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/gate"
	"github.com/MrEthical07/goSession/middleware"
	promexport "github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var listen string
	var adminPermission string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a local session console over HTTP",
		Long: `serve keeps the engine running behind a small JSON console: login and
lock-screen routes, a protected home, a permission-guarded /admin and
/metrics. Route paths come from the routes config section.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := &http.Server{
				Addr:              listen,
				Handler:           newServeMux(a.engine, a.settings.Routes, adminPermission, a.logger),
				ReadHeaderTimeout: 5 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			a.logger.Info("session console listening", "addr", listen)

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}
			a.engine.HandleHostSignal(context.WithoutCancel(ctx), goSession.SignalHidden)
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&adminPermission, "admin-permission", "ALL", "permission code required for /admin")
	return cmd
}

type console struct {
	engine *goSession.Engine
	gate   *gate.Gate
	logger *slog.Logger
}

type credentialsBody struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// newServeMux wires the gate predicates to the console routes.
func newServeMux(e *goSession.Engine, routes gate.Routes, adminPermission string, logger *slog.Logger) http.Handler {
	g := gate.New(e, routes)
	routes = g.Routes()
	c := &console{engine: e, gate: g, logger: logger}

	guest := middleware.RequireGuest(g)
	authed := middleware.RequireAuthenticated(g)
	lockScreen := middleware.RequireLockScreen(g)

	mux := http.NewServeMux()
	mux.Handle("GET "+routes.Login, guest(http.HandlerFunc(c.showStatus)))
	mux.Handle("POST "+routes.Login, guest(http.HandlerFunc(c.login)))
	mux.Handle("GET "+routes.Lock, lockScreen(http.HandlerFunc(c.showStatus)))
	mux.Handle("POST "+routes.Lock, lockScreen(http.HandlerFunc(c.unlock)))
	mux.Handle("POST /logout", authed(http.HandlerFunc(c.logout)))
	mux.Handle("GET "+exactPath(routes.Home), authed(c.active(http.HandlerFunc(c.showStatus))))
	mux.Handle("GET /admin", middleware.RequirePermission(g, adminPermission)(c.active(http.HandlerFunc(c.showProfile))))
	mux.HandleFunc("GET "+routes.Unauthorized, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
	})
	mux.Handle("GET /metrics", promexport.NewExporter(e).Handler())
	return mux
}

// exactPath stops "/" from matching every path.
func exactPath(p string) string {
	if p == "/" {
		return "/{$}"
	}
	return p
}

// active reports user activity for every admitted request.
func (c *console) active(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.engine.NotifyActivity()
		next.ServeHTTP(w, r)
	})
}

func (c *console) showStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, newStatusView(c.engine.Snapshot()))
}

func (c *console) showProfile(w http.ResponseWriter, _ *http.Request) {
	user := c.engine.CurrentUser()
	if user == nil {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (c *console) login(w http.ResponseWriter, r *http.Request) {
	body, err := readCredentials(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := c.engine.Login(r.Context(), body.Identifier, body.Password); err != nil {
		c.writeError(w, err)
		return
	}
	http.Redirect(w, r, gate.NextFrom(r.URL.Query(), c.gate.Routes()), http.StatusSeeOther)
}

func (c *console) unlock(w http.ResponseWriter, r *http.Request) {
	body, err := readCredentials(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !c.engine.UnlockLocal(r.Context(), body.Password) {
		err := c.engine.Snapshot().Err
		if err == nil {
			err = goSession.ErrUnlockFailed
		}
		c.writeError(w, err)
		return
	}
	http.Redirect(w, r, c.gate.Routes().Home, http.StatusSeeOther)
}

func (c *console) logout(w http.ResponseWriter, r *http.Request) {
	if err := c.engine.Logout(r.Context(), true); err != nil {
		c.writeError(w, err)
		return
	}
	http.Redirect(w, r, c.gate.Routes().Login, http.StatusSeeOther)
}

func (c *console) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, goSession.ErrInvalidCredentials),
		errors.Is(err, goSession.ErrUnlockFailed),
		errors.Is(err, goSession.ErrCredentialsRequired):
		status = http.StatusUnauthorized
	case errors.Is(err, goSession.ErrUnlockRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, goSession.ErrConnectionFailed),
		errors.Is(err, goSession.ErrIdentityUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, goSession.ErrManualLogout),
		errors.Is(err, goSession.ErrNotLocked),
		errors.Is(err, goSession.ErrSessionChanged):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		c.logger.Error("console request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// readCredentials accepts a JSON body or an urlencoded form.
func readCredentials(w http.ResponseWriter, r *http.Request) (credentialsBody, error) {
	var body credentialsBody
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
		if err := dec.Decode(&body); err != nil {
			return body, errors.New("malformed JSON body")
		}
		return body, nil
	}
	if err := r.ParseForm(); err != nil {
		return body, errors.New("malformed form body")
	}
	body.Identifier = r.PostForm.Get("identifier")
	body.Password = r.PostForm.Get("password")
	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
