// Package identity implements goSession.IdentityClient over the identity
// server's HTTP+JSON API.
//
// Each operation class (login, profile, logout, recovery) has its own
// retry budget taken from goSession.IdentityConfig. Only transport errors,
// 429 and 5xx replies are retried; credential rejections are returned on
// the first reply.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	pathLogin            = "/auth/login"
	pathUser             = "/auth/user"
	pathLogout           = "/auth/logout"
	pathProfile          = "/auth/profil/info"
	pathChangePassword   = "/auth/change-password"
	pathForgotPassword   = "/auth/forgot-password"
	pathVerifyResetToken = "/auth/verify-reset-token"
	pathResetPassword    = "/auth/reset-password"

	maxResponseSize = 1 << 20
)

var errNoBaseURL = errors.New("identity: base url required")

// Client talks to one identity server.
type Client struct {
	base   *url.URL
	logger *slog.Logger

	login    *retryablehttp.Client
	profile  *retryablehttp.Client
	logout   *retryablehttp.Client
	recovery *retryablehttp.Client
}

// Option customises a Client.
type Option func(*options)

type options struct {
	httpClient *http.Client
}

// WithHTTPClient sets the underlying transport client, for example one
// from httptest.Server.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

var _ goSession.IdentityClient = (*Client)(nil)

// New builds a Client for cfg.BaseURL. The logger receives retry
// diagnostics; nil discards them.
func New(cfg goSession.IdentityConfig, logger *slog.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errNoBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("identity: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("identity: unsupported scheme %q", base.Scheme)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "identity_client")

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{base: base, logger: logger}
	c.login = newRetryClient(o.httpClient, logger, cfg.LoginAttempts, cfg)
	c.profile = newRetryClient(o.httpClient, logger, cfg.ProfileAttempts, cfg)
	c.logout = newRetryClient(o.httpClient, logger, 1, cfg)
	c.recovery = newRetryClient(o.httpClient, logger, cfg.RecoveryAttempts, cfg)
	return c, nil
}

func newRetryClient(hc *http.Client, logger *slog.Logger, attempts int, cfg goSession.IdentityConfig) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	if hc != nil {
		rc.HTTPClient = hc
	}
	rc.Logger = logger
	rc.RetryMax = max(attempts-1, 0)
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.CheckRetry = retryablehttp.DefaultRetryPolicy
	// Hand the final reply back instead of a "giving up" error so the
	// status can be classified.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return rc
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, identifier, password string) (string, error) {
	var data json.RawMessage
	err := c.do(ctx, c.login, request{
		op:     "login",
		method: http.MethodPost,
		path:   pathLogin,
		body:   loginRequest{Identifier: identifier, Password: password},
		auth:   authCredentials,
	}, &data)
	if err != nil {
		return "", err
	}
	token, err := decodeToken(data)
	if err != nil {
		return "", fmt.Errorf("%w: login: %v", goSession.ErrConnectionFailed, err)
	}
	return token, nil
}

// FetchProfile loads the principal behind token.
func (c *Client) FetchProfile(ctx context.Context, token string) (goSession.Profile, error) {
	var p goSession.Profile
	err := c.do(ctx, c.profile, request{
		op:     "fetch profile",
		method: http.MethodGet,
		path:   pathUser,
		query:  url.Values{"token": {token}},
		token:  token,
		auth:   authToken,
	}, &p)
	return p, err
}

// Logout tells the server the token is no longer used. A single attempt
// is made.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, c.logout, request{
		op:     "logout",
		method: http.MethodPost,
		path:   pathLogout,
		token:  token,
		auth:   authToken,
	}, nil)
}

// UpdateProfile sends fields and returns the updated profile.
func (c *Client) UpdateProfile(ctx context.Context, token string, fields goSession.ProfileUpdate) (goSession.Profile, error) {
	var p goSession.Profile
	err := c.do(ctx, c.profile, request{
		op:     "update profile",
		method: http.MethodPut,
		path:   pathProfile,
		body:   fields,
		token:  token,
		auth:   authToken,
	}, &p)
	return p, err
}

// ChangePassword changes the password of the principal behind token.
func (c *Client) ChangePassword(ctx context.Context, token string, change goSession.PasswordChange) error {
	return c.do(ctx, c.login, request{
		op:     "change password",
		method: http.MethodPut,
		path:   pathChangePassword,
		query:  url.Values{"token": {token}},
		body:   change,
		token:  token,
		auth:   authToken,
	}, nil)
}

func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.do(ctx, c.recovery, request{
		op:     "forgot password",
		method: http.MethodPost,
		path:   pathForgotPassword,
		body:   emailRequest{Email: email},
	}, nil)
}

func (c *Client) VerifyResetToken(ctx context.Context, resetToken string) error {
	return c.do(ctx, c.recovery, request{
		op:     "verify reset token",
		method: http.MethodPost,
		path:   pathVerifyResetToken,
		body:   tokenRequest{Token: resetToken},
	}, nil)
}

func (c *Client) ResetPassword(ctx context.Context, reset goSession.PasswordReset) error {
	return c.do(ctx, c.recovery, request{
		op:     "reset password",
		method: http.MethodPost,
		path:   pathResetPassword,
		body:   reset,
	}, nil)
}

type authFailure int

const (
	authNone authFailure = iota
	authCredentials
	authToken
)

type request struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any
	token  string
	// auth selects the sentinel for a 401/403 reply.
	auth authFailure
}

func (c *Client) endpoint(r request) string {
	u := *c.base
	u.Path = c.base.Path + r.path
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, rc *retryablehttp.Client, r request, out any) error {
	var body any
	if r.body != nil {
		raw, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("identity: %s: encode request: %w", r.op, err)
		}
		body = raw
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, r.method, c.endpoint(r), body)
	if err != nil {
		return fmt.Errorf("identity: %s: %w", r.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	start := time.Now()
	resp, err := rc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", goSession.ErrConnectionFailed, r.op, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: %s: read response: %v", goSession.ErrConnectionFailed, r.op, err)
	}
	c.logger.Debug("identity request", "op", r.op, "status", resp.StatusCode, "duration", time.Since(start))

	if err := classify(r, resp.StatusCode, payload); err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(unwrapData(payload), out); err != nil {
		return fmt.Errorf("%w: %s: decode response: %v", goSession.ErrConnectionFailed, r.op, err)
	}
	return nil
}

// classify maps a reply status onto the error taxonomy.
func classify(r request, status int, payload []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		switch r.auth {
		case authCredentials:
			return goSession.ErrInvalidCredentials
		case authToken:
			return goSession.ErrTokenRejected
		}
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: %s: status %d", goSession.ErrConnectionFailed, r.op, status)
	}
	return &goSession.ServerError{
		Op:      r.op,
		Status:  status,
		Message: errorMessage(payload),
		Kind:    goSession.ErrRequestRejected,
	}
}

// unwrapData returns the value under a top-level "data" key, or the whole
// payload when there is no envelope.
func unwrapData(payload []byte) []byte {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(payload, &env); err != nil {
		return payload
	}
	if data, ok := env["data"]; ok && len(data) > 0 && string(data) != "null" {
		return data
	}
	return payload
}

func decodeToken(data json.RawMessage) (string, error) {
	var token string
	if err := json.Unmarshal(data, &token); err == nil {
		if token == "" {
			return "", goSession.ErrTokenMissing
		}
		return token, nil
	}
	var obj struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", fmt.Errorf("unexpected token payload: %w", err)
	}
	if obj.Token != "" {
		return obj.Token, nil
	}
	if obj.AccessToken != "" {
		return obj.AccessToken, nil
	}
	return "", goSession.ErrTokenMissing
}

func errorMessage(payload []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}
