package store

import (
	"context"
	"errors"
	"log/slog"
	"unicode/utf8"
)

// Key names below the namespace. Stable across releases.
const (
	KeyToken             = "token"
	KeyProfile           = "profile"
	KeyManualLogout      = "manual_logout"
	KeyVerifier          = "verifier"
	KeyExitAt            = "exit_at"
	KeyExitAuthenticated = "exit_authenticated"
	KeyLock              = "lock"
	KeyUnlockFailures    = "unlock_failures"
)

// DefaultNamespace prefixes every key when none is configured.
const DefaultNamespace = "goSession"

// Credentials is the typed view of a Backend used by the session engine.
//
// Reads never fail: a missing key, an unreachable backend and a corrupt
// value all read as absent, and the latter two are logged. Writes return
// the backend error so the caller can decide how loudly to report it.
type Credentials struct {
	backend   Backend
	namespace string
	logger    *slog.Logger
}

func NewCredentials(backend Backend, namespace string, logger *slog.Logger) *Credentials {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Credentials{
		backend:   backend,
		namespace: namespace,
		logger:    logger.With("component", "credential_store"),
	}
}

// Key returns the fully qualified backend key for name.
func (c *Credentials) Key(name string) string {
	return c.namespace + ":" + name
}

func (c *Credentials) Token(ctx context.Context) (string, bool) {
	data, ok := c.read(ctx, KeyToken)
	if !ok || len(data) == 0 {
		return "", false
	}
	if !utf8.Valid(data) {
		c.corrupt(KeyToken, errCorruptRecord)
		return "", false
	}
	return string(data), true
}

func (c *Credentials) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("store: empty token")
	}
	return c.write(ctx, KeyToken, []byte(token))
}

func (c *Credentials) CachedProfile(ctx context.Context) (CachedProfile, bool) {
	data, ok := c.read(ctx, KeyProfile)
	if !ok {
		return CachedProfile{}, false
	}
	p, err := DecodeCachedProfile(data)
	if err != nil {
		c.corrupt(KeyProfile, err)
		return CachedProfile{}, false
	}
	return p, true
}

func (c *Credentials) SetCachedProfile(ctx context.Context, p CachedProfile) error {
	data, err := EncodeCachedProfile(p)
	if err != nil {
		return err
	}
	return c.write(ctx, KeyProfile, data)
}

// ManualLogout reports the persisted manual-logout flag. Absent means unset.
func (c *Credentials) ManualLogout(ctx context.Context) bool {
	data, ok := c.read(ctx, KeyManualLogout)
	if !ok {
		return false
	}
	v, err := decodeBool(data)
	if err != nil {
		c.corrupt(KeyManualLogout, err)
		return false
	}
	return v
}

// SetManualLogout stores the flag; clearing removes the key.
func (c *Credentials) SetManualLogout(ctx context.Context, v bool) error {
	if !v {
		return c.remove(ctx, KeyManualLogout)
	}
	return c.write(ctx, KeyManualLogout, encodeBool(true))
}

func (c *Credentials) Verifier(ctx context.Context) (string, bool) {
	data, ok := c.read(ctx, KeyVerifier)
	if !ok || len(data) == 0 {
		return "", false
	}
	return string(data), true
}

func (c *Credentials) SetVerifier(ctx context.Context, encoded string) error {
	if encoded == "" {
		return errors.New("store: empty verifier")
	}
	return c.write(ctx, KeyVerifier, []byte(encoded))
}

func (c *Credentials) RemoveVerifier(ctx context.Context) error {
	return c.remove(ctx, KeyVerifier)
}

// ExitMarkers reads both lifecycle markers. They are present only when the
// exit timestamp is; a missing or corrupt companion flag reads as false.
func (c *Credentials) ExitMarkers(ctx context.Context) (ExitMarkers, bool) {
	data, ok := c.read(ctx, KeyExitAt)
	if !ok {
		return ExitMarkers{}, false
	}
	at, err := decodeTimestamp(data)
	if err != nil {
		c.corrupt(KeyExitAt, err)
		return ExitMarkers{}, false
	}

	m := ExitMarkers{ExitedAt: at}
	if flag, ok := c.read(ctx, KeyExitAuthenticated); ok {
		v, err := decodeBool(flag)
		if err != nil {
			c.corrupt(KeyExitAuthenticated, err)
		}
		m.WasAuthenticated = v
	}
	return m, true
}

// SetExitMarkers writes the flag before the timestamp so a reader never
// sees a fresh timestamp paired with a stale flag.
func (c *Credentials) SetExitMarkers(ctx context.Context, m ExitMarkers) error {
	if err := c.write(ctx, KeyExitAuthenticated, encodeBool(m.WasAuthenticated)); err != nil {
		return err
	}
	return c.write(ctx, KeyExitAt, encodeTimestamp(m.ExitedAt))
}

func (c *Credentials) ClearExitMarkers(ctx context.Context) error {
	return errors.Join(
		c.remove(ctx, KeyExitAt),
		c.remove(ctx, KeyExitAuthenticated),
	)
}

// LockMarker returns the opaque lock reason persisted while a session is
// locked.
func (c *Credentials) LockMarker(ctx context.Context) (uint8, bool) {
	data, ok := c.read(ctx, KeyLock)
	if !ok {
		return 0, false
	}
	if len(data) != 1 || data[0] == 0 {
		c.corrupt(KeyLock, errCorruptRecord)
		return 0, false
	}
	return data[0], true
}

func (c *Credentials) SetLockMarker(ctx context.Context, reason uint8) error {
	if reason == 0 {
		return c.remove(ctx, KeyLock)
	}
	return c.write(ctx, KeyLock, []byte{reason})
}

func (c *Credentials) ClearLockMarker(ctx context.Context) error {
	return c.remove(ctx, KeyLock)
}

func (c *Credentials) UnlockFailures(ctx context.Context) (FailureWindow, bool) {
	data, ok := c.read(ctx, KeyUnlockFailures)
	if !ok {
		return FailureWindow{}, false
	}
	w, err := DecodeFailureWindow(data)
	if err != nil {
		c.corrupt(KeyUnlockFailures, err)
		return FailureWindow{}, false
	}
	return w, true
}

func (c *Credentials) SetUnlockFailures(ctx context.Context, w FailureWindow) error {
	return c.write(ctx, KeyUnlockFailures, EncodeFailureWindow(w))
}

func (c *Credentials) ClearUnlockFailures(ctx context.Context) error {
	return c.remove(ctx, KeyUnlockFailures)
}

// WipeSession removes everything tied to the signed-in principal: token,
// cached profile, verifier, lock marker and unlock failures. The manual
// logout flag and exit markers are left to their own owners.
func (c *Credentials) WipeSession(ctx context.Context) error {
	return errors.Join(
		c.remove(ctx, KeyToken),
		c.remove(ctx, KeyProfile),
		c.remove(ctx, KeyVerifier),
		c.remove(ctx, KeyLock),
		c.remove(ctx, KeyUnlockFailures),
	)
}

func (c *Credentials) read(ctx context.Context, name string) ([]byte, bool) {
	data, err := c.backend.Get(ctx, c.Key(name))
	if errors.Is(err, ErrNotFound) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("credential read failed, treating as absent", "key", name, "error", err)
		return nil, false
	}
	return data, true
}

func (c *Credentials) write(ctx context.Context, name string, value []byte) error {
	return c.backend.Set(ctx, c.Key(name), value)
}

func (c *Credentials) remove(ctx context.Context, name string) error {
	return c.backend.Remove(ctx, c.Key(name))
}

func (c *Credentials) corrupt(name string, err error) {
	c.logger.Warn("corrupt credential record, treating as absent", "key", name, "error", err)
}
