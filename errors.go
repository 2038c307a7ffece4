package goSession

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned when the identity server rejects a
	// login identifier or password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrConnectionFailed wraps transport failures, timeouts and server
	// errors. Callers may retry.
	ErrConnectionFailed = errors.New("connection failed")
	// ErrTokenRejected is returned when the identity server refuses the
	// bearer token.
	ErrTokenRejected = errors.New("token rejected")
	// ErrTokenMissing is returned by operations that need a credential when
	// none is held.
	ErrTokenMissing = errors.New("no token")
	// ErrNotAuthenticated is returned when an operation requires an
	// authenticated session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrRequestRejected is returned for any other 4xx reply from the
	// identity server.
	ErrRequestRejected = errors.New("request rejected")
	// ErrCredentialsRequired is returned when identifier or password is empty.
	ErrCredentialsRequired = errors.New("identifier and password required")
	ErrPasswordMismatch    = errors.New("password confirmation mismatch")
	ErrIdentityUnavailable = errors.New("identity client not configured")
	ErrEngineNotReady      = errors.New("engine not ready")

	// ErrManualLogout is recorded when an unlock is attempted after an
	// explicit logout. Only a full login clears it.
	ErrManualLogout      = errors.New("manual logout requires full login")
	ErrNotLocked         = errors.New("session not locked")
	ErrVerifierMissing   = errors.New("no local unlock verifier")
	ErrUnlockRateLimited = errors.New("unlock attempts rate limited")
	ErrUnlockFailed      = errors.New("unlock password did not match")
	ErrNoCachedSession   = errors.New("no fresh cached session")
	// ErrSessionExpired is recorded when the held credential outlived the
	// cache TTL. The credential is gone; only a full login helps.
	ErrSessionExpired = errors.New("session expired")
	ErrOffline           = errors.New("offline")
	// ErrSessionChanged is returned when a request completes after the
	// session it was issued for has ended.
	ErrSessionChanged = errors.New("session changed during request")
)

// ServerError carries the message from a rejected identity server reply.
// It unwraps to the sentinel that classifies it.
type ServerError struct {
	Op      string
	Status  int
	Message string
	Kind    error
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %v (status %d)", e.Op, e.Kind, e.Status)
	}
	return fmt.Sprintf("%s: %v (status %d): %s", e.Op, e.Kind, e.Status, e.Message)
}

func (e *ServerError) Unwrap() error {
	return e.Kind
}

// IsTransient reports whether err is a network-class failure that leaves
// session state untouched.
func IsTransient(err error) bool {
	return errors.Is(err, ErrConnectionFailed) || errors.Is(err, ErrOffline)
}

// userMessage renders the human readable error stored in snapshots.
func userMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid username or password"
	case errors.Is(err, ErrConnectionFailed), errors.Is(err, ErrOffline):
		return "Unable to reach the server"
	case errors.Is(err, ErrTokenRejected), errors.Is(err, ErrSessionExpired):
		return "Session expired"
	case errors.Is(err, ErrManualLogout):
		return "Please log in again"
	case errors.Is(err, ErrUnlockRateLimited):
		return "Too many unlock attempts"
	case errors.Is(err, ErrUnlockFailed):
		return "Incorrect password"
	default:
		var se *ServerError
		if errors.As(err, &se) && se.Message != "" {
			return se.Message
		}
		return err.Error()
	}
}
