package goSession

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
)

// Status is the authentication state of the engine.
type Status uint8

const (
	StatusAnonymous Status = iota
	StatusAuthenticating
	StatusAuthenticated
	// StatusLocked keeps the principal and credential cached but requires
	// re-proof of presence before protected content is shown.
	StatusLocked
)

func (s Status) String() string {
	switch s {
	case StatusAnonymous:
		return "anonymous"
	case StatusAuthenticating:
		return "authenticating"
	case StatusAuthenticated:
		return "authenticated"
	case StatusLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// LockReason records why a session entered StatusLocked.
type LockReason uint8

const (
	LockNone LockReason = iota
	// LockIdle follows the long-idle signal of the activity monitor.
	LockIdle
	// LockAbsence follows a return after at least the lock timeout away.
	LockAbsence
	// LockDemoted follows an automatic logout, typically an expired or
	// rejected token.
	LockDemoted
)

func (r LockReason) String() string {
	switch r {
	case LockNone:
		return "none"
	case LockIdle:
		return "idle"
	case LockAbsence:
		return "absence"
	case LockDemoted:
		return "demoted"
	default:
		return "unknown"
	}
}

func (r LockReason) valid() bool {
	return r >= LockIdle && r <= LockDemoted
}

// HostSignal is a lifecycle event reported by the host environment.
type HostSignal uint8

const (
	SignalHidden HostSignal = iota + 1
	SignalVisible
	SignalFocused
	SignalBlurred
	SignalExiting
)

func (s HostSignal) String() string {
	switch s {
	case SignalHidden:
		return "hidden"
	case SignalVisible:
		return "visible"
	case SignalFocused:
		return "focused"
	case SignalBlurred:
		return "blurred"
	case SignalExiting:
		return "exiting"
	default:
		return "unknown"
	}
}

// ParseHostSignal maps a host event name to a HostSignal.
func ParseHostSignal(name string) (HostSignal, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "hidden":
		return SignalHidden, nil
	case "visible":
		return SignalVisible, nil
	case "focused", "focus":
		return SignalFocused, nil
	case "blurred", "blur":
		return SignalBlurred, nil
	case "exiting", "exit":
		return SignalExiting, nil
	default:
		return 0, errors.New("unknown host signal")
	}
}

// Profile is the user record returned by the identity server. The engine
// reads the identifier and the permission code; every other field is kept
// verbatim in Attributes so it round-trips through the cache unchanged.
type Profile struct {
	ID         string
	Username   string
	Email      string
	Name       string
	Permission string
	Attributes map[string]json.RawMessage
}

var profileKnownFields = [...]string{"id", "username", "email", "name", "permission"}

// LoginIdentifier is the identifier used for a server login on behalf of
// this profile: username, then email.
func (p Profile) LoginIdentifier() string {
	if p.Username != "" {
		return p.Username
	}
	return p.Email
}

func (p Profile) clone() *Profile {
	out := p
	if p.Attributes != nil {
		out.Attributes = make(map[string]json.RawMessage, len(p.Attributes))
		for k, v := range p.Attributes {
			out.Attributes[k] = append(json.RawMessage(nil), v...)
		}
	}
	return &out
}

func (p Profile) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(p.Attributes)+len(profileKnownFields))
	for k, v := range p.Attributes {
		fields[k] = v
	}
	for k, v := range map[string]string{
		"id":         p.ID,
		"username":   p.Username,
		"email":      p.Email,
		"name":       p.Name,
		"permission": p.Permission,
	} {
		if v == "" {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		fields[k] = raw
	}
	return json.Marshal(fields)
}

// UnmarshalJSON accepts the id as either a JSON string or a number.
func (p *Profile) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return errors.New("profile: expected JSON object")
	}

	var out Profile
	var err error
	if out.ID, err = scalarString(fields["id"]); err != nil {
		return errors.New("profile: invalid id")
	}
	for name, dst := range map[string]*string{
		"username":   &out.Username,
		"email":      &out.Email,
		"name":       &out.Name,
		"permission": &out.Permission,
	} {
		if *dst, err = scalarString(fields[name]); err != nil {
			return errors.New("profile: invalid " + name)
		}
	}

	for _, k := range profileKnownFields {
		delete(fields, k)
	}
	if len(fields) > 0 {
		out.Attributes = fields
	}
	*p = out
	return nil
}

func scalarString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// Snapshot is a point-in-time copy of the session state. Version increases
// with every state change.
type Snapshot struct {
	Version         uint64
	Status          Status
	IsAuthenticated bool
	User            *Profile
	IsLoading       bool
	Error           string
	Err             error
	IsOnline        bool
	LastSync        time.Time
	LockReason      LockReason
	IsIdle          bool
	ManualLogout    bool
}

// ProfileUpdate carries the fields sent to the profile update endpoint.
type ProfileUpdate map[string]any

// PasswordChange carries a password change request.
type PasswordChange struct {
	OldPassword string `json:"old_password"`
	Password    string `json:"password"`
	Confirm     string `json:"password_confirm"`
}

// PasswordReset carries the final step of the out-of-band recovery flow.
type PasswordReset struct {
	Token    string `json:"token"`
	Password string `json:"password"`
	Confirm  string `json:"password_confirm"`
}

// IdentityClient is the transport to the remote identity server.
//
// Implementations map transport failures to ErrConnectionFailed, rejected
// login credentials to ErrInvalidCredentials and rejected bearer tokens to
// ErrTokenRejected, wrapping the underlying cause. Deadlines come from ctx.
type IdentityClient interface {
	Login(ctx context.Context, identifier, password string) (string, error)
	FetchProfile(ctx context.Context, token string) (Profile, error)
	Logout(ctx context.Context, token string) error
	UpdateProfile(ctx context.Context, token string, fields ProfileUpdate) (Profile, error)
	ChangePassword(ctx context.Context, token string, change PasswordChange) error
	ForgotPassword(ctx context.Context, email string) error
	VerifyResetToken(ctx context.Context, resetToken string) error
	ResetPassword(ctx context.Context, reset PasswordReset) error
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that discards every event.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per event.
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink writes audit events to a structured logger.
type SlogSink = internalaudit.SlogSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}
