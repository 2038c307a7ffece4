package jwt

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// maxTokenBytes bounds the input handed to the parser.
const maxTokenBytes = 8 << 10

// Inspection is what a client can learn from a bearer token without the
// issuer's key. None of it is trusted for authorization.
type Inspection struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasExpiry reports whether the token carried an exp claim.
func (i Inspection) HasExpiry() bool {
	return !i.ExpiresAt.IsZero()
}

// Inspect decodes the registered claims of a JWT-shaped bearer token
// without verifying its signature. It returns false for opaque tokens and
// for anything that does not parse.
func Inspect(token string) (Inspection, bool) {
	token = strings.TrimSpace(token)
	if token == "" || len(token) > maxTokenBytes || strings.Count(token, ".") != 2 {
		return Inspection{}, false
	}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Inspection{}, false
	}

	var out Inspection
	out.Subject = claims.Subject
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, true
}

// Expired reports whether token is a JWT whose exp claim lies at or before
// now minus leeway. Opaque tokens and tokens without exp are never
// reported as expired: the client cannot know, so the server decides.
func Expired(token string, now time.Time, leeway time.Duration) bool {
	in, ok := Inspect(token)
	if !ok || !in.HasExpiry() {
		return false
	}
	return !now.Add(-leeway).Before(in.ExpiresAt)
}
