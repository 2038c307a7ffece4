package middleware

import (
	"net/http"

	"github.com/MrEthical07/goSession/gate"
)

func RequireAuthenticated(g *gate.Gate) func(http.Handler) http.Handler {
	return Guard(g.RequireAuthenticated)
}

func RequireGuest(g *gate.Gate) func(http.Handler) http.Handler {
	return Guard(g.RequireGuest)
}

// RequireLockScreen guards the lock-screen route itself.
func RequireLockScreen(g *gate.Gate) func(http.Handler) http.Handler {
	return Guard(g.RequireLockScreenEligible)
}

// RequirePermission admits authenticated sessions whose cached profile
// grants code, for example "R" or "CU".
func RequirePermission(g *gate.Gate, code string) func(http.Handler) http.Handler {
	return Guard(g.RequirePermission(code))
}
