// Package gate holds the navigation predicates a routing layer consults
// before showing protected, guest-only and lock-screen destinations.
//
// Predicates are pure: they read session state through [StateSource] and
// return a [Decision]. Applying the decision (rendering, redirecting) is
// the caller's job; see the middleware package for net/http.
package gate

import (
	"context"
	"net/url"
	"strings"
)

// StateSource is the read-only view of a session the predicates need.
// *goSession.Engine satisfies it.
type StateSource interface {
	IsAuthenticated() bool
	IsLocked() bool
	// HasFreshCachedSession reports a usable cached credential and profile
	// even when in-memory state has not been hydrated yet.
	HasFreshCachedSession(ctx context.Context) bool
	HasPermission(code string) bool
}

// Routes are the redirect destinations used by the predicates.
type Routes struct {
	Login        string `mapstructure:"login"`
	Lock         string `mapstructure:"lock"`
	Home         string `mapstructure:"home"`
	Unauthorized string `mapstructure:"unauthorized"`
	// NextParam names the query parameter carrying the originally
	// requested destination on a login redirect.
	NextParam string `mapstructure:"next_param"`
}

// DefaultRoutes returns the conventional route set.
func DefaultRoutes() Routes {
	return Routes{
		Login:        "/login",
		Lock:         "/lock",
		Home:         "/",
		Unauthorized: "/unauthorized",
		NextParam:    "next",
	}
}

func (r Routes) withDefaults() Routes {
	d := DefaultRoutes()
	if r.Login == "" {
		r.Login = d.Login
	}
	if r.Lock == "" {
		r.Lock = d.Lock
	}
	if r.Home == "" {
		r.Home = d.Home
	}
	if r.Unauthorized == "" {
		r.Unauthorized = d.Unauthorized
	}
	if r.NextParam == "" {
		r.NextParam = d.NextParam
	}
	return r
}

// Reason classifies a denial.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonAuthenticated   Reason = "already_authenticated"
	ReasonNotLockable     Reason = "not_lockable"
	ReasonForbidden       Reason = "forbidden"
)

// Decision is the outcome of a predicate. Redirect is empty when Admit is
// true.
type Decision struct {
	Admit    bool
	Redirect string
	Reason   Reason
}

func admit() Decision { return Decision{Admit: true} }

func deny(reason Reason, to string) Decision {
	return Decision{Reason: reason, Redirect: to}
}

// Predicate decides on a navigation to requested, a path with optional
// query.
type Predicate func(ctx context.Context, requested string) Decision

// Gate binds the predicates to one session and route set.
type Gate struct {
	src    StateSource
	routes Routes
}

// New returns a Gate over src. Empty routes fall back to DefaultRoutes.
func New(src StateSource, routes Routes) *Gate {
	return &Gate{src: src, routes: routes.withDefaults()}
}

func (g *Gate) Routes() Routes {
	return g.routes
}

// RequireAuthenticated admits an Authenticated session. Anything else is
// sent to the login route with requested carried in the next parameter.
func (g *Gate) RequireAuthenticated(_ context.Context, requested string) Decision {
	if g.src != nil && g.src.IsAuthenticated() {
		return admit()
	}
	return deny(ReasonUnauthenticated, g.loginURL(requested))
}

// RequireGuest admits any session that is not Authenticated. An
// Authenticated session is sent to the home route.
func (g *Gate) RequireGuest(_ context.Context, _ string) Decision {
	if g.src == nil || !g.src.IsAuthenticated() {
		return admit()
	}
	return deny(ReasonAuthenticated, g.routes.Home)
}

// RequireLockScreenEligible admits a Locked session, or a cold start whose
// store still holds a fresh cached session. Everything else goes to login.
func (g *Gate) RequireLockScreenEligible(ctx context.Context, _ string) Decision {
	if g.src != nil && (g.src.IsLocked() || g.src.HasFreshCachedSession(ctx)) {
		return admit()
	}
	return deny(ReasonNotLockable, g.routes.Login)
}

// RequirePermission returns a predicate admitting an Authenticated session
// whose cached profile grants code. It reads the last known profile and
// never consults the network.
func (g *Gate) RequirePermission(code string) Predicate {
	return func(ctx context.Context, requested string) Decision {
		if d := g.RequireAuthenticated(ctx, requested); !d.Admit {
			return d
		}
		if g.src.HasPermission(code) {
			return admit()
		}
		return deny(ReasonForbidden, g.routes.Unauthorized)
	}
}

// loginURL appends requested to the login route. Only same-origin paths
// are carried over.
func (g *Gate) loginURL(requested string) string {
	next := safeNext(requested)
	if next == "" || samePath(next, g.routes.Login) {
		return g.routes.Login
	}
	u, err := url.Parse(g.routes.Login)
	if err != nil {
		return g.routes.Login
	}
	q := u.Query()
	q.Set(g.routes.NextParam, next)
	u.RawQuery = q.Encode()
	return u.String()
}

func safeNext(requested string) string {
	if !strings.HasPrefix(requested, "/") || strings.HasPrefix(requested, "//") || strings.HasPrefix(requested, "/\\") {
		return ""
	}
	u, err := url.Parse(requested)
	if err != nil || u.IsAbs() || u.Host != "" {
		return ""
	}
	return u.RequestURI()
}

func samePath(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return ua.Path == ub.Path
}

// NextFrom extracts a safe post-login destination from a login URL's query,
// falling back to routes.Home.
func NextFrom(query url.Values, routes Routes) string {
	routes = routes.withDefaults()
	if next := safeNext(query.Get(routes.NextParam)); next != "" {
		return next
	}
	return routes.Home
}
