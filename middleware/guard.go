package middleware

import (
	"context"
	"net/http"

	"github.com/MrEthical07/goSession/gate"
)

type decisionContextKey struct{}

// DecisionFromContext returns the admitting decision stored by a guard.
func DecisionFromContext(ctx context.Context) (gate.Decision, bool) {
	d, ok := ctx.Value(decisionContextKey{}).(gate.Decision)
	return d, ok
}

// Guard admits requests for which check returns Admit and answers the
// rest with the decision's redirect.
func Guard(check gate.Predicate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if check == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			d := check(r.Context(), r.URL.RequestURI())
			if !d.Admit {
				deny(w, r, d)
				return
			}

			ctx := context.WithValue(r.Context(), decisionContextKey{}, d)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func deny(w http.ResponseWriter, r *http.Request, d gate.Decision) {
	if d.Redirect != "" && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
		http.Redirect(w, r, d.Redirect, http.StatusSeeOther)
		return
	}
	if d.Redirect != "" {
		w.Header().Set("Location", d.Redirect)
	}
	status := http.StatusUnauthorized
	switch d.Reason {
	case gate.ReasonForbidden, gate.ReasonAuthenticated:
		status = http.StatusForbidden
	}
	http.Error(w, http.StatusText(status), status)
}
