package middleware

import (
	"net/http"

	"github.com/xzegga/ait-saas-sso/pkg/gate"
	"github.com/xzegga/ait-saas-sso/pkg/httputil"
)

// RequirePermission admits visitors holding perm.
func RequirePermission(perm string) func(http.Handler) http.Handler {
	return requireGate(gate.Permission(perm), "insufficient permissions")
}

// RequireFeature admits visitors with the named feature enabled.
func RequireFeature(name string) func(http.Handler) http.Handler {
	return requireGate(gate.Feature(name), "feature not enabled")
}

func requireGate(g gate.Gate, deniedMsg string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap, ok := SnapshotFromRequest(r)
			if !ok {
				httputil.WriteServiceUnavailable(w, "identity client unavailable")
				return
			}
			decision := g.Evaluate(snap)
			if c := ClientFromRequest(r); c != nil {
				c.Provider().Metrics().ObserveGate(g.Name(), decision.String())
			}

			switch decision {
			case gate.Allowed:
				next.ServeHTTP(w, r)
			case gate.Loading:
				httputil.WriteServiceUnavailable(w, "session is still loading")
			default:
				httputil.WriteForbidden(w, deniedMsg)
			}
		})
	}
}
