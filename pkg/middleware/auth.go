package middleware

import (
	"net/http"

	"github.com/xzegga/ait-saas-sso/pkg/contextkeys"
	"github.com/xzegga/ait-saas-sso/pkg/gate"
	"github.com/xzegga/ait-saas-sso/pkg/httputil"
	"github.com/xzegga/ait-saas-sso/pkg/idp"
	"github.com/xzegga/ait-saas-sso/pkg/observability"
	"github.com/xzegga/ait-saas-sso/pkg/session"
)

// ClientFromRequest returns the visitor's client, nil when none is attached.
func ClientFromRequest(r *http.Request) *idp.Client {
	c, _ := contextkeys.Client(r.Context()).(*idp.Client)
	return c
}

// SnapshotFromRequest returns the snapshot RequireAuth admitted the request
// with, falling back to the client's current snapshot.
func SnapshotFromRequest(r *http.Request) (session.Snapshot, bool) {
	if snap, ok := contextkeys.Snapshot(r.Context()).(session.Snapshot); ok {
		return snap, true
	}
	if c := ClientFromRequest(r); c != nil {
		return c.Snapshot(), true
	}
	return session.Snapshot{}, false
}

// RequireAuth admits authenticated visitors. Others are redirected to
// redirectTo (gate.DefaultRedirect when empty) on GET and HEAD, and get a
// 401 otherwise.
func RequireAuth(redirectTo string) func(http.Handler) http.Handler {
	if redirectTo == "" {
		redirectTo = gate.DefaultRedirect
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := ClientFromRequest(r)
			if c == nil {
				httputil.WriteServiceUnavailable(w, "identity client unavailable")
				return
			}
			snap, err := c.Sessions().WaitReady(r.Context())
			if err != nil {
				httputil.WriteServiceUnavailable(w, "session is still loading")
				return
			}

			guard := gate.AuthGuard{
				RedirectTo: redirectTo,
				Navigate: func(path string) {
					if r.Method == http.MethodGet || r.Method == http.MethodHead {
						http.Redirect(w, r, path, http.StatusSeeOther)
						return
					}
					httputil.WriteUnauthorized(w, "User not authenticated")
				},
			}
			decision := guard.Evaluate(snap)
			c.Provider().Metrics().ObserveGate(guard.Name(), decision.String())
			if decision != gate.Allowed {
				guard.OnDenied()
				return
			}

			ctx := contextkeys.WithSnapshot(r.Context(), snap)
			ctx = observability.WithUserID(ctx, snap.UserID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
