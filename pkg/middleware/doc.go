// Package middleware provides the gate middleware of the example web app.
//
// Every request is expected to carry the visitor's *idp.Client on its
// context (contextkeys.ClientKey). The middleware evaluates gates against
// that client's session snapshot:
//
//	r.Handle("/dashboard", middleware.RequireAuth("/login")(dashboard))
//	admin := r.PathPrefix("/admin").Subrouter()
//	admin.Use(middleware.RequireAuth(""), middleware.RequirePermission("admin:read"))
//
// RequireAuth waits for the session store to finish loading, so a signed-in
// visitor is never redirected while the session is still being restored.
// Gates are advisory; the backend enforces access with row-level security.
//
// Throttle rate limits the credential forms (login, sign-up, password
// recovery) per client IP.
package middleware
