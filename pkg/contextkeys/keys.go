// Package contextkeys defines the request context keys of the example web
// app.
//
// All keys the app stores on a request context are declared here so their
// producers and consumers are discoverable:
//
//	ctx = contextkeys.WithClient(ctx, client)
//	client, _ := contextkeys.Client(ctx).(*idp.Client)
//
// Request ID, user ID and logger keys live in pkg/observability.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// ClientKey contains the visitor's *idp.Client
	// Set by: api.Server visitor middleware (pkg/api/visitors.go)
	// Required by: every page and API handler
	// Type: *idp.Client
	ClientKey Key = "idp_client"

	// VisitorKey contains the visitor cookie value
	// Set by: api.Server visitor middleware
	// Used by: logging, logout
	// Type: string
	VisitorKey Key = "visitor_id"

	// SnapshotKey contains the session snapshot a guard evaluated
	// Set by: middleware.RequireAuth (pkg/middleware/auth.go)
	// Used by: handlers that render user details without re-reading the store
	// Type: session.Snapshot
	SnapshotKey Key = "session_snapshot"

	// OrgIDKey contains the organization ID a request targets
	// Set by: middleware.RequireOrganization (pkg/middleware/org.go)
	// Used by: organization and billing handlers
	// Type: string
	OrgIDKey Key = "org_id"
)

// WithClient adds the visitor's client to the context
func WithClient(ctx context.Context, client interface{}) context.Context {
	return context.WithValue(ctx, ClientKey, client)
}

// Client retrieves the visitor's client from context
func Client(ctx context.Context) interface{} {
	return ctx.Value(ClientKey)
}

// WithVisitorID adds the visitor ID to the context
func WithVisitorID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, VisitorKey, id)
}

// GetVisitorID retrieves the visitor ID from context
func GetVisitorID(ctx context.Context) string {
	if id, ok := ctx.Value(VisitorKey).(string); ok {
		return id
	}
	return ""
}

// WithSnapshot adds the evaluated session snapshot to the context
func WithSnapshot(ctx context.Context, snap interface{}) context.Context {
	return context.WithValue(ctx, SnapshotKey, snap)
}

// Snapshot retrieves the evaluated session snapshot from context
func Snapshot(ctx context.Context) interface{} {
	return ctx.Value(SnapshotKey)
}

// WithOrgID adds the target organization ID to the context
func WithOrgID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, OrgIDKey, orgID)
}

// GetOrgID retrieves the target organization ID from context
func GetOrgID(ctx context.Context) string {
	if id, ok := ctx.Value(OrgIDKey).(string); ok {
		return id
	}
	return ""
}
