package session

import (
	"github.com/xzegga/ait-saas-sso/pkg/authapi"
	"github.com/xzegga/ait-saas-sso/pkg/authz"
)

// State is the store's position in the auth lifecycle.
type State int

const (
	StateInitializing State = iota
	StateUnauthenticated
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Snapshot is one published store state. Snapshots are never mutated after
// publication; Version increases by one per publication.
type Snapshot struct {
	State   State
	Session *authapi.Session
	View    authz.View
	Version uint64
	// Event is the backend event that produced the snapshot.
	Event authapi.Event
}

// Authenticated reports whether the snapshot has a signed-in session.
func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated && s.Session != nil
}

// AccessToken returns the session's access token, or "".
func (s Snapshot) AccessToken() string {
	if s.Session == nil {
		return ""
	}
	return s.Session.AccessToken
}

// UserID returns the signed-in user's id, or "".
func (s Snapshot) UserID() string {
	return s.Session.UserID()
}

func sameSession(a, b *authapi.Session) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.AccessToken == b.AccessToken &&
		a.RefreshToken == b.RefreshToken &&
		a.User == b.User
}
