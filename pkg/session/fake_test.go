package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"testing"

	"github.com/xzegga/ait-saas-sso/pkg/authapi"
)

type fakeBackend struct {
	mu        sync.Mutex
	listeners map[int]authapi.Listener
	nextID    int

	getSession func(ctx context.Context) (*authapi.Session, error)
	signOut    func(ctx context.Context) error
	refresh    func(ctx context.Context) (*authapi.Session, error)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		listeners:  make(map[int]authapi.Listener),
		getSession: func(context.Context) (*authapi.Session, error) { return nil, nil },
		signOut:    func(context.Context) error { return nil },
		refresh: func(context.Context) (*authapi.Session, error) {
			return nil, authapi.ErrSessionMissing
		},
	}
}

func (f *fakeBackend) GetSession(ctx context.Context) (*authapi.Session, error) {
	return f.getSession(ctx)
}

func (f *fakeBackend) SignOut(ctx context.Context) error {
	return f.signOut(ctx)
}

func (f *fakeBackend) RefreshSession(ctx context.Context) (*authapi.Session, error) {
	return f.refresh(ctx)
}

func (f *fakeBackend) OnAuthStateChange(fn authapi.Listener) *authapi.Subscription {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	f.mu.Unlock()
	return authapi.NewSubscription(func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	})
}

func (f *fakeBackend) listenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func (f *fakeBackend) emit(event authapi.Event, s *authapi.Session) {
	f.mu.Lock()
	ls := make([]authapi.Listener, 0, len(f.listeners))
	for _, l := range f.listeners {
		ls = append(ls, l)
	}
	f.mu.Unlock()
	for _, l := range ls {
		l(event, s)
	}
}

func makeToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	return "eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

func makeSession(t *testing.T, userID string, perms ...string) *authapi.Session {
	t.Helper()
	if perms == nil {
		perms = []string{}
	}
	return &authapi.Session{
		AccessToken:  makeToken(t, map[string]any{"sub": userID, "permissions": perms, "role": "user"}),
		RefreshToken: "refresh-" + userID,
		User:         &authapi.User{ID: userID},
	}
}
