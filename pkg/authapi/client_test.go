package authapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xzegga/ait-saas-sso/pkg/idperr"
	"github.com/xzegga/ait-saas-sso/pkg/storage"
)

type recorded struct {
	event Event
	token string
}

type eventLog struct {
	mu     sync.Mutex
	events []recorded
}

func (l *eventLog) listener(event Event, s *Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tok := ""
	if s != nil {
		tok = s.AccessToken
	}
	l.events = append(l.events, recorded{event: event, token: tok})
}

func (l *eventLog) all() []recorded {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]recorded(nil), l.events...)
}

func newTestClient(t *testing.T, f *fakeGoTrue, mutate ...func(*Config)) *Client {
	t.Helper()
	cfg := Config{URL: f.URL(), AnonKey: "anon-key"}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNew_Configuration(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing url", Config{AnonKey: "k"}},
		{"missing key", Config{URL: "http://localhost"}},
		{"relative url", Config{URL: "localhost:54321", AnonKey: "k"}},
		{"bad schedule", Config{URL: "http://localhost", AnonKey: "k", AutoRefresh: true, RefreshSchedule: "whenever"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, idperr.ErrConfiguration)
		})
	}
}

func TestSignInWithPassword(t *testing.T) {
	f := newFakeGoTrue(t)
	store := storage.NewMemoryStore()
	c := newTestClient(t, f, func(cfg *Config) { cfg.Storage = store })

	var log eventLog
	sub := c.OnAuthStateChange(log.listener)
	defer sub.Unsubscribe()

	t.Run("success", func(t *testing.T) {
		s, err := c.SignInWithPassword(context.Background(), "ada@example.com", "secret123")
		require.NoError(t, err)
		assert.Equal(t, "access-1", s.AccessToken)
		assert.Equal(t, "user-1", s.UserID())
		assert.NotZero(t, s.ExpiresAt)
		assert.Same(t, s, c.Session())
		assert.Equal(t, []recorded{{EventSignedIn, "access-1"}}, log.all())

		data, err := store.Get(context.Background(), DefaultStorageKey)
		require.NoError(t, err)
		var persisted Session
		require.NoError(t, json.Unmarshal(data, &persisted))
		assert.Equal(t, "refresh-1", persisted.RefreshToken)
	})

	t.Run("invalid credentials", func(t *testing.T) {
		_, err := c.SignInWithPassword(context.Background(), "ada@example.com", "wrong")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		assert.Equal(t, "invalid_grant", apiErr.Code)
		assert.Equal(t, "Invalid login credentials", apiErr.Message)
		assert.Equal(t, "access-1", c.Session().AccessToken)
	})
}

func TestSignUp(t *testing.T) {
	f := newFakeGoTrue(t)
	c := newTestClient(t, f)

	t.Run("autoconfirm returns session", func(t *testing.T) {
		res, err := c.SignUp(context.Background(), "new@example.com", "secret123", map[string]any{"full_name": "New User"})
		require.NoError(t, err)
		require.NotNil(t, res.Session)
		assert.Equal(t, "New User", res.User.UserMetadata["full_name"])
		assert.NotNil(t, c.Session())
	})

	t.Run("confirmation required returns user only", func(t *testing.T) {
		f.mu.Lock()
		f.confirmSignup = false
		f.mu.Unlock()

		res, err := c.SignUp(context.Background(), "later@example.com", "secret123", nil)
		require.NoError(t, err)
		assert.Nil(t, res.Session)
		require.NotNil(t, res.User)
		assert.Equal(t, "later@example.com", res.User.Email)
	})
}

func TestSignOut(t *testing.T) {
	t.Run("success clears session", func(t *testing.T) {
		f := newFakeGoTrue(t)
		store := storage.NewMemoryStore()
		c := newTestClient(t, f, func(cfg *Config) { cfg.Storage = store })
		_, err := c.SignInWithPassword(context.Background(), "ada@example.com", "secret123")
		require.NoError(t, err)

		var log eventLog
		c.OnAuthStateChange(log.listener)

		require.NoError(t, c.SignOut(context.Background()))
		assert.Nil(t, c.Session())
		assert.Equal(t, []recorded{{EventSignedOut, ""}}, log.all())
		assert.Equal(t, "Bearer access-1", f.lastAuth)

		_, err = store.Get(context.Background(), DefaultStorageKey)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("server failure keeps session", func(t *testing.T) {
		f := newFakeGoTrue(t)
		c := newTestClient(t, f)
		_, err := c.SignInWithPassword(context.Background(), "ada@example.com", "secret123")
		require.NoError(t, err)
		f.with(func() { f.logoutStatus = http.StatusInternalServerError })

		err = c.SignOut(context.Background())
		require.Error(t, err)
		assert.NotNil(t, c.Session())
	})

	t.Run("revoked token counts as signed out", func(t *testing.T) {
		f := newFakeGoTrue(t)
		c := newTestClient(t, f)
		_, err := c.SignInWithPassword(context.Background(), "ada@example.com", "secret123")
		require.NoError(t, err)
		f.with(func() { f.logoutStatus = http.StatusUnauthorized })

		require.NoError(t, c.SignOut(context.Background()))
		assert.Nil(t, c.Session())
	})

	t.Run("network failure keeps session", func(t *testing.T) {
		f := newFakeGoTrue(t)
		c := newTestClient(t, f)
		_, err := c.SignInWithPassword(context.Background(), "ada@example.com", "secret123")
		require.NoError(t, err)
		f.srv.Close()

		err = c.SignOut(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, idperr.ErrNetwork)
		assert.NotNil(t, c.Session())
	})
}

func TestRefreshSession(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		c := newTestClient(t, newFakeGoTrue(t))
		_, err := c.RefreshSession(context.Background())
		assert.ErrorIs(t, err, ErrSessionMissing)
	})

	t.Run("success rotates tokens", func(t *testing.T) {
		f := newFakeGoTrue(t)
		c := newTestClient(t, f)
		_, err := c.SignInWithPassword(context.Background(), "ada@example.com", "secret123")
		require.NoError(t, err)

		var log eventLog
		c.OnAuthStateChange(log.listener)

		s, err := c.RefreshSession(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "access-2", s.AccessToken)
		assert.Equal(t, []recorded{{EventTokenRefreshed, "access-2"}}, log.all())
	})

	t.Run("rejected refresh token signs out", func(t *testing.T) {
		f := newFakeGoTrue(t)
		c := newTestClient(t, f)
		_, err := c.SignInWithPassword(context.Background(), "ada@example.com", "secret123")
		require.NoError(t, err)
		f.with(func() { f.refreshStatus = http.StatusBadRequest })

		var log eventLog
		c.OnAuthStateChange(log.listener)

		_, err = c.RefreshSession(context.Background())
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "refresh_token_not_found", apiErr.Code)
		assert.Nil(t, c.Session())
		assert.Equal(t, []recorded{{EventSignedOut, ""}}, log.all())
	})

	t.Run("server error keeps session", func(t *testing.T) {
		f := newFakeGoTrue(t)
		c := newTestClient(t, f)
		_, err := c.SignInWithPassword(context.Background(), "ada@example.com", "secret123")
		require.NoError(t, err)
		f.with(func() { f.refreshStatus = http.StatusBadGateway })

		_, err = c.RefreshSession(context.Background())
		require.Error(t, err)
		assert.NotNil(t, c.Session())
	})
}

func TestGetSession(t *testing.T) {
	t.Run("empty storage emits initial session once", func(t *testing.T) {
		c := newTestClient(t, newFakeGoTrue(t))
		var log eventLog
		c.OnAuthStateChange(log.listener)

		s, err := c.GetSession(context.Background())
		require.NoError(t, err)
		assert.Nil(t, s)
		_, err = c.GetSession(context.Background())
		require.NoError(t, err)

		assert.Equal(t, []recorded{{EventInitialSession, ""}}, log.all())
	})

	t.Run("restores persisted session", func(t *testing.T) {
		f := newFakeGoTrue(t)
		store := storage.NewMemoryStore()
		first := newTestClient(t, f, func(cfg *Config) { cfg.Storage = store })
		_, err := first.SignInWithPassword(context.Background(), "ada@example.com", "secret123")
		require.NoError(t, err)

		second := newTestClient(t, f, func(cfg *Config) { cfg.Storage = store })
		s, err := second.GetSession(context.Background())
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, "access-1", s.AccessToken)
	})

	t.Run("expired persisted session is refreshed", func(t *testing.T) {
		f := newFakeGoTrue(t)
		store := storage.NewMemoryStore()
		expired := Session{
			AccessToken: "old", RefreshToken: "old-refresh", ExpiresAt: time.Now().Add(-time.Minute).Unix(),
			User: &User{ID: "user-1"},
		}
		data, _ := json.Marshal(expired)
		require.NoError(t, store.Set(context.Background(), DefaultStorageKey, data))

		c := newTestClient(t, f, func(cfg *Config) { cfg.Storage = store })
		s, err := c.GetSession(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "access-1", s.AccessToken)
		assert.Contains(t, f.Calls(), "POST /token?refresh_token")
	})

	t.Run("malformed persisted session discarded", func(t *testing.T) {
		store := storage.NewMemoryStore()
		require.NoError(t, store.Set(context.Background(), DefaultStorageKey, []byte(`{"access_token":""}`)))

		c := newTestClient(t, newFakeGoTrue(t), func(cfg *Config) { cfg.Storage = store })
		s, err := c.GetSession(context.Background())
		require.NoError(t, err)
		assert.Nil(t, s)
		_, err = store.Get(context.Background(), DefaultStorageKey)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestUpdateUser(t *testing.T) {
	f := newFakeGoTrue(t)
	c := newTestClient(t, f)

	_, err := c.UpdateUser(context.Background(), UserAttributes{Password: "newpass"})
	assert.ErrorIs(t, err, ErrSessionMissing)

	_, err = c.SignInWithPassword(context.Background(), "ada@example.com", "secret123")
	require.NoError(t, err)

	var log eventLog
	c.OnAuthStateChange(log.listener)

	u, err := c.UpdateUser(context.Background(), UserAttributes{Data: map[string]any{"full_name": "Ada L."}})
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", u.UserMetadata["full_name"])
	assert.Equal(t, "Ada L.", c.Session().User.UserMetadata["full_name"])
	assert.Equal(t, "access-1", c.Session().AccessToken)
	assert.Equal(t, []recorded{{EventUserUpdated, "access-1"}}, log.all())
}

func TestResetPasswordForEmail(t *testing.T) {
	f := newFakeGoTrue(t)
	c := newTestClient(t, f)

	require.NoError(t, c.ResetPasswordForEmail(context.Background(), "ada@example.com", "http://localhost:3000/reset-password"))
	assert.Equal(t, "http://localhost:3000/reset-password", f.lastRecover)
	assert.Equal(t, "Bearer anon-key", f.lastAuth)
}

func TestUnsubscribe(t *testing.T) {
	f := newFakeGoTrue(t)
	c := newTestClient(t, f)

	var log eventLog
	sub := c.OnAuthStateChange(log.listener)
	sub.Unsubscribe()
	sub.Unsubscribe()

	_, err := c.SignInWithPassword(context.Background(), "ada@example.com", "secret123")
	require.NoError(t, err)
	assert.Empty(t, log.all())
}

func TestListenerPanicIsContained(t *testing.T) {
	f := newFakeGoTrue(t)
	c := newTestClient(t, f)

	var log eventLog
	c.OnAuthStateChange(func(Event, *Session) { panic("listener bug") })
	c.OnAuthStateChange(log.listener)

	_, err := c.SignInWithPassword(context.Background(), "ada@example.com", "secret123")
	require.NoError(t, err)
	assert.Len(t, log.all(), 1)
}

func TestTokenSource(t *testing.T) {
	f := newFakeGoTrue(t)
	c := newTestClient(t, f)

	_, err := c.TokenSource().Token()
	assert.True(t, errors.Is(err, ErrSessionMissing))

	_, err = c.SignInWithPassword(context.Background(), "ada@example.com", "secret123")
	require.NoError(t, err)
	tok, err := c.TokenSource().Token()
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)
	assert.True(t, tok.Valid())
}

func TestRefreshIfDue(t *testing.T) {
	f := newFakeGoTrue(t)
	now := time.Now()
	c := newTestClient(t, f, func(cfg *Config) {
		cfg.Now = func() time.Time { return now }
	})

	refreshed, err := c.refreshIfDue(context.Background())
	require.NoError(t, err)
	assert.False(t, refreshed)

	_, err = c.SignInWithPassword(context.Background(), "ada@example.com", "secret123")
	require.NoError(t, err)

	refreshed, err = c.refreshIfDue(context.Background())
	require.NoError(t, err)
	assert.False(t, refreshed, "fresh session should not refresh")

	now = now.Add(59 * time.Minute)
	refreshed, err = c.refreshIfDue(context.Background())
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, "access-2", c.Session().AccessToken)
}

func TestAutoRefreshLifecycle(t *testing.T) {
	f := newFakeGoTrue(t)
	c, err := New(Config{URL: f.URL(), AnonKey: "anon-key", AutoRefresh: true, RefreshSchedule: "@every 1h"})
	require.NoError(t, err)
	require.NotNil(t, c.cron)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}
