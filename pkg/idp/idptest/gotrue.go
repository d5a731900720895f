// Package idptest provides an in-memory auth server for tests that drive a
// real idp.Client over HTTP.
package idptest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xzegga/ait-saas-sso/pkg/config"
	"github.com/xzegga/ait-saas-sso/pkg/dataapi/dataapitest"
)

// AnonKey is the key GoTrue accepts and Config sets.
const AnonKey = "anon-key"

// Password is the only password GoTrue accepts.
const Password = "secret123"

// GoTrue answers the password, refresh, signup, logout, user and recover
// endpoints. Issued access tokens carry the configured claims.
type GoTrue struct {
	srv *httptest.Server

	mu     sync.Mutex
	claims map[string]any
	issued int
	calls  []string
}

// NewGoTrue starts a server issuing tokens for user-1 with claims merged in.
func NewGoTrue(t testing.TB, claims map[string]any) *GoTrue {
	t.Helper()
	g := &GoTrue{claims: map[string]any{
		"sub":  "user-1",
		"role": "authenticated",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}}
	for k, v := range claims {
		g.claims[k] = v
	}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.handle(t, w, r)
	}))
	t.Cleanup(g.srv.Close)
	return g
}

// URL is the project URL to configure.
func (g *GoTrue) URL() string { return g.srv.URL }

// Config returns a valid configuration pointing at g. Issued tokens pass
// the configured JWT secret.
func (g *GoTrue) Config() *config.Config {
	cfg := config.Default()
	cfg.URL = g.srv.URL
	cfg.AnonKey = AnonKey
	cfg.JWTSecret = string(dataapitest.Secret)
	cfg.SignupDelay = 0
	cfg.OperationTimeout = 5 * time.Second
	return cfg
}

// Calls returns the routes served so far, such as "POST /token?password".
func (g *GoTrue) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

// Count returns how many times route was served.
func (g *GoTrue) Count(route string) int {
	n := 0
	for _, c := range g.Calls() {
		if c == route {
			n++
		}
	}
	return n
}

func (g *GoTrue) session(t testing.TB, email string) map[string]any {
	g.issued++
	claims := make(map[string]any, len(g.claims)+1)
	for k, v := range g.claims {
		claims[k] = v
	}
	claims["email"] = email
	return map[string]any{
		"access_token":  dataapitest.Token(t, claims),
		"refresh_token": fmt.Sprintf("refresh-%d", g.issued),
		"token_type":    "bearer",
		"expires_in":    3600,
		"user":          user(email),
	}
}

func user(email string) map[string]any {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339Nano)
	return map[string]any{
		"id":            "user-1",
		"aud":           "authenticated",
		"role":          "authenticated",
		"email":         email,
		"user_metadata": map[string]any{"full_name": "Ada Lovelace"},
		"created_at":    ts,
		"updated_at":    ts,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (g *GoTrue) handle(t testing.TB, w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if r.Header.Get("apikey") != AnonKey {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Invalid API key"})
		return
	}

	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	email, _ := body["email"].(string)
	route := r.Method + " " + strings.TrimPrefix(r.URL.Path, "/auth/v1")
	if gt := r.URL.Query().Get("grant_type"); gt != "" {
		route += "?" + gt
	}
	g.calls = append(g.calls, route)

	switch route {
	case "POST /token?password":
		if body["password"] != Password {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":             "invalid_grant",
				"error_description": "Invalid login credentials",
			})
			return
		}
		writeJSON(w, http.StatusOK, g.session(t, email))
	case "POST /token?refresh_token":
		writeJSON(w, http.StatusOK, g.session(t, "ada@example.com"))
	case "POST /signup":
		writeJSON(w, http.StatusOK, g.session(t, email))
	case "POST /logout":
		w.WriteHeader(http.StatusNoContent)
	case "PUT /user":
		u := user("ada@example.com")
		if data, ok := body["data"].(map[string]any); ok {
			u["user_metadata"] = data
		}
		writeJSON(w, http.StatusOK, u)
	case "POST /recover":
		writeJSON(w, http.StatusOK, map[string]any{})
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "not found"})
	}
}
