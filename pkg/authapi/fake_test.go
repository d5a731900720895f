package authapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeGoTrue is a minimal in-memory auth server.
type fakeGoTrue struct {
	t   *testing.T
	srv *httptest.Server

	mu            sync.Mutex
	password      string
	issued        int
	refreshStatus int
	logoutStatus  int
	expiresIn     int64
	confirmSignup bool
	calls         []string
	lastRecover   string
	lastAuth      string
}

func newFakeGoTrue(t *testing.T) *fakeGoTrue {
	f := &fakeGoTrue{t: t, password: "secret123", expiresIn: 3600, confirmSignup: true}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeGoTrue) URL() string { return f.srv.URL }

func (f *fakeGoTrue) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeGoTrue) session(email string) map[string]any {
	f.issued++
	return map[string]any{
		"access_token":  fmt.Sprintf("access-%d", f.issued),
		"refresh_token": fmt.Sprintf("refresh-%d", f.issued),
		"token_type":    "bearer",
		"expires_in":    f.expiresIn,
		"user":          user(email),
	}
}

func user(email string) map[string]any {
	return map[string]any{
		"id":            "user-1",
		"aud":           "authenticated",
		"role":          "authenticated",
		"email":         email,
		"user_metadata": map[string]any{"full_name": "Ada"},
		"created_at":    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339Nano),
		"updated_at":    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339Nano),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeGoTrue) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("apikey") != "anon-key" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Invalid API key"})
		return
	}
	f.lastAuth = r.Header.Get("Authorization")

	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	route := r.Method + " " + strings.TrimPrefix(r.URL.Path, "/auth/v1")
	if gt := r.URL.Query().Get("grant_type"); gt != "" {
		route += "?" + gt
	}
	f.calls = append(f.calls, route)

	switch route {
	case "POST /token?password":
		if body["password"] != f.password {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":             "invalid_grant",
				"error_description": "Invalid login credentials",
			})
			return
		}
		writeJSON(w, http.StatusOK, f.session(body["email"].(string)))

	case "POST /token?refresh_token":
		if f.refreshStatus != 0 {
			writeJSON(w, f.refreshStatus, map[string]any{"code": f.refreshStatus, "error_code": "refresh_token_not_found", "msg": "Invalid Refresh Token"})
			return
		}
		writeJSON(w, http.StatusOK, f.session("ada@example.com"))

	case "POST /signup":
		if !f.confirmSignup {
			writeJSON(w, http.StatusOK, user(body["email"].(string)))
			return
		}
		s := f.session(body["email"].(string))
		if data, ok := body["data"].(map[string]any); ok {
			s["user"].(map[string]any)["user_metadata"] = data
		}
		writeJSON(w, http.StatusOK, s)

	case "POST /logout":
		if f.logoutStatus != 0 {
			writeJSON(w, f.logoutStatus, map[string]any{"message": "logout failed"})
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case "PUT /user":
		u := user("ada@example.com")
		if data, ok := body["data"].(map[string]any); ok {
			u["user_metadata"] = data
		}
		writeJSON(w, http.StatusOK, u)

	case "POST /recover":
		f.lastRecover = r.URL.Query().Get("redirect_to")
		writeJSON(w, http.StatusOK, map[string]any{})

	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "not found"})
	}
}

func (f *fakeGoTrue) with(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn()
}
