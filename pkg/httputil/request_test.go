package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONOrError(t *testing.T) {
	var dest struct {
		Email string `json:"email"`
	}

	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"ada@example.com"}`))
	w := httptest.NewRecorder()
	require.True(t, ParseJSONOrError(w, r, &dest))
	assert.Equal(t, "ada@example.com", dest.Email)

	r = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{`))
	w = httptest.NewRecorder()
	assert.False(t, ParseJSONOrError(w, r, &dest))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid JSON")
}

func TestParsePathString(t *testing.T) {
	r := httptest.NewRequest(http.MethodDelete, "/organization/members/m-1", nil)
	r = mux.SetURLVars(r, map[string]string{"id": "m-1"})

	id, ok := ParsePathStringOrError(httptest.NewRecorder(), r, "id")
	assert.True(t, ok)
	assert.Equal(t, "m-1", id)

	w := httptest.NewRecorder()
	_, ok = ParsePathStringOrError(w, r, "missing")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/billing?limit=5&product=p1&bad=x", nil)

	n, err := ParseQueryInt(r, "limit", 10)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = ParseQueryInt(r, "absent", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	_, err = ParseQueryInt(r, "bad", 10)
	assert.Error(t, err)

	assert.Equal(t, "p1", ParseQueryString(r, "product", ""))
	assert.Equal(t, "dflt", ParseQueryString(r, "absent", "dflt"))
}
