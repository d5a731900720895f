package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xzegga/ait-saas-sso/pkg/contextkeys"
	"github.com/xzegga/ait-saas-sso/pkg/idp/idptest"
	"github.com/xzegga/ait-saas-sso/pkg/observability"
	"github.com/xzegga/ait-saas-sso/pkg/storage"
)

func TestVisitors_ReusesAndEvicts(t *testing.T) {
	p := newProvider(t, idptest.NewGoTrue(t, nil).Config())
	v := NewVisitors(p, storage.NewMemoryStore(), 1, time.Hour)
	t.Cleanup(v.Close)
	ctx := context.Background()

	a, err := v.Client(ctx, "visitor-a")
	require.NoError(t, err)
	again, err := v.Client(ctx, "visitor-a")
	require.NoError(t, err)
	assert.Same(t, a, again)

	_, err = v.Client(ctx, "visitor-b")
	require.NoError(t, err)
	assert.Equal(t, 1, v.Len())

	fresh, err := v.Client(ctx, "visitor-a")
	require.NoError(t, err)
	assert.NotSame(t, a, fresh)
}

func TestVisitors_Close(t *testing.T) {
	p := newProvider(t, idptest.NewGoTrue(t, nil).Config())
	v := NewVisitors(p, storage.NewMemoryStore(), 4, time.Hour)

	_, err := v.Client(context.Background(), "visitor-a")
	require.NoError(t, err)

	v.Close()
	assert.Zero(t, v.Len())
	_, err = v.Client(context.Background(), "visitor-a")
	assert.ErrorIs(t, err, errVisitorsClosed)
}

func TestVisitors_MiddlewareRejectsForgedCookie(t *testing.T) {
	p := newProvider(t, idptest.NewGoTrue(t, nil).Config())
	v := NewVisitors(p, storage.NewMemoryStore(), 4, time.Hour)
	t.Cleanup(v.Close)

	var seen string
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = contextkeys.GetVisitorID(r.Context())
		assert.NotNil(t, contextkeys.Client(r.Context()))
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: VisitorCookie, Value: "../../etc/passwd"})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, seen, visitorIDLength)
	assert.NotEqual(t, "../../etc/passwd", seen)
	assert.Contains(t, w.Header().Get("Set-Cookie"), VisitorCookie+"="+seen)
}

func TestNewVisitorIDIsUnique(t *testing.T) {
	a, err := newVisitorID()
	require.NoError(t, err)
	b, err := newVisitorID()
	require.NoError(t, err)
	assert.Len(t, a, visitorIDLength)
	assert.NotEqual(t, a, b)
}

func TestRequestLogger_TagsVisitor(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewJSONLogger(observability.InfoLevel, &buf)

	ctx := observability.WithLogger(context.Background(), logger)
	ctx = contextkeys.WithVisitorID(ctx, "abcdefghijklmnop")
	r := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)

	(&Server{}).requestLogger(r).Info("visited")
	assert.Contains(t, buf.String(), `"visitor_id":"abcdefgh"`)
}
