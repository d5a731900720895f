package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/xzegga/ait-saas-sso/pkg/async"
	"github.com/xzegga/ait-saas-sso/pkg/contextkeys"
	"github.com/xzegga/ait-saas-sso/pkg/httputil"
	"github.com/xzegga/ait-saas-sso/pkg/idp"
	"github.com/xzegga/ait-saas-sso/pkg/idperr"
	"github.com/xzegga/ait-saas-sso/pkg/observability"
	"github.com/xzegga/ait-saas-sso/pkg/storage"
)

// VisitorCookie names the cookie identifying a browser.
const VisitorCookie = "idp_visitor"

const (
	visitorIDBytes  = 32
	visitorIDLength = 43 // base64url of 32 bytes, unpadded
	closeTimeout    = 10 * time.Second
)

var errVisitorsClosed = idperr.New(idperr.KindUnknown, "server is shutting down", nil)

// Visitors maps visitor cookies to connected clients. Clients idle longer
// than the TTL, or pushed out by newer visitors, are closed.
type Visitors struct {
	provider *idp.Provider
	store    storage.Store
	logger   *observability.Logger

	mu      sync.Mutex
	clients *lru.LRU[string, *idp.Client]
	closing sync.WaitGroup
	closed  bool
}

// NewVisitors creates a registry holding at most size clients. Every
// client keeps its session in store under its own key.
func NewVisitors(provider *idp.Provider, store storage.Store, size int, ttl time.Duration) *Visitors {
	v := &Visitors{
		provider: provider,
		store:    store,
		logger:   provider.Logger().Component("visitors"),
	}
	v.clients = lru.NewLRU[string, *idp.Client](size, v.evict, ttl)
	return v
}

func (v *Visitors) evict(id string, c *idp.Client) {
	v.closing.Add(1)
	async.SafeGo(context.Background(), v.logger, closeTimeout, "close visitor client", func(context.Context) error {
		defer v.closing.Done()
		v.logger.WithField("visitor_id", shortID(id)).Debug("visitor client evicted")
		return c.Close()
	})
}

// Client returns the visitor's client, connecting one on first use.
func (v *Visitors) Client(ctx context.Context, id string) (*idp.Client, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil, errVisitorsClosed
	}
	if c, ok := v.clients.Get(id); ok {
		return c, nil
	}
	c, err := v.provider.Connect(ctx, idp.WithStorage(v.store), idp.WithStorageKey("visitor:"+id))
	if err != nil {
		return nil, err
	}
	v.clients.Add(id, c)
	return c, nil
}

// Len returns the number of live clients.
func (v *Visitors) Len() int {
	return v.clients.Len()
}

// Close closes every client and waits for them.
func (v *Visitors) Close() {
	v.mu.Lock()
	v.closed = true
	v.clients.Purge()
	v.mu.Unlock()
	v.closing.Wait()
}

// Middleware attaches the visitor's client to the request, issuing a
// visitor cookie to new browsers.
func (v *Visitors) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := visitorID(r)
		if id == "" {
			var err error
			if id, err = newVisitorID(); err != nil {
				httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to issue visitor id")
				return
			}
			http.SetCookie(w, &http.Cookie{
				Name:     VisitorCookie,
				Value:    id,
				Path:     "/",
				HttpOnly: true,
				Secure:   r.TLS != nil,
				SameSite: http.SameSiteLaxMode,
			})
		}

		c, err := v.Client(r.Context(), id)
		if err != nil {
			v.logger.WithError(err).Error("failed to connect visitor client")
			httputil.WriteIDPError(w, err)
			return
		}

		ctx := contextkeys.WithVisitorID(r.Context(), id)
		ctx = contextkeys.WithClient(ctx, c)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func visitorID(r *http.Request) string {
	cookie, err := r.Cookie(VisitorCookie)
	if err != nil || len(cookie.Value) != visitorIDLength {
		return ""
	}
	if _, err := base64.RawURLEncoding.DecodeString(cookie.Value); err != nil {
		return ""
	}
	return cookie.Value
}

func newVisitorID() (string, error) {
	b := make([]byte, visitorIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// requestLogger returns the request logger tagged with the visitor.
func (s *Server) requestLogger(r *http.Request) *observability.Logger {
	logger := observability.FromContext(r.Context())
	if id := contextkeys.GetVisitorID(r.Context()); id != "" {
		logger = logger.WithField("visitor_id", shortID(id))
	}
	return logger
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
