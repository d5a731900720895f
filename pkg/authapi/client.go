package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/oauth2"

	"github.com/xzegga/ait-saas-sso/pkg/idperr"
	"github.com/xzegga/ait-saas-sso/pkg/observability"
	"github.com/xzegga/ait-saas-sso/pkg/storage"
)

const (
	DefaultStorageKey      = "idp-auth-token"
	DefaultRefreshSchedule = "@every 30s"
	DefaultRefreshMargin   = 90 * time.Second

	// expiryMargin is how close to expiry GetSession refreshes before returning.
	expiryMargin = 10 * time.Second
	maxBodySize  = 1 << 20
	clientInfo   = "ait-saas-sso-go/1.0"
)

// Config configures a Client.
type Config struct {
	URL     string
	AnonKey string

	HTTPClient *http.Client
	Storage    storage.Store
	StorageKey string

	AutoRefresh     bool
	RefreshSchedule string
	RefreshMargin   time.Duration

	Logger  *observability.Logger
	Metrics *observability.Metrics

	// Now overrides the clock, for tests.
	Now func() time.Time
}

type listenerEntry struct {
	id uint64
	fn Listener
}

// Client talks to the auth API and owns the current session.
type Client struct {
	cfg     Config
	baseURL string
	http    *http.Client
	store   storage.Store
	logger  *observability.Logger
	metrics *observability.Metrics
	calls   metric.Int64Counter
	now     func() time.Time

	// emitMu serializes session mutation with listener delivery so events
	// leave the client in mutation order.
	emitMu sync.Mutex

	mu        sync.Mutex
	session   *Session
	loaded    bool
	listeners []listenerEntry
	nextID    uint64

	cron      *cron.Cron
	closeOnce sync.Once
}

// New creates a Client. URL and AnonKey are required.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" || cfg.AnonKey == "" {
		return nil, idperr.Configuration("Missing required configuration: url and anonKey are required", nil)
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, idperr.Configuration(fmt.Sprintf("invalid auth URL %q", cfg.URL), err)
	}

	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if cfg.Storage == nil {
		cfg.Storage = storage.NewMemoryStore()
	}
	if cfg.StorageKey == "" {
		cfg.StorageKey = DefaultStorageKey
	}
	if cfg.RefreshSchedule == "" {
		cfg.RefreshSchedule = DefaultRefreshSchedule
	}
	if cfg.RefreshMargin <= 0 {
		cfg.RefreshMargin = DefaultRefreshMargin
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	c := &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/") + "/auth/v1",
		http:    cfg.HTTPClient,
		store:   cfg.Storage,
		logger:  cfg.Logger.OrNop().Component("authapi"),
		metrics: cfg.Metrics,
		calls:   observability.Counter("authapi", "idp.authapi.calls", "Auth server calls by operation and status"),
		now:     cfg.Now,
	}

	if cfg.AutoRefresh {
		if err := c.startAutoRefresh(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Session returns the in-memory session without any I/O.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// OnAuthStateChange registers fn for every subsequent session change.
func (c *Client) OnAuthStateChange(fn Listener) *Subscription {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners = append(c.listeners, listenerEntry{id: id, fn: fn})
	c.mu.Unlock()

	return NewSubscription(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, l := range c.listeners {
			if l.id == id {
				c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
				return
			}
		}
	})
}

// GetSession returns the current session, loading it from storage on first
// use and refreshing it when it is about to expire. It returns nil, nil when
// nobody is signed in. The first call emits INITIAL_SESSION.
func (c *Client) GetSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	loaded, s := c.loaded, c.session
	c.mu.Unlock()

	if !loaded {
		return c.loadInitial(ctx)
	}
	if s == nil {
		return nil, nil
	}
	if s.ExpiresWithin(expiryMargin, c.now()) {
		return c.refresh(ctx, s.RefreshToken, "get_session")
	}
	return s, nil
}

func (c *Client) loadInitial(ctx context.Context) (*Session, error) {
	s := c.loadPersisted(ctx)

	var refreshErr error
	if s != nil && s.ExpiresWithin(expiryMargin, c.now()) {
		refreshed, err := c.callRefresh(ctx, s.RefreshToken)
		c.metrics.ObserveRefresh("initial", err)
		if err != nil {
			c.logger.WithError(err).Warn("stored session could not be refreshed")
			s, refreshErr = nil, err
		} else {
			s = refreshed
		}
	}

	var out *Session
	c.mutate(ctx, EventInitialSession, func(cur *Session, loaded bool) (*Session, bool) {
		if loaded {
			// a sign-in raced the load; keep it
			out = cur
			return cur, false
		}
		out = s
		return s, true
	})
	return out, refreshErr
}

// SignInWithPassword exchanges credentials for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	query := url.Values{"grant_type": {"password"}}

	var s Session
	if err := c.do(ctx, "sign_in", http.MethodPost, "/token", query, nil, body, &s); err != nil {
		return nil, err
	}
	if err := c.checkSession(&s); err != nil {
		return nil, err
	}
	c.setSession(ctx, &s, EventSignedIn)
	return &s, nil
}

// SignUpResult is the outcome of SignUp. Session is nil when the backend
// requires email confirmation before sign-in.
type SignUpResult struct {
	User    *User
	Session *Session
}

// SignUp registers a user. data is stored as the user's metadata.
func (c *Client) SignUp(ctx context.Context, email, password string, data map[string]any) (*SignUpResult, error) {
	body := map[string]any{"email": email, "password": password}
	if len(data) > 0 {
		body["data"] = data
	}

	var raw json.RawMessage
	if err := c.do(ctx, "sign_up", http.MethodPost, "/signup", nil, nil, body, &raw); err != nil {
		return nil, err
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err == nil && s.AccessToken != "" {
		if err := c.checkSession(&s); err != nil {
			return nil, err
		}
		c.setSession(ctx, &s, EventSignedIn)
		return &SignUpResult{User: s.User, Session: &s}, nil
	}

	var u User
	if err := json.Unmarshal(raw, &u); err != nil || u.Validate() != nil {
		return &SignUpResult{}, nil
	}
	return &SignUpResult{User: &u}, nil
}

// SignOut revokes the session. A token the backend no longer recognizes
// counts as signed out; any other failure leaves the session in place.
func (c *Client) SignOut(ctx context.Context) error {
	s := c.Session()
	if s != nil {
		query := url.Values{"scope": {"global"}}
		if err := c.do(ctx, "sign_out", http.MethodPost, "/logout", query, s.Token(), nil, nil); err != nil {
			var apiErr *APIError
			if !errors.As(err, &apiErr) || !apiErr.Unauthorized() {
				return err
			}
			c.logger.WithError(err).Debug("session already revoked")
		}
	}
	c.setSession(ctx, nil, EventSignedOut)
	return nil
}

// RefreshSession exchanges the refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context) (*Session, error) {
	s := c.Session()
	if s == nil || s.RefreshToken == "" {
		return nil, ErrSessionMissing
	}
	return c.refresh(ctx, s.RefreshToken, "manual")
}

// UpdateUser changes the signed-in user's email, password or metadata.
func (c *Client) UpdateUser(ctx context.Context, attrs UserAttributes) (*User, error) {
	s := c.Session()
	if s == nil {
		return nil, ErrSessionMissing
	}

	var u User
	if err := c.do(ctx, "update_user", http.MethodPut, "/user", nil, s.Token(), attrs, &u); err != nil {
		return nil, err
	}
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("invalid update_user response: %w", err)
	}

	c.mutate(ctx, EventUserUpdated, func(cur *Session, _ bool) (*Session, bool) {
		if cur == nil {
			return nil, false
		}
		next := *cur
		next.User = &u
		return &next, true
	})
	return &u, nil
}

// ResetPasswordForEmail sends a recovery email. redirectTo is where the link
// in the email lands; empty uses the backend's site URL.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	var query url.Values
	if redirectTo != "" {
		query = url.Values{"redirect_to": {redirectTo}}
	}
	return c.do(ctx, "recover", http.MethodPost, "/recover", query, nil, map[string]string{"email": email}, nil)
}

// TokenSource exposes the current access token as an oauth2.TokenSource.
func (c *Client) TokenSource() oauth2.TokenSource {
	return tokenSource{c: c}
}

type tokenSource struct {
	c *Client
}

func (ts tokenSource) Token() (*oauth2.Token, error) {
	s := ts.c.Session()
	if s == nil {
		return nil, ErrSessionMissing
	}
	return s.Token(), nil
}

// Close stops the auto-refresh scheduler. Storage is owned by the caller.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.cron != nil {
			<-c.cron.Stop().Done()
		}
	})
	return nil
}

func (c *Client) refresh(ctx context.Context, refreshToken, trigger string) (*Session, error) {
	s, err := c.callRefresh(ctx, refreshToken)
	c.metrics.ObserveRefresh(trigger, err)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
			c.setSession(ctx, nil, EventSignedOut)
		}
		return nil, err
	}
	c.setSession(ctx, s, EventTokenRefreshed)
	return s, nil
}

func (c *Client) callRefresh(ctx context.Context, refreshToken string) (*Session, error) {
	body := map[string]string{"refresh_token": refreshToken}
	query := url.Values{"grant_type": {"refresh_token"}}

	var s Session
	if err := c.do(ctx, "refresh", http.MethodPost, "/token", query, nil, body, &s); err != nil {
		return nil, err
	}
	if err := c.checkSession(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) checkSession(s *Session) error {
	s.normalize(c.now())
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid session response: %w", err)
	}
	return nil
}

func (c *Client) setSession(ctx context.Context, s *Session, event Event) {
	c.mutate(ctx, event, func(*Session, bool) (*Session, bool) { return s, true })
}

// mutate replaces the session with fn's result and, when fn reports a
// change, persists it and notifies listeners before releasing emitMu.
func (c *Client) mutate(ctx context.Context, event Event, fn func(cur *Session, loaded bool) (*Session, bool)) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	next, changed := fn(c.session, c.loaded)
	if !changed {
		c.mu.Unlock()
		return
	}
	c.session = next
	c.loaded = true
	listeners := append([]listenerEntry(nil), c.listeners...)
	c.mu.Unlock()

	c.persist(context.WithoutCancel(ctx), next, event)

	c.logger.WithFields(map[string]interface{}{
		"event":   string(event),
		"user_id": next.UserID(),
	}).Debug("auth state changed")

	for _, l := range listeners {
		c.deliver(l.fn, event, next)
	}
}

func (c *Client) deliver(fn Listener, event Event, s *Session) {
	defer observability.RecoverPanic(c.logger, "auth state listener")
	fn(event, s)
}

func (c *Client) persist(ctx context.Context, s *Session, event Event) {
	if event == EventInitialSession {
		return
	}
	var err error
	if s == nil {
		err = c.store.Delete(ctx, c.cfg.StorageKey)
		c.metrics.ObserveStorage("delete", err)
	} else {
		var data []byte
		data, err = json.Marshal(s)
		if err == nil {
			err = c.store.Set(ctx, c.cfg.StorageKey, data)
		}
		c.metrics.ObserveStorage("set", err)
	}
	if err != nil {
		c.logger.WithError(err).Warn("failed to persist session")
	}
}

func (c *Client) loadPersisted(ctx context.Context) *Session {
	data, err := c.store.Get(ctx, c.cfg.StorageKey)
	c.metrics.ObserveStorage("get", ignoreNotFound(err))
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		c.logger.WithError(err).Warn("failed to load stored session")
		return nil
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil || s.Validate() != nil {
		c.logger.Warn("discarding malformed stored session")
		if err := c.store.Delete(ctx, c.cfg.StorageKey); err != nil {
			c.logger.WithError(err).Warn("failed to delete malformed session")
		}
		return nil
	}
	return &s
}

func ignoreNotFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

// do sends one request. tok authenticates as a user; nil uses the anon key.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, tok *oauth2.Token, body, out any) error {
	ctx, span := observability.Tracer("authapi").Start(ctx, "authapi."+op)
	defer span.End()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("apikey", c.cfg.AnonKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Client-Info", clientInfo)
	if tok == nil {
		tok = &oauth2.Token{AccessToken: c.cfg.AnonKey, TokenType: "Bearer"}
	}
	tok.SetAuthHeader(req)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveAuthRequest(op, 0, time.Since(start))
		c.calls.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op), attribute.Int("status", 0)))
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return idperr.Network(fmt.Sprintf("%s request failed", op), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	c.metrics.ObserveAuthRequest(op, resp.StatusCode, time.Since(start))
	c.calls.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op), attribute.Int("status", resp.StatusCode)))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if err != nil {
		return idperr.Network(fmt.Sprintf("%s response could not be read", op), err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := parseAPIError(resp.StatusCode, data)
		span.SetStatus(codes.Error, apiErr.Message)
		return apiErr
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode %s response: %w", op, err)
		}
	}
	return nil
}
