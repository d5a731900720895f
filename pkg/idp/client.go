package idp

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/xzegga/ait-saas-sso/pkg/auth"
	"github.com/xzegga/ait-saas-sso/pkg/authapi"
	"github.com/xzegga/ait-saas-sso/pkg/billing"
	"github.com/xzegga/ait-saas-sso/pkg/dataapi"
	"github.com/xzegga/ait-saas-sso/pkg/gate"
	"github.com/xzegga/ait-saas-sso/pkg/idperr"
	"github.com/xzegga/ait-saas-sso/pkg/orgs"
	"github.com/xzegga/ait-saas-sso/pkg/profile"
	"github.com/xzegga/ait-saas-sso/pkg/session"
	"github.com/xzegga/ait-saas-sso/pkg/storage"
)

// ErrDataAPIDisabled is returned by profile, organization and billing calls
// when no database is configured.
var ErrDataAPIDisabled = idperr.Configuration("data API is not configured: set IDP_DATABASE_URL", nil)

// ConnectOption configures one Client.
type ConnectOption func(*connectOptions)

type connectOptions struct {
	store      storage.Store
	storageKey string
}

// WithStorage persists the client's session in store instead of the
// configured session backend. The client does not close it.
func WithStorage(store storage.Store) ConnectOption {
	return func(o *connectOptions) { o.store = store }
}

// WithStorageKey sets the key the session is stored under, so several
// clients can share one backend.
func WithStorageKey(key string) ConnectOption {
	return func(o *connectOptions) { o.storageKey = key }
}

// Client is one user's view of the identity provider: the auth API
// connection, the session store and the services built on them.
type Client struct {
	provider *Provider

	authAPI  *authapi.Client
	sessions *session.Store
	store    storage.Store
	ownStore bool

	auth    *auth.Service
	profile *profile.Service
	orgs    *orgs.Service
	billing *billing.Service

	closeOnce sync.Once
	closeErr  error
}

// Connect creates a Client. The session store starts loading the persisted
// session immediately; use Sessions().WaitReady to wait for it.
func (p *Provider) Connect(ctx context.Context, opts ...ConnectOption) (*Client, error) {
	var o connectOptions
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{provider: p, store: o.store}
	if c.store == nil {
		store, err := storage.Open(p.cfg.StorageConfig())
		if err != nil {
			return nil, idperr.Configuration("failed to open session storage", err)
		}
		c.store, c.ownStore = store, true
	}

	authAPI, err := authapi.New(authapi.Config{
		URL:             p.cfg.URL,
		AnonKey:         p.cfg.AnonKey,
		HTTPClient:      p.httpClient,
		Storage:         c.store,
		StorageKey:      o.storageKey,
		AutoRefresh:     p.cfg.Session.AutoRefresh,
		RefreshSchedule: p.cfg.Session.RefreshSchedule,
		Logger:          p.logger,
		Metrics:         p.metrics,
	})
	if err != nil {
		c.closeStore()
		return nil, err
	}
	c.authAPI = authAPI

	c.sessions = session.New(authAPI,
		session.WithLogger(p.logger),
		session.WithMetrics(p.metrics),
		session.WithOperationTimeout(p.cfg.OperationTimeout),
		session.WithVerifier(p.verifier),
	)

	var data dataapi.Querier = disabledData{}
	if p.db != nil {
		data = dataapi.New(p.db, authAPI.TokenSource(),
			dataapi.WithLogger(p.logger),
			dataapi.WithMetrics(p.metrics),
			dataapi.WithVerifier(p.verifier),
		)
	}

	c.auth = auth.NewService(auth.Deps{
		Auth:        authAPI,
		Session:     c.sessions,
		Data:        data,
		Auditor:     p.auditor,
		Logger:      p.logger,
		SiteURL:     p.cfg.Server.SiteURL,
		SignupDelay: p.cfg.SignupDelay,
		Preflight:   p.preflight,
	})
	c.profile = profile.NewService(data, c.sessions, p.logger)
	c.orgs = orgs.NewService(data, c.sessions, orgs.Options{
		OrganizationID: p.cfg.OrganizationID,
		Logger:         p.logger,
	})
	c.billing = billing.NewService(data, c.orgs, billing.Options{
		ProductID: p.ProductID(),
		Logger:    p.logger,
	})

	p.logger.Debug("client connected")
	return c, nil
}

// AuthAPI returns the auth API connection.
func (c *Client) AuthAPI() *authapi.Client { return c.authAPI }

// Sessions returns the session store.
func (c *Client) Sessions() *session.Store { return c.sessions }

// Auth returns the authentication flows.
func (c *Client) Auth() *auth.Service { return c.auth }

// Profile returns the profile service.
func (c *Client) Profile() *profile.Service { return c.profile }

// Organizations returns the organization service.
func (c *Client) Organizations() *orgs.Service { return c.orgs }

// Billing returns the billing catalog and subscription service.
func (c *Client) Billing() *billing.Service { return c.billing }

// Provider returns the provider the client was connected from.
func (c *Client) Provider() *Provider { return c.provider }

// Snapshot returns the current session snapshot.
func (c *Client) Snapshot() session.Snapshot {
	return c.sessions.Snapshot()
}

// Can evaluates a permission gate against the current snapshot.
func (c *Client) Can(permission string) gate.Decision {
	return c.decide(gate.Permission(permission))
}

// Feature evaluates a feature gate against the current snapshot.
func (c *Client) Feature(name string) gate.Decision {
	return c.decide(gate.Feature(name))
}

func (c *Client) decide(g gate.Gate) gate.Decision {
	d := gate.Evaluate(c.sessions, g)
	c.provider.metrics.ObserveGate(g.Name(), d.String())
	return d
}

// Close stops the session store and auto-refresh and closes session
// storage the client opened. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = errors.Join(c.sessions.Close(), c.authAPI.Close(), c.closeStore())
	})
	return c.closeErr
}

func (c *Client) closeStore() error {
	if c.ownStore && c.store != nil {
		return c.store.Close()
	}
	return nil
}

// disabledData fails every call when no database is configured.
type disabledData struct{}

func (disabledData) Query(context.Context, string, string, []any, func(*sql.Rows) error) error {
	return ErrDataAPIDisabled
}

func (disabledData) QueryRow(context.Context, string, string, []any, ...any) error {
	return ErrDataAPIDisabled
}

func (disabledData) Exec(context.Context, string, string, ...any) (int64, error) {
	return 0, ErrDataAPIDisabled
}

func (disabledData) RPC(context.Context, string, dataapi.Params, any) error {
	return ErrDataAPIDisabled
}
