package idp

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/xzegga/ait-saas-sso/pkg/async"
	"github.com/xzegga/ait-saas-sso/pkg/auth"
	"github.com/xzegga/ait-saas-sso/pkg/config"
	"github.com/xzegga/ait-saas-sso/pkg/dataapi"
	"github.com/xzegga/ait-saas-sso/pkg/idperr"
	"github.com/xzegga/ait-saas-sso/pkg/observability"
	"github.com/xzegga/ait-saas-sso/pkg/token"
)

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the provider logger. It defaults to the logger the
// configuration describes.
func WithLogger(logger *observability.Logger) Option {
	return func(p *Provider) { p.logger = logger }
}

// WithRegistry registers SDK metrics on registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(p *Provider) { p.registry = registry }
}

// WithDB uses db for the data API instead of opening IDP_DATABASE_URL. The
// provider does not close it.
func WithDB(db *sql.DB) Option {
	return func(p *Provider) { p.db = db }
}

// WithHTTPClient overrides the auth API HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithVerifier overrides the verifier built from JWTSecret or JWKSURL.
func WithVerifier(v token.Verifier) Option {
	return func(p *Provider) { p.verifier = v }
}

// WithAuditor sets the auditor for auth flows.
func WithAuditor(a auth.Auditor) Option {
	return func(p *Provider) { p.auditor = a }
}

// Provider holds what every Client shares: configuration, the database pool,
// the token verifier, telemetry and the client-secret check.
type Provider struct {
	cfg        config.Config
	logger     *observability.Logger
	registry   *prometheus.Registry
	metrics    *observability.Metrics
	httpClient *http.Client
	verifier   token.Verifier
	auditor    auth.Auditor

	db     *sql.DB
	ownsDB bool
	otel   *observability.OTelProviders

	secret *async.Tracker[string]

	// ctx outlives NewProvider's context for background key set fetches.
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewProvider checks cfg, connects shared resources and, when a client
// secret is configured, validates it. A failed secret check does not fail
// NewProvider; it is reported by ValidationError and blocks form
// submission.
func NewProvider(ctx context.Context, cfg *config.Config, opts ...Option) (*Provider, error) {
	if cfg == nil {
		return nil, idperr.Configuration("Missing required configuration: url and anonKey are required", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Provider{
		cfg:    *cfg,
		secret: async.NewTracker[string](idperr.KindConfiguration, "Client secret validation failed"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = cfg.NewLogger(os.Stderr)
	}
	p.logger = p.logger.Component("idp")
	if p.registry != nil && cfg.Observability.MetricsEnabled {
		p.metrics = observability.NewMetrics(p.registry)
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{
			Timeout:   cfg.OperationTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if p.auditor == nil {
		p.auditor = auth.NewLogAuditor(p.logger)
	}
	p.ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))

	g, gctx := errgroup.WithContext(ctx)
	if p.db == nil && cfg.DatabaseURL != "" {
		g.Go(func() error {
			db, err := dataapi.Open(gctx, dataapi.ConnectionConfig{URL: cfg.DatabaseURL})
			if err != nil {
				return idperr.Configuration("failed to connect to database", err)
			}
			p.db, p.ownsDB = db, true
			return nil
		})
	}
	g.Go(func() error {
		providers, err := observability.InitOTel(gctx, cfg.OTelConfig(), p.logger)
		if err != nil {
			return idperr.Configuration("failed to initialize tracing", err)
		}
		p.otel = providers
		return nil
	})
	if err := g.Wait(); err != nil {
		p.Close(context.Background())
		return nil, err
	}

	if p.verifier == nil {
		switch {
		case cfg.JWTSecret != "":
			p.verifier = token.NewSecretVerifier([]byte(cfg.JWTSecret))
		case cfg.JWKSURL != "":
			p.verifier = token.NewRemoteKeySetVerifier(p.ctx, cfg.JWKSURL, strings.TrimRight(cfg.URL, "/")+"/auth/v1")
		}
	}

	if cfg.ClientSecret != "" {
		if _, err := p.ValidateClientSecret(ctx); err != nil {
			p.logger.WithError(err).Error("client secret validation failed")
		}
	}

	p.logger.WithFields(map[string]interface{}{
		"url":        cfg.URL,
		"product_id": cfg.ProductID,
		"data_api":   p.db != nil,
	}).Debug("provider initialized")
	return p, nil
}

// Config returns a copy of the provider configuration.
func (p *Provider) Config() config.Config {
	return p.cfg
}

// Logger returns the provider logger.
func (p *Provider) Logger() *observability.Logger {
	return p.logger
}

// Metrics returns the SDK metrics, nil without a registry.
func (p *Provider) Metrics() *observability.Metrics {
	return p.metrics
}

// Registry returns the registry SDK metrics are registered on, nil when
// metrics are off.
func (p *Provider) Registry() *prometheus.Registry {
	if p.metrics == nil {
		return nil
	}
	return p.registry
}

// DB returns the data API pool, nil when no database is configured.
func (p *Provider) DB() *sql.DB {
	return p.db
}

// ProductID returns the product resolved by the client-secret check, or the
// configured product.
func (p *Provider) ProductID() string {
	if id := p.secret.State().Data; id != "" {
		return id
	}
	return p.cfg.ProductID
}

// Close releases the database pool it opened and flushes telemetry.
func (p *Provider) Close(ctx context.Context) error {
	var errs []error
	p.closeOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		if p.ownsDB && p.db != nil {
			if err := p.db.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if p.otel != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := observability.ShutdownOTel(shutdownCtx, p.otel, p.logger); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
