package api

import (
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/xzegga/ait-saas-sso/pkg/gate"
	"github.com/xzegga/ait-saas-sso/pkg/httputil"
	"github.com/xzegga/ait-saas-sso/pkg/idp"
	"github.com/xzegga/ait-saas-sso/pkg/idperr"
	"github.com/xzegga/ait-saas-sso/pkg/middleware"
	"github.com/xzegga/ait-saas-sso/pkg/observability"
	"github.com/xzegga/ait-saas-sso/pkg/storage"
)

// Defaults for Options.
const (
	DefaultVisitorCacheSize = 1024
	DefaultVisitorTTL       = 30 * time.Minute
	maxBodyBytes            = 1 << 20
)

// Options tunes a Server. The zero value is usable.
type Options struct {
	// Store holds visitor sessions. Nil opens the configured session
	// backend; the server closes a store it opened.
	Store            storage.Store
	VisitorCacheSize int
	VisitorTTL       time.Duration
	// FormRateLimit limits login, sign-up and password recovery per IP.
	FormRateLimit *middleware.RateLimitConfig
}

// Server is the example web app: credential forms, gated pages and the
// operational endpoints.
type Server struct {
	provider *idp.Provider
	logger   *observability.Logger
	router   *mux.Router
	handler  http.Handler

	visitors  *Visitors
	store     storage.Store
	ownsStore bool
	limiter   *middleware.RateLimiter
	now       func() time.Time
}

// NewServer creates a server for provider.
func NewServer(provider *idp.Provider, opts Options) (*Server, error) {
	s := &Server{
		provider: provider,
		logger:   provider.Logger().Component("api"),
		router:   mux.NewRouter(),
		store:    opts.Store,
		limiter:  middleware.NewRateLimiter(opts.FormRateLimit),
		now:      time.Now,
	}
	if s.store == nil {
		cfg := provider.Config()
		store, err := storage.Open(cfg.StorageConfig())
		if err != nil {
			return nil, idperr.Configuration("failed to open session storage", err)
		}
		s.store, s.ownsStore = store, true
	}

	size, ttl := opts.VisitorCacheSize, opts.VisitorTTL
	if size <= 0 {
		size = DefaultVisitorCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultVisitorTTL
	}
	s.visitors = NewVisitors(provider, s.store, size, ttl)

	s.setupRoutes()
	s.handler = otelhttp.NewHandler(httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware(s.logger),
		httputil.LoggingMiddleware(s.logger),
		httputil.MaxBytesMiddleware(maxBodyBytes),
	)(s.router), "idp-example")
	return s, nil
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Use(observability.HTTPMetricsMiddleware(s.provider.Metrics(), routeTemplate))

	// Operational routes skip the visitor registry
	if registry := s.provider.Registry(); registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(registry)).Methods(http.MethodGet)
	}
	cfg := s.provider.Config()
	observability.RegisterHealthRoutes(s.router,
		observability.NewHealthChecker(s.provider.DB(), redisClient(s.store), cfg.URL, cfg.AnonKey))

	app := s.router.NewRoute().Subrouter()
	app.Use(s.visitors.Middleware)
	app.HandleFunc("/", s.home).Methods(http.MethodGet)
	app.HandleFunc("/logout", s.logout).Methods(http.MethodPost)
	app.HandleFunc("/reset-password", s.resetPassword).Methods(http.MethodPost)

	forms := app.NewRoute().Subrouter()
	forms.Use(middleware.Throttle(s.limiter))
	forms.HandleFunc("/login", s.login).Methods(http.MethodPost)
	forms.HandleFunc("/signup", s.signUp).Methods(http.MethodPost)
	forms.HandleFunc("/forgot-password", s.forgotPassword).Methods(http.MethodPost)

	guarded := app.NewRoute().Subrouter()
	guarded.Use(middleware.RequireAuth(gate.DefaultRedirect))
	guarded.HandleFunc("/dashboard", s.dashboard).Methods(http.MethodGet)
	guarded.HandleFunc("/profile", s.getProfile).Methods(http.MethodGet)
	guarded.HandleFunc("/profile", s.updateProfile).Methods(http.MethodPut)
	guarded.HandleFunc("/profile/password", s.changePassword).Methods(http.MethodPut)
	guarded.HandleFunc("/billing", s.billing).Methods(http.MethodGet)
	guarded.HandleFunc("/billing/invoices", s.invoices).Methods(http.MethodGet)

	org := guarded.PathPrefix("/organization").Subrouter()
	org.Use(middleware.RequireOrganization)
	org.HandleFunc("", s.getOrganization).Methods(http.MethodGet)
	org.HandleFunc("", s.updateOrganization).Methods(http.MethodPut)
	org.HandleFunc("/members", s.listMembers).Methods(http.MethodGet)
	org.HandleFunc("/members/invite", s.inviteMember).Methods(http.MethodPost)
	org.HandleFunc("/members/{id}", s.removeMember).Methods(http.MethodDelete)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router returns the underlying router
func (s *Server) Router() *mux.Router {
	return s.router
}

// Visitors returns the visitor registry.
func (s *Server) Visitors() *Visitors {
	return s.visitors
}

// RateLimiter returns the credential form limiter.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.limiter
}

// Close closes every visitor client and the store the server opened.
func (s *Server) Close() error {
	s.visitors.Close()
	if s.ownsStore {
		return s.store.Close()
	}
	return nil
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

func redisClient(store storage.Store) *redis.Client {
	if rs, ok := store.(*storage.RedisStore); ok {
		return rs.Client()
	}
	return nil
}
