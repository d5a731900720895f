package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/xzegga/ait-saas-sso/pkg/authapi"
	"github.com/xzegga/ait-saas-sso/pkg/authz"
	"github.com/xzegga/ait-saas-sso/pkg/idperr"
	"github.com/xzegga/ait-saas-sso/pkg/observability"
	"github.com/xzegga/ait-saas-sso/pkg/token"
)

// DefaultOperationTimeout bounds backend calls whose context has no deadline.
const DefaultOperationTimeout = 30 * time.Second

// eventInitialFetch labels snapshots produced by the startup fetch.
const eventInitialFetch = authapi.EventInitialSession

// Backend is the part of the auth API the store depends on.
// *authapi.Client satisfies it.
type Backend interface {
	GetSession(ctx context.Context) (*authapi.Session, error)
	SignOut(ctx context.Context) error
	RefreshSession(ctx context.Context) (*authapi.Session, error)
	OnAuthStateChange(fn authapi.Listener) *authapi.Subscription
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(logger *observability.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithMetrics records state transitions.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithOperationTimeout overrides DefaultOperationTimeout.
func WithOperationTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithVerifier makes the store check access token signatures. Sessions
// whose token fails verification are treated as signed out.
func WithVerifier(v token.Verifier) Option {
	return func(s *Store) { s.verifier = v }
}

// Store is the single owner of the current session and its derived
// authorization view.
type Store struct {
	backend  Backend
	logger   *observability.Logger
	metrics  *observability.Metrics
	timeout  time.Duration
	verifier token.Verifier

	resolver   *authz.Resolver
	dispatcher *dispatcher

	mu        sync.Mutex
	snap      Snapshot
	subs      map[uint64]func(Snapshot)
	nextSubID uint64
	closed    bool
	// gen counts sessions applied by backend events and SignOut.
	gen uint64

	ready     chan struct{}
	readyOnce sync.Once

	backendSub *authapi.Subscription
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// New creates a Store following backend. It subscribes to backend events
// first and then fetches the current session in the background.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		timeout:  DefaultOperationTimeout,
		resolver: authz.NewResolver(),
		subs:     make(map[uint64]func(Snapshot)),
		ready:    make(chan struct{}),
		snap:     Snapshot{State: StateInitializing, View: authz.Empty},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.OrNop().Component("session")
	s.dispatcher = newDispatcher(s.logger)

	s.backendSub = backend.OnAuthStateChange(s.onAuthEvent)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.initialFetch(ctx)

	return s
}

func (s *Store) initialFetch(ctx context.Context) {
	defer s.wg.Done()
	defer observability.RecoverPanic(s.logger, "session initial fetch")

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sess, err := s.backend.GetSession(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("initial session fetch failed")
		sess = nil
	}
	sess = s.verified(ctx, sess)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.State != StateInitializing {
		// a backend event already resolved the store
		return
	}
	s.applyLocked(eventInitialFetch, sess)
}

func (s *Store) onAuthEvent(event authapi.Event, sess *authapi.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	sess = s.verified(ctx, sess)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.applyLocked(event, sess)
}

// verified drops sessions whose token does not pass the configured verifier.
func (s *Store) verified(ctx context.Context, sess *authapi.Session) *authapi.Session {
	if s.verifier == nil || sess == nil {
		return sess
	}
	if _, err := s.verifier.Verify(ctx, sess.AccessToken); err != nil {
		s.logger.WithError(err).WithField("user_id", sess.UserID()).
			Warn("access token failed verification, treating as signed out")
		return nil
	}
	return sess
}

// applyLocked overwrites the session and publishes a snapshot when the
// state or session changed. Callers hold s.mu.
func (s *Store) applyLocked(event authapi.Event, sess *authapi.Session) {
	if s.closed {
		return
	}

	state := StateUnauthenticated
	if sess != nil {
		state = StateAuthenticated
	}

	prev := s.snap
	if prev.State == state && sameSession(prev.Session, sess) {
		s.snap.Session = sess
		return
	}

	view := authz.Empty
	if sess != nil {
		view = s.resolver.View(sess.AccessToken)
	}
	s.snap = Snapshot{
		State:   state,
		Session: sess,
		View:    view,
		Version: prev.Version + 1,
		Event:   event,
	}

	if prev.State != state {
		s.metrics.ObserveTransition(prev.State.String(), state.String(), string(event))
	}
	s.logger.WithFields(map[string]interface{}{
		"event":   string(event),
		"from":    prev.State.String(),
		"to":      state.String(),
		"version": s.snap.Version,
		"user_id": sess.UserID(),
	}).Debug("session state applied")

	if prev.State == StateInitializing {
		s.readyOnce.Do(func() { close(s.ready) })
	}

	snap := s.snap
	s.dispatcher.enqueue(func() { s.publish(snap) })
}

func (s *Store) publish(snap Snapshot) {
	s.mu.Lock()
	subs := make([]func(Snapshot), 0, len(s.subs))
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		subs = append(subs, s.subs[id])
	}
	s.mu.Unlock()

	for _, fn := range subs {
		s.deliver(fn, snap)
	}
}

func (s *Store) deliver(fn func(Snapshot), snap Snapshot) {
	defer observability.RecoverPanic(s.logger, "session subscriber")
	fn(snap)
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Ready is closed once the store leaves Initializing.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// WaitReady blocks until the store leaves Initializing or ctx ends.
func (s *Store) WaitReady(ctx context.Context) (Snapshot, error) {
	select {
	case <-s.ready:
		return s.Snapshot(), nil
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}
}

// Subscribe registers fn for every snapshot published after the call, in
// publication order. fn runs on the dispatcher goroutine and may call back
// into the store. The returned function unsubscribes; it is idempotent.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// SignOut signs out through the backend. On failure the state is left
// unchanged and an authentication error is returned.
func (s *Store) SignOut(ctx context.Context) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.backend.SignOut(ctx); err != nil {
		s.logger.WithError(err).Warn("sign out failed")
		return idperr.Authentication("Sign out failed", err)
	}

	s.mu.Lock()
	s.gen++
	s.applyLocked(authapi.EventSignedOut, nil)
	s.mu.Unlock()
	return nil
}

// RefreshSession refreshes the session through the backend. On failure the
// store becomes Unauthenticated and the error is returned. A backend event
// or SignOut landing after the backend call returns supersedes the result;
// the store's session at that point is returned instead.
func (s *Store) RefreshSession(ctx context.Context) (*authapi.Session, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	sess, err := s.backend.RefreshSession(ctx)
	gen := s.generation()
	if err == nil && sess == nil {
		err = idperr.Authentication("No session returned", nil)
	}
	if err != nil {
		s.logger.WithError(err).Warn("session refresh failed")
		s.applyIfCurrent(gen, authapi.EventSignedOut, nil)
		return nil, idperr.Normalize(err, idperr.KindAuthentication, "Session refresh failed")
	}

	sess = s.verified(ctx, sess)
	if !s.applyIfCurrent(gen, authapi.EventTokenRefreshed, sess) {
		if cur := s.Snapshot().Session; cur != nil {
			return cur, nil
		}
		return nil, idperr.Authentication("Session changed during refresh", nil)
	}
	if sess == nil {
		return nil, idperr.Authentication("Refreshed session failed verification", nil)
	}
	return sess, nil
}

func (s *Store) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// applyIfCurrent applies sess unless another session was applied since gen.
func (s *Store) applyIfCurrent(gen uint64, event authapi.Event, sess *authapi.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		s.logger.WithField("event", string(event)).Debug("refresh result superseded")
		return false
	}
	s.applyLocked(event, sess)
	return true
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Close detaches from the backend, stops the startup fetch and drains
// pending deliveries. It must not be called from a subscriber.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.backendSub.Unsubscribe()
		s.cancel()
		s.wg.Wait()

		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.dispatcher.close()
	})
	return nil
}
