package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/xzegga/ait-saas-sso/pkg/async"
	"github.com/xzegga/ait-saas-sso/pkg/authapi"
	"github.com/xzegga/ait-saas-sso/pkg/dataapi"
	"github.com/xzegga/ait-saas-sso/pkg/idperr"
	"github.com/xzegga/ait-saas-sso/pkg/observability"
	"github.com/xzegga/ait-saas-sso/pkg/validation"
)

// DefaultSignupDelay gives the backend's profile trigger time to run before
// the sign-up completion RPC.
const DefaultSignupDelay = 500 * time.Millisecond

// ResetPasswordPath is appended to SiteURL for recovery links.
const ResetPasswordPath = "/reset-password"

// Authenticator is the auth API subset the flows use.
type Authenticator interface {
	SignInWithPassword(ctx context.Context, email, password string) (*authapi.Session, error)
	SignUp(ctx context.Context, email, password string, data map[string]any) (*authapi.SignUpResult, error)
	UpdateUser(ctx context.Context, attrs authapi.UserAttributes) (*authapi.User, error)
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
}

// SessionManager signs the current user out.
type SessionManager interface {
	SignOut(ctx context.Context) error
}

// RPCCaller calls database functions.
type RPCCaller interface {
	RPC(ctx context.Context, fn string, params dataapi.Params, out any) error
}

// Deps are the collaborators of a Service.
type Deps struct {
	Auth    Authenticator
	Session SessionManager
	Data    RPCCaller
	Auditor Auditor
	Logger  *observability.Logger

	// SiteURL is the public origin of the consuming app, used to build
	// password recovery links.
	SiteURL     string
	SignupDelay time.Duration

	// Preflight, when set, runs after input validation and before any
	// network call of the login, sign-up and forgot-password flows. A
	// non-nil error blocks the submission.
	Preflight func() error
}

type tracked interface {
	Loading() bool
	Err() error
}

// Service runs the authentication flows.
type Service struct {
	deps   Deps
	logger *observability.Logger

	login    *async.Tracker[*authapi.Session]
	signUp   *async.Tracker[*SignUpResult]
	trackers map[Operation]tracked
	simple   map[Operation]*async.Tracker[struct{}]
}

// NewService creates a Service.
func NewService(deps Deps) *Service {
	if deps.SignupDelay == 0 {
		deps.SignupDelay = DefaultSignupDelay
	}
	if deps.Auditor == nil {
		deps.Auditor = NewLogAuditor(deps.Logger)
	}

	s := &Service{
		deps:   deps,
		logger: deps.Logger.OrNop().Component("auth"),
		login:  async.NewTracker[*authapi.Session](idperr.KindAuthentication, "Login failed"),
		signUp: async.NewTracker[*SignUpResult](idperr.KindAuthentication, "Signup failed"),
		simple: map[Operation]*async.Tracker[struct{}]{
			OpForgotPassword: async.NewTracker[struct{}](idperr.KindAuthentication, "Failed to send reset email"),
			OpResetPassword:  async.NewTracker[struct{}](idperr.KindAuthentication, "Password reset failed"),
			OpChangePassword: async.NewTracker[struct{}](idperr.KindAuthentication, "Failed to change password"),
			OpLogout:         async.NewTracker[struct{}](idperr.KindAuthentication, "Logout failed"),
		},
	}
	s.trackers = map[Operation]tracked{
		OpLogin:  s.login,
		OpSignUp: s.signUp,
	}
	for op, t := range s.simple {
		s.trackers[op] = t
	}
	return s
}

// Loading reports whether op is in flight.
func (s *Service) Loading(op Operation) bool {
	if t, ok := s.trackers[op]; ok {
		return t.Loading()
	}
	return false
}

// LastError returns the error of op's latest run, nil if it succeeded.
func (s *Service) LastError(op Operation) error {
	if t, ok := s.trackers[op]; ok {
		return t.Err()
	}
	return nil
}

func (s *Service) preflight() error {
	if s.deps.Preflight == nil {
		return nil
	}
	return s.deps.Preflight()
}

// Login signs in with email and password.
func (s *Service) Login(ctx context.Context, creds Credentials) (*authapi.Session, error) {
	return s.login.Run(ctx, func(ctx context.Context) (*authapi.Session, error) {
		if err := validation.Struct(creds); err != nil {
			return nil, err
		}
		if err := s.preflight(); err != nil {
			return nil, err
		}
		s.logger.WithField("email", creds.Email).Debug("attempting login")

		sess, err := s.deps.Auth.SignInWithPassword(ctx, creds.Email, creds.Password)
		if err == nil && sess == nil {
			err = idperr.Authentication("No session returned", nil)
		}
		if err != nil {
			err = authError(err)
			s.audit(ctx, ActionLogin, "", creds.Email, err)
			s.logger.WithError(err).Warn("login failed")
			return nil, err
		}

		s.audit(ctx, ActionLogin, sess.UserID(), creds.Email, nil)
		s.logger.WithField("user_id", sess.UserID()).Info("login successful")
		return sess, nil
	})
}

// SignUp creates the user, waits SignupDelay, then completes the sign-up
// server side (organization, subscription, trial).
func (s *Service) SignUp(ctx context.Context, params SignUpParams) (*SignUpResult, error) {
	return s.signUp.Run(ctx, func(ctx context.Context) (*SignUpResult, error) {
		res, err := s.doSignUp(ctx, params)
		userID := ""
		if res != nil {
			userID = res.UserID
		}
		s.audit(ctx, ActionSignUp, userID, params.Email, err)
		if err != nil {
			s.logger.WithError(err).Warn("signup failed")
		}
		return res, err
	})
}

func (s *Service) doSignUp(ctx context.Context, params SignUpParams) (*SignUpResult, error) {
	if err := validation.Struct(params); err != nil {
		return nil, err
	}
	if err := s.preflight(); err != nil {
		return nil, err
	}
	s.logger.WithFields(map[string]interface{}{
		"email":      params.Email,
		"product_id": params.ProductID,
	}).Debug("attempting signup")

	created, err := s.deps.Auth.SignUp(ctx, params.Email, params.Password, map[string]any{
		"full_name": params.FullName,
	})
	if err != nil {
		return nil, authError(err)
	}
	if created == nil || created.User == nil {
		return nil, idperr.Authentication("User creation failed", nil)
	}
	userID := created.User.ID
	s.logger.WithField("user_id", userID).Debug("user created")

	if err := sleep(ctx, s.deps.SignupDelay); err != nil {
		return nil, err
	}

	interval := params.BillingInterval
	if interval == "" {
		interval = DefaultBillingInterval
	}
	var orgName any
	if params.OrgName != "" {
		orgName = params.OrgName
	}

	var out completeSignupResult
	err = s.deps.Data.RPC(ctx, "fn_complete_user_signup", dataapi.Params{
		"p_user_id":          userID,
		"p_product_id":       params.ProductID,
		"p_plan_id":          params.PlanID,
		"p_billing_interval": interval,
		"p_org_name":         orgName,
		"p_use_user_name":    params.UseUserName,
	}, &out)
	if err != nil {
		msg := err.Error()
		if msg == "" {
			msg = "Signup failed"
		}
		return nil, idperr.Authentication(msg, err)
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "Signup failed"
		}
		return nil, idperr.Authentication(msg, nil)
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id":         userID,
		"org_id":          out.OrgID,
		"subscription_id": out.SubscriptionID,
		"status":          out.Status,
	}).Info("signup completed")

	return &SignUpResult{
		UserID:         userID,
		OrgID:          out.OrgID,
		SubscriptionID: out.SubscriptionID,
		Status:         out.Status,
		TrialDays:      out.TrialDays,
		TrialEndsAt:    out.TrialEndsAt,
	}, nil
}

// ForgotPassword emails a recovery link. redirectTo overrides the default
// SiteURL + ResetPasswordPath.
func (s *Service) ForgotPassword(ctx context.Context, email, redirectTo string) error {
	return s.run(ctx, OpForgotPassword, ActionPasswordForgot, email, func(ctx context.Context) error {
		if err := validation.Struct(emailInput{Email: email}); err != nil {
			return err
		}
		if err := s.preflight(); err != nil {
			return err
		}
		if redirectTo == "" && s.deps.SiteURL != "" {
			redirectTo = strings.TrimRight(s.deps.SiteURL, "/") + ResetPasswordPath
		}
		s.logger.WithField("email", email).Debug("sending password reset email")
		if err := s.deps.Auth.ResetPasswordForEmail(ctx, email, redirectTo); err != nil {
			return authError(err)
		}
		s.logger.WithField("email", email).Info("password reset email sent")
		return nil
	})
}

// ResetPassword sets a new password for the user signed in through a
// recovery link.
func (s *Service) ResetPassword(ctx context.Context, newPassword string) error {
	return s.run(ctx, OpResetPassword, ActionPasswordReset, "", func(ctx context.Context) error {
		return s.updatePassword(ctx, newPassword)
	})
}

// ChangePassword sets a new password for the signed-in user.
func (s *Service) ChangePassword(ctx context.Context, newPassword string) error {
	return s.run(ctx, OpChangePassword, ActionPasswordChange, "", func(ctx context.Context) error {
		return s.updatePassword(ctx, newPassword)
	})
}

func (s *Service) updatePassword(ctx context.Context, password string) error {
	if err := validation.Struct(passwordInput{Password: password}); err != nil {
		return err
	}
	if _, err := s.deps.Auth.UpdateUser(ctx, authapi.UserAttributes{Password: password}); err != nil {
		if errors.Is(err, authapi.ErrSessionMissing) {
			return idperr.Authentication("User not authenticated", err)
		}
		return authError(err)
	}
	return nil
}

// Logout signs out through the session store.
func (s *Service) Logout(ctx context.Context) error {
	return s.run(ctx, OpLogout, ActionLogout, "", func(ctx context.Context) error {
		s.logger.Debug("logging out")
		if err := s.deps.Session.SignOut(ctx); err != nil {
			return err
		}
		s.logger.Info("logout successful")
		return nil
	})
}

func (s *Service) run(ctx context.Context, op Operation, action, email string, fn func(context.Context) error) error {
	_, err := s.simple[op].Run(ctx, func(ctx context.Context) (struct{}, error) {
		err := fn(ctx)
		s.audit(ctx, action, "", email, err)
		if err != nil {
			s.logger.WithError(err).WithField("operation", string(op)).Warn("auth flow failed")
		}
		return struct{}{}, err
	})
	return err
}

func (s *Service) audit(ctx context.Context, action, userID, email string, err error) {
	event := &AuditEvent{
		Action: action,
		UserID: userID,
		Email:  email,
		Status: StatusSuccess,
	}
	if info, ok := ctx.Value(requestInfoKey{}).(requestInfo); ok {
		event.IPAddress = info.ip
		event.UserAgent = info.userAgent
	}
	if err != nil {
		event.Status = StatusFailure
		event.ErrorMessage = err.Error()
	}
	if auditErr := s.deps.Auditor.LogAction(ctx, event); auditErr != nil {
		s.logger.WithError(auditErr).Warn("failed to record audit event")
	}
}

// authError converts auth API failures into authentication errors carrying
// the backend's message. Typed errors pass through.
func authError(err error) error {
	var typed *idperr.Error
	if errors.As(err, &typed) {
		return typed
	}
	var apiErr *authapi.APIError
	if errors.As(err, &apiErr) {
		return idperr.Authentication(apiErr.Message, err)
	}
	return idperr.Authentication(err.Error(), err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
