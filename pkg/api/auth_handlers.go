package api

import (
	"net/http"

	"github.com/xzegga/ait-saas-sso/pkg/auth"
	"github.com/xzegga/ait-saas-sso/pkg/httputil"
	"github.com/xzegga/ait-saas-sso/pkg/middleware"
)

// HomeResponse describes the visitor and what the forms can do.
type HomeResponse struct {
	Authenticated     bool   `json:"authenticated"`
	UserID            string `json:"user_id,omitempty"`
	Email             string `json:"email,omitempty"`
	SubmissionAllowed bool   `json:"submission_allowed"`
	ValidationError   string `json:"validation_error,omitempty"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Redirect string `json:"redirect"`
}

// ForgotPasswordRequest asks for a recovery email.
type ForgotPasswordRequest struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

// ResetPasswordRequest sets a new password after a recovery link.
type ResetPasswordRequest struct {
	Password string `json:"password"`
}

// MessageResponse carries a human-readable confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

const dashboardPath = "/dashboard"

func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	c := middleware.ClientFromRequest(r)
	snap, err := c.Sessions().WaitReady(r.Context())
	if err != nil {
		httputil.WriteServiceUnavailable(w, "session is still loading")
		return
	}

	resp := HomeResponse{
		Authenticated:     snap.Authenticated(),
		UserID:            snap.UserID(),
		SubmissionAllowed: s.provider.SubmissionAllowed(),
	}
	if snap.Session != nil && snap.Session.User != nil {
		resp.Email = snap.Session.User.Email
	}
	if err := s.provider.ValidationError(); err != nil {
		resp.ValidationError = err.Error()
	}
	httputil.WriteSuccess(w, resp)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var creds auth.Credentials
	if !httputil.ParseJSONOrError(w, r, &creds) {
		return
	}

	sess, err := middleware.ClientFromRequest(r).Auth().Login(r.Context(), creds)
	if err != nil {
		httputil.WriteIDPError(w, err)
		return
	}

	resp := LoginResponse{UserID: sess.UserID(), Redirect: dashboardPath}
	if sess.User != nil {
		resp.Email = sess.User.Email
	}
	httputil.WriteSuccess(w, resp)
}

func (s *Server) signUp(w http.ResponseWriter, r *http.Request) {
	var params auth.SignUpParams
	if !httputil.ParseJSONOrError(w, r, &params) {
		return
	}
	if params.ProductID == "" {
		params.ProductID = s.provider.ProductID()
	}

	res, err := middleware.ClientFromRequest(r).Auth().SignUp(r.Context(), params)
	if err != nil {
		httputil.WriteIDPError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (s *Server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := middleware.ClientFromRequest(r).Auth().ForgotPassword(r.Context(), req.Email, req.RedirectTo); err != nil {
		httputil.WriteIDPError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, MessageResponse{
		Message: "Check your email for a password reset link",
	})
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := middleware.ClientFromRequest(r).Auth().ResetPassword(r.Context(), req.Password); err != nil {
		httputil.WriteIDPError(w, err)
		return
	}
	httputil.WriteSuccess(w, MessageResponse{Message: "Password updated"})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := middleware.ClientFromRequest(r).Auth().Logout(r.Context()); err != nil {
		s.requestLogger(r).WithError(err).Warn("logout failed")
		httputil.WriteIDPError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
