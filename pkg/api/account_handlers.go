package api

import (
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/xzegga/ait-saas-sso/pkg/billing"
	"github.com/xzegga/ait-saas-sso/pkg/contextkeys"
	"github.com/xzegga/ait-saas-sso/pkg/httputil"
	"github.com/xzegga/ait-saas-sso/pkg/middleware"
	"github.com/xzegga/ait-saas-sso/pkg/orgs"
	"github.com/xzegga/ait-saas-sso/pkg/profile"
)

// Gates reported by the dashboard.
var (
	dashboardPermissions = []string{"admin:read", "admin:write"}
	dashboardFeatures    = []string{"advanced-analytics"}
)

// DashboardResponse reports the signed-in user and their gate decisions.
type DashboardResponse struct {
	UserID         string            `json:"user_id"`
	Email          string            `json:"email,omitempty"`
	OrganizationID string            `json:"organization_id,omitempty"`
	Permissions    map[string]string `json:"permissions"`
	Features       map[string]string `json:"features"`
}

// BillingResponse is the billing page: the current subscription, the
// intervals plans are priced in and the plans on offer.
type BillingResponse struct {
	Subscription   *billing.Subscription     `json:"subscription"`
	InTrial        bool                      `json:"in_trial"`
	Intervals      []billing.BillingInterval `json:"intervals"`
	AvailablePlans []billing.AvailablePlan   `json:"available_plans"`
}

// InvoicesResponse lists the organization's payment account and recent
// invoices as recorded by the payment provider.
type InvoicesResponse struct {
	Account  *billing.PaymentAccount  `json:"account"`
	Invoices []billing.PaymentInvoice `json:"invoices"`
}

// ChangePasswordRequest sets a new password for the signed-in user.
type ChangePasswordRequest struct {
	Password string `json:"password"`
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	c := middleware.ClientFromRequest(r)
	snap, _ := middleware.SnapshotFromRequest(r)

	resp := DashboardResponse{
		UserID:      snap.UserID(),
		Permissions: make(map[string]string, len(dashboardPermissions)),
		Features:    make(map[string]string, len(dashboardFeatures)),
	}
	if snap.Session != nil && snap.Session.User != nil {
		resp.Email = snap.Session.User.Email
	}
	resp.OrganizationID, _ = c.Organizations().ResolveOrganizationID("")
	for _, perm := range dashboardPermissions {
		resp.Permissions[perm] = c.Can(perm).String()
	}
	for _, feature := range dashboardFeatures {
		resp.Features[feature] = c.Feature(feature).String()
	}
	httputil.WriteSuccess(w, resp)
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	u, err := middleware.ClientFromRequest(r).Profile().Get(r.Context())
	if err != nil {
		httputil.WriteIDPError(w, err)
		return
	}
	if u == nil {
		httputil.WriteNotFound(w, "Profile not found")
		return
	}
	httputil.WriteSuccess(w, u)
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var upd profile.Update
	if !httputil.ParseJSONOrError(w, r, &upd) {
		return
	}

	u, err := middleware.ClientFromRequest(r).Profile().Update(r.Context(), upd)
	if err != nil {
		httputil.WriteIDPError(w, err)
		return
	}
	httputil.WriteSuccess(w, u)
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := middleware.ClientFromRequest(r).Auth().ChangePassword(r.Context(), req.Password); err != nil {
		s.requestLogger(r).WithError(err).Warn("password change failed")
		httputil.WriteIDPError(w, err)
		return
	}
	httputil.WriteSuccess(w, MessageResponse{Message: "Password updated"})
}

func (s *Server) getOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := middleware.ClientFromRequest(r).Organizations().Get(r.Context(), contextkeys.GetOrgID(r.Context()))
	if err != nil {
		httputil.WriteIDPError(w, err)
		return
	}
	if org == nil {
		httputil.WriteNotFound(w, "Organization not found")
		return
	}
	httputil.WriteSuccess(w, org)
}

func (s *Server) updateOrganization(w http.ResponseWriter, r *http.Request) {
	var upd orgs.OrganizationUpdate
	if !httputil.ParseJSONOrError(w, r, &upd) {
		return
	}

	org, err := middleware.ClientFromRequest(r).Organizations().Update(r.Context(), contextkeys.GetOrgID(r.Context()), upd)
	if err != nil {
		httputil.WriteIDPError(w, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	members, err := middleware.ClientFromRequest(r).Organizations().Members(r.Context(), contextkeys.GetOrgID(r.Context()))
	if err != nil {
		httputil.WriteIDPError(w, err)
		return
	}
	if members == nil {
		members = []orgs.Member{}
	}
	httputil.WriteSuccess(w, members)
}

func (s *Server) inviteMember(w http.ResponseWriter, r *http.Request) {
	var inv orgs.Invitation
	if !httputil.ParseJSONOrError(w, r, &inv) {
		return
	}

	if err := middleware.ClientFromRequest(r).Organizations().InviteMember(r.Context(), contextkeys.GetOrgID(r.Context()), inv); err != nil {
		httputil.WriteIDPError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, MessageResponse{Message: "Invitation sent"})
}

func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	memberID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := middleware.ClientFromRequest(r).Organizations().RemoveMember(r.Context(), contextkeys.GetOrgID(r.Context()), memberID); err != nil {
		httputil.WriteIDPError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) billing(w http.ResponseWriter, r *http.Request) {
	svc := middleware.ClientFromRequest(r).Billing()
	productID := httputil.ParseQueryString(r, "product", "")

	var resp BillingResponse
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		sub, err := svc.CurrentSubscription(ctx, "")
		resp.Subscription = sub
		return err
	})
	g.Go(func() error {
		intervals, err := svc.Intervals(ctx)
		resp.Intervals = intervals
		return err
	})
	g.Go(func() error {
		plans, err := svc.AvailablePlans(ctx, productID)
		resp.AvailablePlans = plans
		return err
	})
	if err := g.Wait(); err != nil {
		httputil.WriteIDPError(w, err)
		return
	}

	resp.InTrial = resp.Subscription.InTrial(s.now())
	httputil.WriteSuccess(w, resp)
}

func (s *Server) invoices(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.ParseQueryInt(r, "limit", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	orgID := httputil.ParseQueryString(r, "org_id", "")
	svc := middleware.ClientFromRequest(r).Billing()

	account, err := svc.PaymentAccount(r.Context(), orgID)
	if err != nil {
		httputil.WriteIDPError(w, err)
		return
	}
	invoices, err := svc.Invoices(r.Context(), orgID, limit)
	if err != nil {
		httputil.WriteIDPError(w, err)
		return
	}
	httputil.WriteSuccess(w, InvoicesResponse{Account: account, Invoices: invoices})
}
