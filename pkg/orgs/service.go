package orgs

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/xzegga/ait-saas-sso/pkg/async"
	"github.com/xzegga/ait-saas-sso/pkg/dataapi"
	"github.com/xzegga/ait-saas-sso/pkg/idperr"
	"github.com/xzegga/ait-saas-sso/pkg/observability"
	"github.com/xzegga/ait-saas-sso/pkg/session"
	"github.com/xzegga/ait-saas-sso/pkg/validation"
)

// ErrNoOrganization is returned by writes when no organization id can be
// resolved.
var ErrNoOrganization = idperr.Validation("Organization ID not available")

// SessionSource supplies the current session snapshot.
type SessionSource interface {
	Snapshot() session.Snapshot
}

// Options configure a Service.
type Options struct {
	// OrganizationID is used when a call passes no id.
	OrganizationID string
	Logger         *observability.Logger
}

// Service reads and manages the caller's organization.
type Service struct {
	data     dataapi.Querier
	sessions SessionSource
	orgID    string
	logger   *observability.Logger

	org     *async.Tracker[*Organization]
	members *async.Tracker[[]Member]
	invite  *async.Tracker[struct{}]
	remove  *async.Tracker[struct{}]
	roles   *async.Tracker[[]ProductRole]
}

// NewService creates a Service.
func NewService(data dataapi.Querier, sessions SessionSource, opts Options) *Service {
	return &Service{
		data:     data,
		sessions: sessions,
		orgID:    opts.OrganizationID,
		logger:   opts.Logger.OrNop().Component("orgs"),
		org:      async.NewTracker[*Organization](idperr.KindUnknown, "Failed to fetch organization"),
		members:  async.NewTracker[[]Member](idperr.KindUnknown, "Failed to fetch members"),
		invite:   async.NewTracker[struct{}](idperr.KindUnknown, "Failed to invite member"),
		remove:   async.NewTracker[struct{}](idperr.KindUnknown, "Failed to remove member"),
		roles:    async.NewTracker[[]ProductRole](idperr.KindUnknown, "Failed to fetch product roles"),
	}
}

// ResolveOrganizationID picks the organization a call targets: explicit,
// then the configured id, then the token's org_id claim.
func (s *Service) ResolveOrganizationID(explicit string) (string, bool) {
	if explicit != "" {
		return explicit, true
	}
	if s.orgID != "" {
		return s.orgID, true
	}
	return s.sessions.Snapshot().View.OrganizationID()
}

// OrganizationState reports the latest Get or Update.
func (s *Service) OrganizationState() async.State[*Organization] {
	return s.org.State()
}

// Get fetches the organization. It returns (nil, nil) when no organization
// id can be resolved.
func (s *Service) Get(ctx context.Context, orgID string) (*Organization, error) {
	return s.org.Run(ctx, func(ctx context.Context) (*Organization, error) {
		id, ok := s.ResolveOrganizationID(orgID)
		if !ok {
			return nil, nil
		}

		org := &Organization{}
		err := s.data.QueryRow(ctx, "organizations.get",
			"SELECT "+orgColumns+" FROM organizations WHERE id = $1",
			[]any{id}, org.scanDest()...)
		if dataapi.IsNoRows(err) {
			return nil, idperr.New(idperr.KindUnknown, "Organization not found", err)
		}
		if err != nil {
			s.logger.WithError(err).WithField("org_id", id).Error("failed to fetch organization")
			return nil, fmt.Errorf("failed to fetch organization: %w", err)
		}
		return org, nil
	})
}

// Update changes the organization and returns the stored row.
func (s *Service) Update(ctx context.Context, orgID string, upd OrganizationUpdate) (*Organization, error) {
	return s.org.Run(ctx, func(ctx context.Context) (*Organization, error) {
		id, ok := s.ResolveOrganizationID(orgID)
		if !ok {
			return nil, ErrNoOrganization
		}
		if err := validation.Struct(upd); err != nil {
			return nil, err
		}

		var sets []string
		var args []any
		add := func(col string, v any) {
			args = append(args, v)
			sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
		}
		if upd.Name != nil {
			add("name", *upd.Name)
		}
		if upd.BillingEmail != nil {
			add("billing_email", *upd.BillingEmail)
		}
		if upd.MFAPolicy != nil {
			add("mfa_policy", string(*upd.MFAPolicy))
		}
		if upd.DeletedAt != nil {
			add("deleted_at", *upd.DeletedAt)
		}
		if len(sets) == 0 {
			return nil, idperr.Validation("Nothing to update")
		}
		args = append(args, id)

		query := fmt.Sprintf("UPDATE organizations SET %s WHERE id = $%d RETURNING %s",
			strings.Join(sets, ", "), len(args), orgColumns)
		org := &Organization{}
		if err := s.data.QueryRow(ctx, "organizations.update", query, args, org.scanDest()...); err != nil {
			s.logger.WithError(err).WithField("org_id", id).Error("failed to update organization")
			return nil, fmt.Errorf("failed to update organization: %w", err)
		}
		s.logger.WithField("org_id", id).Info("organization updated")
		return org, nil
	})
}

// ProductRoles lists role definitions, for one product when productID is
// set.
func (s *Service) ProductRoles(ctx context.Context, productID string) ([]ProductRole, error) {
	return s.roles.Run(ctx, func(ctx context.Context) ([]ProductRole, error) {
		query := "SELECT id, product_id, role_name, description FROM product_role_definitions"
		var args []any
		if productID != "" {
			query += " WHERE product_id = $1"
			args = append(args, productID)
		}
		query += " ORDER BY role_name"

		roles := []ProductRole{}
		err := s.data.Query(ctx, "product_role_definitions.list", query, args, func(rows *sql.Rows) error {
			var r ProductRole
			if err := rows.Scan(&r.ID, &r.ProductID, &r.RoleName, &r.Description); err != nil {
				return err
			}
			roles = append(roles, r)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch product roles: %w", err)
		}
		return roles, nil
	})
}
