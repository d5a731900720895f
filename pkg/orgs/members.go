package orgs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xzegga/ait-saas-sso/pkg/async"
	"github.com/xzegga/ait-saas-sso/pkg/dataapi"
	"github.com/xzegga/ait-saas-sso/pkg/idperr"
	"github.com/xzegga/ait-saas-sso/pkg/profile"
	"github.com/xzegga/ait-saas-sso/pkg/validation"
)

const membersQuery = `SELECT m.id, m.org_id, m.user_id, m.role, m.created_at, m.updated_at, m.deleted_at,
       p.id, p.email, p.full_name, p.avatar_url, p.role, p.created_at, p.updated_at
FROM org_members m
LEFT JOIN profiles p ON p.id = m.user_id
WHERE m.org_id = $1 AND m.deleted_at IS NULL
ORDER BY m.created_at`

// MembersState reports the latest Members call.
func (s *Service) MembersState() async.State[[]Member] {
	return s.members.State()
}

// Members lists the organization's active members with their profiles. It
// returns an empty list when no organization id can be resolved.
func (s *Service) Members(ctx context.Context, orgID string) ([]Member, error) {
	return s.members.Run(ctx, func(ctx context.Context) ([]Member, error) {
		members := []Member{}
		id, ok := s.ResolveOrganizationID(orgID)
		if !ok {
			return members, nil
		}

		err := s.data.Query(ctx, "org_members.list", membersQuery, []any{id}, func(rows *sql.Rows) error {
			m, err := scanMember(rows)
			if err != nil {
				return err
			}
			members = append(members, m)
			return nil
		})
		if err != nil {
			s.logger.WithError(err).WithField("org_id", id).Error("failed to fetch members")
			return nil, fmt.Errorf("failed to fetch members: %w", err)
		}
		return members, nil
	})
}

func scanMember(rows *sql.Rows) (Member, error) {
	var m Member
	var (
		userID, email, role  sql.NullString
		fullName, avatarURL  *string
		userCreated, userUpd sql.NullTime
	)
	if err := rows.Scan(
		&m.ID, &m.OrgID, &m.UserID, &m.Role, &m.CreatedAt, &m.UpdatedAt, &m.DeletedAt,
		&userID, &email, &fullName, &avatarURL, &role, &userCreated, &userUpd,
	); err != nil {
		return m, err
	}
	if userID.Valid {
		m.User = &profile.User{
			ID:        userID.String,
			Email:     email.String,
			FullName:  fullName,
			AvatarURL: avatarURL,
			Role:      role.String,
			CreatedAt: userCreated.Time,
			UpdatedAt: userUpd.Time,
		}
	}
	return m, nil
}

// InviteMember invites email into the organization through the
// invite_member RPC.
func (s *Service) InviteMember(ctx context.Context, orgID string, inv Invitation) error {
	_, err := s.invite.Run(ctx, func(ctx context.Context) (struct{}, error) {
		if err := validation.Struct(inv); err != nil {
			return struct{}{}, err
		}
		id, ok := s.ResolveOrganizationID(orgID)
		if !ok {
			return struct{}{}, ErrNoOrganization
		}

		grants := inv.ProductRoles
		if grants == nil {
			grants = []ProductRoleGrant{}
		}
		grantsJSON, err := json.Marshal(grants)
		if err != nil {
			return struct{}{}, fmt.Errorf("encode product roles: %w", err)
		}

		err = s.data.RPC(ctx, "invite_member", dataapi.Params{
			"p_org_id":        id,
			"p_email":         inv.Email,
			"p_role":          inv.Role,
			"p_product_roles": string(grantsJSON),
		}, nil)
		if err != nil {
			s.logger.WithError(err).WithField("org_id", id).Error("failed to invite member")
			return struct{}{}, err
		}
		s.logger.WithFields(map[string]interface{}{
			"org_id": id,
			"email":  inv.Email,
			"role":   inv.Role,
		}).Info("member invited")
		return struct{}{}, nil
	})
	return err
}

// ErrMemberNotFound is returned when RemoveMember matched no active member.
var ErrMemberNotFound = idperr.New(idperr.KindUnknown, "Member not found", nil)

// RemoveMember soft-deletes a membership.
func (s *Service) RemoveMember(ctx context.Context, orgID, memberID string) error {
	_, err := s.remove.Run(ctx, func(ctx context.Context) (struct{}, error) {
		id, ok := s.ResolveOrganizationID(orgID)
		if !ok {
			return struct{}{}, ErrNoOrganization
		}
		if memberID == "" {
			return struct{}{}, idperr.Validation("Member ID is required")
		}

		affected, err := s.data.Exec(ctx, "org_members.remove",
			"UPDATE org_members SET deleted_at = $1 WHERE id = $2 AND org_id = $3 AND deleted_at IS NULL",
			time.Now().UTC(), memberID, id)
		if err != nil {
			s.logger.WithError(err).WithField("member_id", memberID).Error("failed to remove member")
			return struct{}{}, fmt.Errorf("failed to remove member: %w", err)
		}
		if affected == 0 {
			return struct{}{}, ErrMemberNotFound
		}
		s.logger.WithFields(map[string]interface{}{
			"org_id":    id,
			"member_id": memberID,
		}).Info("member removed")
		return struct{}{}, nil
	})
	return err
}
