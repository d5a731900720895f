package orgs

import (
	"time"

	"github.com/xzegga/ait-saas-sso/pkg/profile"
)

// MFAPolicy controls whether members must use multi-factor auth.
type MFAPolicy string

const (
	MFANone     MFAPolicy = "none"
	MFAOptional MFAPolicy = "optional"
	MFARequired MFAPolicy = "required"
)

// Member roles used by the invite flow. The backend accepts any role
// string; these are the ones it ships with.
const (
	MemberRoleOwner  = "owner"
	MemberRoleAdmin  = "admin"
	MemberRoleMember = "member"
)

// Page sizes for list views.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Organization is an organizations row.
type Organization struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	BillingEmail *string    `json:"billing_email,omitempty"`
	MFAPolicy    MFAPolicy  `json:"mfa_policy"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

const orgColumns = "id, name, billing_email, mfa_policy, created_at, updated_at, deleted_at"

func (o *Organization) scanDest() []any {
	return []any{&o.ID, &o.Name, &o.BillingEmail, &o.MFAPolicy, &o.CreatedAt, &o.UpdatedAt, &o.DeletedAt}
}

// OrganizationUpdate holds the fields to change; nil fields are left alone.
type OrganizationUpdate struct {
	Name         *string    `json:"name,omitempty" validate:"omitempty,notblank" msg:"Organization name is required"`
	BillingEmail *string    `json:"billing_email,omitempty" validate:"omitempty,idp_email" msg:"Invalid email address"`
	MFAPolicy    *MFAPolicy `json:"mfa_policy,omitempty" validate:"omitempty,oneof=none optional required" msg:"Invalid MFA policy"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Member is an org_members row with the member's profile.
type Member struct {
	ID        string        `json:"id"`
	OrgID     string        `json:"org_id"`
	UserID    string        `json:"user_id"`
	Role      string        `json:"role"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	DeletedAt *time.Time    `json:"deleted_at,omitempty"`
	User      *profile.User `json:"user,omitempty"`
}

// ProductRoleGrant assigns a product role to an invited member.
type ProductRoleGrant struct {
	ProductID string `json:"productId" validate:"required" msg:"Product ID is required"`
	Role      string `json:"role" validate:"required" msg:"Product role is required"`
}

// Invitation is the input of InviteMember.
type Invitation struct {
	Email        string             `json:"email" validate:"idp_email" msg:"Invalid email address"`
	Role         string             `json:"role" validate:"notblank" msg:"Role is required"`
	ProductRoles []ProductRoleGrant `json:"product_roles,omitempty" validate:"dive"`
}

// ProductRole is a product_role_definitions row.
type ProductRole struct {
	ID          string  `json:"id"`
	ProductID   string  `json:"product_id"`
	RoleName    string  `json:"role_name"`
	Description *string `json:"description,omitempty"`
}
