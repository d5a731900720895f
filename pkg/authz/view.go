package authz

import (
	"sync"

	"github.com/xzegga/ait-saas-sso/pkg/token"
)

// View is the authorization state derived from one access token.
// The zero View grants nothing.
type View struct {
	permissions    map[string]struct{}
	permissionList []string
	roles          map[string]struct{}
	roleList       []string
	organizationID string
}

// Empty is the view of an absent or undecodable token.
var Empty = View{}

// Resolve builds a View from decoded claims. A nil claims value yields Empty.
func Resolve(claims *token.Claims) View {
	if claims == nil {
		return Empty
	}
	perms := token.PermissionsOf(claims)
	roles := token.RolesOf(claims)
	orgID, _ := token.OrganizationIDOf(claims)

	return View{
		permissions:    toSet(perms),
		permissionList: append([]string(nil), perms...),
		roles:          toSet(roles),
		roleList:       roles,
		organizationID: orgID,
	}
}

// FromToken decodes raw and resolves its view.
func FromToken(raw string) View {
	if raw == "" {
		return Empty
	}
	return Resolve(token.Decode(raw))
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// HasPermission reports whether v holds exactly name.
func HasPermission(v View, name string) bool {
	_, ok := v.permissions[name]
	return ok
}

// HasRole reports whether v holds exactly name.
func HasRole(v View, name string) bool {
	_, ok := v.roles[name]
	return ok
}

// Permissions returns the permissions in token order.
func (v View) Permissions() []string {
	return append([]string(nil), v.permissionList...)
}

// Roles returns the roles in token order.
func (v View) Roles() []string {
	return append([]string(nil), v.roleList...)
}

// OrganizationID returns the organization id and whether the token carried one.
func (v View) OrganizationID() (string, bool) {
	return v.organizationID, v.organizationID != ""
}

// IsEmpty reports whether v grants no permission, role or organization.
func (v View) IsEmpty() bool {
	return len(v.permissions) == 0 && len(v.roles) == 0 && v.organizationID == ""
}

// Resolver memoizes View on the access token. It is safe for concurrent use.
type Resolver struct {
	mu      sync.Mutex
	last    string
	view    View
	decodes int
}

// NewResolver creates an empty Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// View returns the view for raw, decoding only when raw differs from the
// previous call.
func (r *Resolver) View(raw string) View {
	r.mu.Lock()
	defer r.mu.Unlock()

	if raw == r.last {
		return r.view
	}
	r.last = raw
	if raw == "" {
		r.view = Empty
		return r.view
	}
	r.view = FromToken(raw)
	r.decodes++
	return r.view
}

// Decodes returns how many times the resolver decoded a token.
func (r *Resolver) Decodes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.decodes
}
