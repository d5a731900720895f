package middleware

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/xzegga/ait-saas-sso/pkg/contextkeys"
	"github.com/xzegga/ait-saas-sso/pkg/httputil"
	"github.com/xzegga/ait-saas-sso/pkg/orgs"
)

// RequireOrganization resolves the organization a request targets: the
// org_id path variable or query parameter, then the configured
// organization, then the one in the visitor's token. Requests with none get
// a 400.
func RequireOrganization(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := ClientFromRequest(r)
		if c == nil {
			httputil.WriteServiceUnavailable(w, "identity client unavailable")
			return
		}

		explicit := mux.Vars(r)["org_id"]
		if explicit == "" {
			explicit = httputil.ParseQueryString(r, "org_id", "")
		}
		orgID, ok := c.Organizations().ResolveOrganizationID(explicit)
		if !ok {
			httputil.WriteIDPError(w, orgs.ErrNoOrganization)
			return
		}

		next.ServeHTTP(w, r.WithContext(contextkeys.WithOrgID(r.Context(), orgID)))
	})
}
