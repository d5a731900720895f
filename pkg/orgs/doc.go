// Package orgs manages the caller's organization: its settings, members and
// the product roles members can be granted.
//
// # Overview
//
// The organization a call targets is resolved in order from:
//
//  1. the id passed to the call
//  2. the organization configured for the client
//  3. the org_id claim of the current access token
//
// Reads with no resolvable organization return nothing; writes fail with
// "Organization ID not available".
//
// # Usage Example
//
//	svc := orgs.NewService(data, store, orgs.Options{OrganizationID: cfg.OrganizationID})
//	org, err := svc.Get(ctx, "")
//	members, err := svc.Members(ctx, "")
//	err = svc.InviteMember(ctx, "", orgs.Invitation{Email: "new@example.com", Role: orgs.MemberRoleMember})
//
// Members are removed softly: their row gets a deleted_at timestamp and
// drops out of Members.
//
// # Related Packages
//
//   - pkg/dataapi: RLS-scoped queries and RPCs
//   - pkg/profile: member profiles
package orgs
