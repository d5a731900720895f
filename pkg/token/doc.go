// Package token decodes session access tokens into claims.
//
// # Trust
//
// Decode does NOT verify the token signature. It reads the payload segment of
// a compact JWT and nothing else. Claims obtained this way are only as
// trustworthy as the channel the token arrived on: use them for advisory
// decisions (what to show a signed-in user) on tokens received directly from
// the authentication backend over TLS. Never use decoded claims to enforce
// access to data; the backend enforces that with row-level security.
//
// When a signing secret or JWKS endpoint is available, a Verifier checks the
// signature and standard time claims before returning claims:
//
//	v := token.NewSecretVerifier([]byte(os.Getenv("IDP_JWT_SECRET")))
//	claims, err := v.Verify(ctx, accessToken)
//
// # Extraction
//
// PermissionsOf, RolesOf and OrganizationIDOf read typed fields out of
// decoded claims. They accept nil and return empty values for it, so a
// failed decode flows through as "no permissions, no role, no organization".
// Values are returned verbatim; no case folding or de-duplication happens.
package token
