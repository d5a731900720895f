// Package authz derives an authorization view from a session access token.
//
// A View is a pure function of the token claims: the permission set, the
// role set and the organization id. Queries are exact string membership
// tests. There is no hierarchy, wildcard or prefix matching; callers that
// accept alternate spellings (feature flags) check each literal explicitly.
//
// Resolver memoizes the view on access-token identity so repeated reads of
// the same session decode the token once.
package authz
