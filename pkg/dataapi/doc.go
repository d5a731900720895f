// Package dataapi runs row queries and RPC functions against the backend
// Postgres database under the caller's identity.
//
// Every call runs in its own transaction. Before the statement executes the
// transaction publishes the caller's JWT claims the way the hosted REST
// layer does (request.jwt.claims and request.jwt.claim.sub via set_config,
// scoped to the transaction) and switches to the authenticated or anon
// role, so row-level security policies see the same caller they would see
// behind the REST API. Claims are only published after the token signature
// has been checked by the configured token.Verifier; a client without one
// runs every call as anon.
//
//	db, err := dataapi.Open(ctx, dataapi.ConnectionConfig{URL: dsn})
//	data := dataapi.New(db, authClient.TokenSource(),
//		dataapi.WithVerifier(token.NewSecretVerifier(jwtSecret)))
//
//	var ok bool
//	err = data.RPC(ctx, "validate_client_secret", dataapi.Params{
//		"p_product_id":    productID,
//		"p_client_secret": secret,
//	}, &ok)
package dataapi
