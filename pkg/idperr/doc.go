// Package idperr defines the typed errors surfaced by the SDK.
//
// Every error returned across a package boundary is either an *Error or wraps
// one. Callers branch on the kind with errors.Is against the sentinels:
//
//	if errors.Is(err, idperr.ErrValidation) {
//		// show the message next to the form field
//	}
//
// Kinds and their default status codes:
//
//   - AUTH_ERROR (401): credentials rejected, no session returned, sign-out failed
//   - AUTHORIZATION_ERROR (403): the caller lacks a permission
//   - VALIDATION_ERROR (400): local input failed a precondition before any network call
//   - NETWORK_ERROR (0): the backend could not be reached
//   - CONFIGURATION_ERROR (500): missing startup parameters or a rejected client secret
//
// Token decode failures are not errors; the decoder returns nil claims.
package idperr
