// Package validation checks user input before it reaches the backend.
//
// # Overview
//
// Inputs are plain structs annotated with go-playground/validator tags. A
// `msg` tag carries the message reported when the field fails, so callers
// surface the same text whichever rule tripped:
//
//	type Credentials struct {
//		Email    string `validate:"idp_email" msg:"Invalid email address"`
//		Password string `validate:"min=6" msg:"Password must be at least 6 characters"`
//	}
//
//	if err := validation.Struct(creds); err != nil {
//		return err // *idperr.Error of kind VALIDATION_ERROR
//	}
//
// Fields are checked in declaration order and the first failure wins.
//
// # Custom Rules
//
//   - idp_email: something@something.tld, no whitespace
//   - notblank: non-empty after trimming whitespace
//
// # Related Packages
//
//   - pkg/idperr: error kinds
//   - pkg/auth: login and sign-up inputs
package validation
