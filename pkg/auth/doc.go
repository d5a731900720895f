// Package auth implements the end-user authentication flows.
//
// # Overview
//
// Service wraps the auth API and the data API with the checks and follow-up
// calls each flow needs:
//
//   - Login: email/password sign-in
//   - SignUp: account creation, then fn_complete_user_signup to create the
//     organization and subscription
//   - ForgotPassword / ResetPassword / ChangePassword
//   - Logout: through the session store so state stays authoritative
//
// Input is validated locally before any network call. Every flow reports
// its loading and error state through an async.Tracker and records an
// audit event.
//
//	svc := auth.NewService(auth.Deps{
//		Auth:    client,
//		Session: store,
//		Data:    data,
//	})
//	res, err := svc.SignUp(ctx, auth.SignUpParams{...})
//
// # Related Packages
//
//   - pkg/authapi: auth API wire client
//   - pkg/session: session state
//   - pkg/validation: input rules
package auth
