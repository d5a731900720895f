// Package api is the example web application built on the idp SDK.
//
// # Overview
//
// The server exposes the credential forms as JSON endpoints and a set of
// pages guarded by the gate middleware:
//
//	GET  /                            visitor status, whether forms may submit
//	POST /login                       password sign-in
//	POST /signup                      sign-up with organization and subscription
//	POST /forgot-password             send a recovery email
//	POST /reset-password              set a new password after recovery
//	POST /logout                      sign out
//	GET  /dashboard                   permission and feature decisions
//	GET  /profile, PUT /profile       the signed-in user's profile
//	GET  /organization, PUT ...       the resolved organization
//	GET  /organization/members        members with profiles
//	POST /organization/members/invite invite a member
//	DEL  /organization/members/{id}   remove a member
//	GET  /billing                     subscription, intervals and plans
//	GET  /metrics, /health/*          operational endpoints
//
// # Visitors
//
// Each browser is identified by the idp_visitor cookie. The cookie maps to
// an idp.Client held in an expirable LRU; the client keeps its session in
// the shared session store under "visitor:<id>". Evicted clients are
// closed in the background.
//
// The credential forms are rate limited per client IP.
package api
