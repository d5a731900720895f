// Package authapi is a client for a GoTrue-compatible authentication API,
// the auth service of a Supabase project.
//
// The client owns the current session, persists it through a storage.Store,
// refreshes it before expiry, and notifies listeners of every change:
//
//	client, err := authapi.New(authapi.Config{
//		URL:     "http://127.0.0.1:54321",
//		AnonKey: anonKey,
//	})
//	sub := client.OnAuthStateChange(func(event authapi.Event, s *authapi.Session) {
//		log.Printf("%s: signed in=%v", event, s != nil)
//	})
//	defer sub.Unsubscribe()
//	session, err := client.SignInWithPassword(ctx, email, password)
//
// Listeners run synchronously, in mutation order, on the goroutine that
// changed the session. They must not call back into client methods that
// change the session.
//
// Backend responses are decoded into typed structs and checked before they
// are trusted: a session without tokens or a user without an id is rejected.
package authapi
