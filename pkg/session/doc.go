// Package session holds the authoritative auth state of one client.
//
// A Store follows an auth backend (normally *authapi.Client): it subscribes
// to backend auth events, fetches the current session once at startup and
// exposes the result as an immutable Snapshot. Each snapshot carries the
// authorization view derived from its access token, computed in the same
// critical section as the session update, so readers never observe a
// session paired with a stale view.
//
// # States
//
//	Initializing -> Unauthenticated <-> Authenticated
//
// Initializing lasts until the first backend event or the startup fetch,
// whichever resolves first. Ready returns a channel closed at that point.
//
// # Delivery
//
// Snapshots are published through a single dispatcher goroutine with an
// unbounded FIFO queue. Subscribers see snapshots in the order the store
// applied them and may call back into the store from their callback.
//
//	store := session.New(client, session.WithLogger(logger))
//	defer store.Close()
//
//	unsubscribe := store.Subscribe(func(s session.Snapshot) {
//		fmt.Println(s.State, s.Version)
//	})
//	defer unsubscribe()
package session
