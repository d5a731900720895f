// Package async provides safe goroutines and operation state tracking.
//
// # SafeGo
//
// SafeGo runs a task on its own goroutine with panic recovery, a timeout and
// structured error logging. It returns a channel closed when the task ends.
//
//	async.SafeGo(ctx, logger, 5*time.Second, "audit write", func(ctx context.Context) error {
//		return auditor.Record(ctx, event)
//	})
//
// # Tracker
//
// Tracker records the loading and error state of a repeatable operation,
// the way a UI binds a button's spinner and error text to a request:
//
//	login := async.NewTracker[*authapi.Session](idperr.KindAuthentication, "Login failed")
//	sess, err := login.Run(ctx, func(ctx context.Context) (*authapi.Session, error) {
//		return client.SignInWithPassword(ctx, email, password)
//	})
//	if login.State().Loading { ... }
//
// Errors are normalized to *idperr.Error before they are stored, passed to
// OnError and returned.
package async
