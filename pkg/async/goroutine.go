package async

import (
	"context"
	"time"

	"github.com/xzegga/ait-saas-sso/pkg/observability"
)

// SafeGo executes fn in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Timeout enforcement
// - Error logging
//
// The returned channel is closed when fn has returned or panicked.
//
// Example:
//
//	SafeGo(r.Context(), logger, 5*time.Second, "close evicted client", func(ctx context.Context) error {
//	    return client.Close()
//	})
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) <-chan struct{} {
	logger = logger.OrNop().WithField("task", taskName)
	done := make(chan struct{})

	go func() {
		defer close(done)

		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer observability.RecoverPanic(logger, taskName)

		if err := fn(ctx); err != nil {
			// the caller decides whether the task was critical
			logger.WithError(err).Warn("background task failed")
		}
	}()

	return done
}
