package async

import (
	"context"
	"sync"

	"github.com/xzegga/ait-saas-sso/pkg/idperr"
)

// State is a snapshot of a tracked operation.
type State[T any] struct {
	Data    T
	Loading bool
	Err     *idperr.Error
}

// Tracker tracks the state of one repeatable operation. It is safe for
// concurrent use; the latest Run to finish determines Data and Err.
type Tracker[T any] struct {
	kind     idperr.Kind
	fallback string

	// OnSuccess and OnError, when set, are called after each Run.
	OnSuccess func(T)
	OnError   func(*idperr.Error)

	mu       sync.Mutex
	state    State[T]
	inFlight int
}

// NewTracker creates a tracker whose untyped errors become kind, using
// fallback when the error has no message.
func NewTracker[T any](kind idperr.Kind, fallback string) *Tracker[T] {
	return &Tracker[T]{kind: kind, fallback: fallback}
}

// Run marks the operation loading, clears the previous error and calls fn.
func (t *Tracker[T]) Run(ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	t.mu.Lock()
	t.inFlight++
	t.state.Loading = true
	t.state.Err = nil
	t.mu.Unlock()

	data, err := fn(ctx)

	var typed *idperr.Error
	if err != nil {
		typed = idperr.Normalize(err, t.kind, t.fallback)
	}

	t.mu.Lock()
	t.inFlight--
	t.state.Loading = t.inFlight > 0
	if typed != nil {
		t.state.Err = typed
	} else {
		t.state.Data = data
	}
	t.mu.Unlock()

	if typed != nil {
		if t.OnError != nil {
			t.OnError(typed)
		}
		var zero T
		return zero, typed
	}
	if t.OnSuccess != nil {
		t.OnSuccess(data)
	}
	return data, nil
}

// State returns the current state.
func (t *Tracker[T]) State() State[T] {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the last error as an error value, nil if the last run succeeded.
func (t *Tracker[T]) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Err == nil {
		return nil
	}
	return t.state.Err
}

// Reset clears data and error. It does not affect runs in flight.
func (t *Tracker[T]) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Data = *new(T)
	t.state.Err = nil
}

// Loading reports whether a run is in flight.
func (t *Tracker[T]) Loading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Loading
}
