package async

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xzegga/ait-saas-sso/pkg/observability"
)

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not finish")
	}
}

func TestSafeGo_Success(t *testing.T) {
	executed := atomic.Bool{}

	done := SafeGo(context.Background(), nil, time.Second, "test task", func(ctx context.Context) error {
		executed.Store(true)
		return nil
	})
	waitDone(t, done)

	if !executed.Load() {
		t.Error("SafeGo did not execute function")
	}
}

func TestSafeGo_WithError(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.WarnLevel, &buf)

	done := SafeGo(context.Background(), logger, time.Second, "test task", func(ctx context.Context) error {
		return errors.New("test error")
	})
	waitDone(t, done)

	if !strings.Contains(buf.String(), "test error") {
		t.Errorf("expected error to be logged, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "task=\"test task\"") {
		t.Errorf("expected task field, got %q", buf.String())
	}
}

func TestSafeGo_Timeout(t *testing.T) {
	completed := atomic.Bool{}

	done := SafeGo(context.Background(), nil, 50*time.Millisecond, "test task", func(ctx context.Context) error {
		select {
		case <-time.After(500 * time.Millisecond):
			completed.Store(true)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	waitDone(t, done)

	if completed.Load() {
		t.Error("Function should have been canceled by timeout")
	}
}

func TestSafeGo_PanicRecovery(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.ErrorLevel, &buf)

	done := SafeGo(context.Background(), logger, time.Second, "test task", func(ctx context.Context) error {
		panic("test panic")
	})
	waitDone(t, done)

	if !strings.Contains(buf.String(), "PANIC recovered") {
		t.Errorf("expected panic to be logged, got %q", buf.String())
	}
}

func TestSafeGo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	canceled := atomic.Bool{}

	done := SafeGo(ctx, nil, time.Second, "test task", func(ctx context.Context) error {
		<-ctx.Done()
		canceled.Store(true)
		return ctx.Err()
	})
	cancel()
	waitDone(t, done)

	if !canceled.Load() {
		t.Error("Function did not observe cancellation")
	}
}
