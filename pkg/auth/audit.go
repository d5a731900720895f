package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/xzegga/ait-saas-sso/pkg/observability"
)

// AuditEvent is one security-relevant auth event.
type AuditEvent struct {
	Action         string    `json:"action"`
	UserID         string    `json:"user_id,omitempty"`
	Email          string    `json:"email,omitempty"`
	OrganizationID string    `json:"organization_id,omitempty"`
	IPAddress      string    `json:"ip_address,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
	Status         string    `json:"status"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Auditor records audit events.
type Auditor interface {
	LogAction(ctx context.Context, event *AuditEvent) error
}

// Audit action constants
const (
	ActionLogin          = "auth.login"
	ActionSignUp         = "auth.signup"
	ActionLogout         = "auth.logout"
	ActionPasswordForgot = "auth.password_forgot"
	ActionPasswordReset  = "auth.password_reset"
	ActionPasswordChange = "auth.password_change"
)

// Status constants
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

func validateEvent(event *AuditEvent) error {
	if event.Action == "" {
		return fmt.Errorf("action is required")
	}
	if event.Status == "" {
		return fmt.Errorf("status is required")
	}
	return nil
}

// LogAuditor writes audit events as structured log lines.
type LogAuditor struct {
	logger *observability.Logger
}

// NewLogAuditor creates an auditor logging to logger.
func NewLogAuditor(logger *observability.Logger) *LogAuditor {
	return &LogAuditor{logger: logger.OrNop().Component("audit")}
}

// LogAction logs an audit event
func (a *LogAuditor) LogAction(ctx context.Context, event *AuditEvent) error {
	if err := validateEvent(event); err != nil {
		return err
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	l := a.logger.WithFields(map[string]interface{}{
		"action":     event.Action,
		"status":     event.Status,
		"user_id":    event.UserID,
		"ip_address": event.IPAddress,
	})
	if id := observability.GetRequestID(ctx); id != "" {
		l = l.WithField("request_id", id)
	}
	if event.ErrorMessage != "" {
		l = l.WithField("error", event.ErrorMessage)
	}
	l.Info("audit")
	return nil
}

// MemoryAuditor keeps events in memory, newest last.
type MemoryAuditor struct {
	mu     sync.Mutex
	events []AuditEvent
	limit  int
}

// NewMemoryAuditor keeps at most limit events; 0 means unbounded.
func NewMemoryAuditor(limit int) *MemoryAuditor {
	return &MemoryAuditor{limit: limit}
}

func (a *MemoryAuditor) LogAction(_ context.Context, event *AuditEvent) error {
	if err := validateEvent(event); err != nil {
		return err
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, *event)
	if a.limit > 0 && len(a.events) > a.limit {
		a.events = a.events[len(a.events)-a.limit:]
	}
	return nil
}

// Events returns a copy of the recorded events.
func (a *MemoryAuditor) Events() []AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]AuditEvent(nil), a.events...)
}

type requestInfoKey struct{}

type requestInfo struct {
	ip        string
	userAgent string
}

// WithRequest attaches the client address and user agent of r to ctx so
// audit events raised while serving r carry them.
func WithRequest(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, requestInfo{
		ip:        getClientIP(r),
		userAgent: r.UserAgent(),
	})
}

func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (if behind proxy)
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		return forwarded
	}

	// Check X-Real-IP header
	realIP := r.Header.Get("X-Real-IP")
	if realIP != "" {
		return realIP
	}

	// Use remote address
	return r.RemoteAddr
}
