package profile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xzegga/ait-saas-sso/pkg/async"
	"github.com/xzegga/ait-saas-sso/pkg/dataapi"
	"github.com/xzegga/ait-saas-sso/pkg/idperr"
	"github.com/xzegga/ait-saas-sso/pkg/observability"
	"github.com/xzegga/ait-saas-sso/pkg/session"
	"github.com/xzegga/ait-saas-sso/pkg/validation"
)

// User roles.
const (
	RoleUser       = "user"
	RoleSuperAdmin = "super_admin"
)

// User is a profiles row.
type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	FullName  *string    `json:"full_name,omitempty"`
	AvatarURL *string    `json:"avatar_url,omitempty"`
	Role      string     `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Update holds the profile fields to change; nil fields are left alone.
type Update struct {
	FullName  *string `json:"full_name,omitempty" validate:"omitempty,notblank" msg:"Full name is required"`
	AvatarURL *string `json:"avatar_url,omitempty" validate:"omitempty,url" msg:"Invalid avatar URL"`
	Role      *string `json:"role,omitempty" validate:"omitempty,oneof=user super_admin" msg:"Invalid role"`
}

func (u Update) assignments() ([]string, []any) {
	var cols []string
	var args []any
	add := func(col string, v *string) {
		if v != nil {
			args = append(args, *v)
			cols = append(cols, fmt.Sprintf("%s = $%d", col, len(args)))
		}
	}
	add("full_name", u.FullName)
	add("avatar_url", u.AvatarURL)
	add("role", u.Role)
	return cols, args
}

// Columns selected for a User, in scan order.
const Columns = "id, email, full_name, avatar_url, role, created_at, updated_at, deleted_at"

// ScanDest returns the scan targets matching Columns.
func (u *User) ScanDest() []any {
	return []any{&u.ID, &u.Email, &u.FullName, &u.AvatarURL, &u.Role, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt}
}

// SessionSource supplies the current session snapshot.
type SessionSource interface {
	Snapshot() session.Snapshot
}

// Service reads and writes the current user's profile.
type Service struct {
	data     dataapi.Querier
	sessions SessionSource
	logger   *observability.Logger

	get    *async.Tracker[*User]
	update *async.Tracker[*User]
}

// NewService creates a Service.
func NewService(data dataapi.Querier, sessions SessionSource, logger *observability.Logger) *Service {
	return &Service{
		data:     data,
		sessions: sessions,
		logger:   logger.OrNop().Component("profile"),
		get:      async.NewTracker[*User](idperr.KindUnknown, "Failed to fetch profile"),
		update:   async.NewTracker[*User](idperr.KindUnknown, "Failed to update profile"),
	}
}

// State reports the latest fetch.
func (s *Service) State() async.State[*User] {
	return s.get.State()
}

// Get fetches the signed-in user's profile. It returns (nil, nil) when no
// one is signed in.
func (s *Service) Get(ctx context.Context) (*User, error) {
	return s.get.Run(ctx, func(ctx context.Context) (*User, error) {
		userID := s.sessions.Snapshot().UserID()
		if userID == "" {
			return nil, nil
		}

		u := &User{}
		err := s.data.QueryRow(ctx, "profiles.get",
			"SELECT "+Columns+" FROM profiles WHERE id = $1",
			[]any{userID}, u.ScanDest()...)
		if err != nil {
			s.logger.WithError(err).WithField("user_id", userID).Error("failed to fetch profile")
			if dataapi.IsNoRows(err) {
				return nil, idperr.New(idperr.KindUnknown, "Profile not found", err)
			}
			return nil, fmt.Errorf("failed to fetch profile: %w", err)
		}
		return u, nil
	})
}

// Update changes the signed-in user's profile and returns the stored row.
// An empty update returns the current profile.
func (s *Service) Update(ctx context.Context, upd Update) (*User, error) {
	return s.update.Run(ctx, func(ctx context.Context) (*User, error) {
		if err := validation.Struct(upd); err != nil {
			return nil, err
		}
		userID := s.sessions.Snapshot().UserID()
		if userID == "" {
			return nil, idperr.Authentication("User not authenticated", nil)
		}

		cols, args := upd.assignments()
		if len(cols) == 0 {
			return s.Get(ctx)
		}
		args = append(args, userID)
		query := fmt.Sprintf("UPDATE profiles SET %s WHERE id = $%d RETURNING %s",
			strings.Join(cols, ", "), len(args), Columns)

		u := &User{}
		if err := s.data.QueryRow(ctx, "profiles.update", query, args, u.ScanDest()...); err != nil {
			s.logger.WithError(err).WithField("user_id", userID).Error("failed to update profile")
			return nil, fmt.Errorf("failed to update profile: %w", err)
		}
		s.logger.WithField("user_id", userID).Info("profile updated")
		return u, nil
	})
}
