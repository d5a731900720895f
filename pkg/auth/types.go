package auth

import (
	"time"
)

// Credentials are a login attempt.
type Credentials struct {
	Email    string `json:"email" validate:"idp_email" msg:"Invalid email address"`
	Password string `json:"password" validate:"min=6" msg:"Password must be at least 6 characters"`
}

// SignUpParams describe a new account and the subscription it starts.
type SignUpParams struct {
	Email     string `json:"email" validate:"idp_email" msg:"Invalid email address"`
	Password  string `json:"password" validate:"min=6" msg:"Password must be at least 6 characters"`
	FullName  string `json:"full_name" validate:"notblank" msg:"Full name is required"`
	ProductID string `json:"product_id" validate:"required" msg:"Product ID is required"`
	PlanID    string `json:"plan_id" validate:"required" msg:"Plan ID is required"`
	// BillingInterval is an interval key such as "month" or "year".
	BillingInterval string `json:"billing_interval,omitempty"`
	// OrgName names the new organization. Empty lets the backend derive it.
	OrgName     string `json:"org_name,omitempty"`
	UseUserName bool   `json:"use_user_name"`
}

// DefaultBillingInterval is used when SignUpParams.BillingInterval is empty.
const DefaultBillingInterval = "month"

// Subscription status values returned by sign-up.
const (
	SignUpStatusTrial  = "trial"
	SignUpStatusActive = "active"
)

// SignUpResult is a completed sign-up.
type SignUpResult struct {
	UserID         string     `json:"user_id"`
	OrgID          string     `json:"org_id"`
	SubscriptionID string     `json:"subscription_id"`
	Status         string     `json:"status"`
	TrialDays      *int       `json:"trial_days,omitempty"`
	TrialEndsAt    *time.Time `json:"trial_ends_at,omitempty"`
}

// completeSignupResult is the fn_complete_user_signup payload.
type completeSignupResult struct {
	Success        bool       `json:"success"`
	OrgID          string     `json:"org_id"`
	SubscriptionID string     `json:"subscription_id"`
	Status         string     `json:"status"`
	TrialDays      *int       `json:"trial_days"`
	TrialEndsAt    *time.Time `json:"trial_ends_at"`
	Error          string     `json:"error"`
}

type passwordInput struct {
	Password string `validate:"min=6" msg:"Password must be at least 6 characters"`
}

type emailInput struct {
	Email string `validate:"idp_email" msg:"Invalid email address"`
}

// Operation names a tracked flow.
type Operation string

const (
	OpLogin          Operation = "login"
	OpSignUp         Operation = "signup"
	OpForgotPassword Operation = "forgot_password"
	OpResetPassword  Operation = "reset_password"
	OpChangePassword Operation = "change_password"
	OpLogout         Operation = "logout"
)
