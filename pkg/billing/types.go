package billing

import "time"

// SubscriptionStatus is the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionInactive  SubscriptionStatus = "inactive"
	SubscriptionTrial     SubscriptionStatus = "trial"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
)

// PaymentStatus is the state of an invoice.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Billing interval keys shipped with the backend.
const (
	IntervalMonth = "month"
	IntervalYear  = "year"
)

// Defaults applied to incomplete catalog rows.
const (
	DefaultCurrency  = "USD"
	DefaultPlanName  = "Unnamed Plan"
	DefaultDataType  = "text"
	unknownSortOrder = 999
)

// Product is a products row.
type Product struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Description  *string    `json:"description,omitempty"`
	ClientID     *string    `json:"client_id,omitempty"`
	RedirectURLs []string   `json:"redirect_urls,omitempty"`
	Status       bool       `json:"status"`
	TrialDays    *int       `json:"trial_days,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Plan is a plans row.
type Plan struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description *string        `json:"description,omitempty"`
	Features    map[string]any `json:"features,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   *time.Time     `json:"deleted_at,omitempty"`
}

// ProductPlan offers a plan on a product.
type ProductPlan struct {
	ID               string             `json:"id"`
	ProductID        string             `json:"product_id"`
	PlanID           string             `json:"plan_id"`
	Price            *float64           `json:"price,omitempty"`
	Currency         string             `json:"currency"`
	IsPublic         bool               `json:"is_public"`
	Status           bool               `json:"status"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
	DeletedAt        *time.Time         `json:"deleted_at,omitempty"`
	Plan             *Plan              `json:"plan,omitempty"`
	PricesByInterval []ProductPlanPrice `json:"prices_by_interval,omitempty"`
}

// ProductPlanPrice is the price of a product plan for one interval.
type ProductPlanPrice struct {
	ID                 string    `json:"id"`
	ProductPlanID      string    `json:"product_plan_id"`
	BillingInterval    string    `json:"billing_interval"`
	Price              float64   `json:"price"`
	Currency           string    `json:"currency"`
	DiscountPercentage *float64  `json:"discount_percentage,omitempty"`
	IsDefault          bool      `json:"is_default"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// BillingInterval is a billing_intervals row.
type BillingInterval struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	Label       string    `json:"label"`
	Description *string   `json:"description,omitempty"`
	Days        *int      `json:"days,omitempty"`
	SortOrder   int       `json:"sort_order"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Subscription is an org_product_subscriptions row with its product and
// plan.
type Subscription struct {
	ID                 string             `json:"id"`
	OrgID              string             `json:"org_id"`
	ProductID          string             `json:"product_id"`
	ProductPlanID      string             `json:"product_plan_id"`
	Status             SubscriptionStatus `json:"status"`
	CurrentPeriodStart *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time         `json:"current_period_end,omitempty"`
	TrialStartsAt      *time.Time         `json:"trial_starts_at,omitempty"`
	TrialEndsAt        *time.Time         `json:"trial_ends_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
	DeletedAt          *time.Time         `json:"deleted_at,omitempty"`
	Product            *Product           `json:"product,omitempty"`
	ProductPlan        *ProductPlan       `json:"product_plan,omitempty"`
}

// InTrial reports whether the subscription's trial is running at now.
func (s *Subscription) InTrial(now time.Time) bool {
	if s == nil || s.TrialEndsAt == nil {
		return false
	}
	if s.TrialStartsAt != nil && now.Before(*s.TrialStartsAt) {
		return false
	}
	return now.Before(*s.TrialEndsAt)
}

// PlanPrice is one price option of an AvailablePlan.
type PlanPrice struct {
	BillingInterval      string  `json:"billing_interval"`
	BillingIntervalLabel string  `json:"billing_interval_label"`
	Price                float64 `json:"price"`
	Currency             string  `json:"currency"`
	IsDefault            bool    `json:"is_default"`
}

// PlanEntitlement is something a plan grants.
type PlanEntitlement struct {
	Key         string  `json:"key"`
	Description *string `json:"description,omitempty"`
	ValueText   *string `json:"value_text,omitempty"`
	DataType    string  `json:"data_type"`
}

// AvailablePlan is a plan offered at sign-up.
type AvailablePlan struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Description     *string           `json:"description,omitempty"`
	Prices          []PlanPrice       `json:"prices"`
	IsTrialEligible bool              `json:"is_trial_eligible"`
	Entitlements    []PlanEntitlement `json:"entitlements"`
	ProductPlanID   string            `json:"product_plan_id"`
}

// DefaultPrice returns the default price, or the first one.
func (p AvailablePlan) DefaultPrice() (PlanPrice, bool) {
	for _, price := range p.Prices {
		if price.IsDefault {
			return price, true
		}
	}
	if len(p.Prices) > 0 {
		return p.Prices[0], true
	}
	return PlanPrice{}, false
}

// PaymentAccount links an organization to a payment provider account.
type PaymentAccount struct {
	ID                string  `json:"id"`
	OrgID             string  `json:"org_id"`
	ProviderID        string  `json:"provider_id"`
	ExternalAccountID string  `json:"external_account_id"`
	ProviderName      *string `json:"provider_name,omitempty"`
}

// PaymentInvoice is an invoice issued by the payment provider.
type PaymentInvoice struct {
	ID                string        `json:"id"`
	OrgID             string        `json:"org_id"`
	ProviderID        string        `json:"provider_id"`
	ExternalInvoiceID string        `json:"external_invoice_id"`
	Amount            float64       `json:"amount"`
	Currency          string        `json:"currency"`
	Status            PaymentStatus `json:"status"`
	InvoiceURL        *string       `json:"invoice_url,omitempty"`
	PDFURL            *string       `json:"pdf_url,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	ProviderName      *string       `json:"provider_name,omitempty"`
}
