package billing

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/xzegga/ait-saas-sso/pkg/async"
	"github.com/xzegga/ait-saas-sso/pkg/dataapi"
	"github.com/xzegga/ait-saas-sso/pkg/idperr"
	"github.com/xzegga/ait-saas-sso/pkg/observability"
)

// OrganizationResolver picks the organization a call targets.
// *orgs.Service implements it.
type OrganizationResolver interface {
	ResolveOrganizationID(explicit string) (string, bool)
}

// Options configure a Service.
type Options struct {
	// ProductID is used when a call passes no product. It may be a product
	// UUID or a client_id.
	ProductID string
	// Concurrency bounds the per-plan fetches of AvailablePlans.
	Concurrency int
	Logger      *observability.Logger
}

// DefaultConcurrency is the number of plans AvailablePlans details at once.
const DefaultConcurrency = 4

// Service reads the catalog and subscriptions.
type Service struct {
	data        dataapi.Querier
	orgs        OrganizationResolver
	productID   string
	concurrency int
	logger      *observability.Logger

	intervals    *async.Tracker[[]BillingInterval]
	productPlans *async.Tracker[[]ProductPlan]
	available    *async.Tracker[[]AvailablePlan]
	subscription *async.Tracker[*Subscription]
}

// NewService creates a Service.
func NewService(data dataapi.Querier, orgs OrganizationResolver, opts Options) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Service{
		data:         data,
		orgs:         orgs,
		productID:    opts.ProductID,
		concurrency:  opts.Concurrency,
		logger:       opts.Logger.OrNop().Component("billing"),
		intervals:    async.NewTracker[[]BillingInterval](idperr.KindUnknown, "Failed to fetch intervals"),
		productPlans: async.NewTracker[[]ProductPlan](idperr.KindUnknown, "Failed to fetch plans"),
		available:    async.NewTracker[[]AvailablePlan](idperr.KindUnknown, "Failed to fetch plans"),
		subscription: async.NewTracker[*Subscription](idperr.KindUnknown, "Failed to fetch subscription"),
	}
}

// AvailablePlansState reports the latest AvailablePlans call.
func (s *Service) AvailablePlansState() async.State[[]AvailablePlan] {
	return s.available.State()
}

// SubscriptionState reports the latest CurrentSubscription call.
func (s *Service) SubscriptionState() async.State[*Subscription] {
	return s.subscription.State()
}

const intervalsQuery = `SELECT id, key, label, description, days, sort_order, is_active, created_at, updated_at
FROM billing_intervals
WHERE is_active = true AND deleted_at IS NULL
ORDER BY sort_order`

// Intervals lists the active billing intervals in display order.
func (s *Service) Intervals(ctx context.Context) ([]BillingInterval, error) {
	return s.intervals.Run(ctx, func(ctx context.Context) ([]BillingInterval, error) {
		intervals := []BillingInterval{}
		err := s.data.Query(ctx, "billing_intervals.list", intervalsQuery, nil, func(rows *sql.Rows) error {
			var bi BillingInterval
			var days sql.NullInt64
			if err := rows.Scan(&bi.ID, &bi.Key, &bi.Label, &bi.Description, &days,
				&bi.SortOrder, &bi.IsActive, &bi.CreatedAt, &bi.UpdatedAt); err != nil {
				return err
			}
			if days.Valid {
				d := int(days.Int64)
				bi.Days = &d
			}
			intervals = append(intervals, bi)
			return nil
		})
		if err != nil {
			s.logger.WithError(err).Error("failed to fetch billing intervals")
			return nil, fmt.Errorf("failed to fetch billing intervals: %w", err)
		}
		return intervals, nil
	})
}

const productPlansQuery = `SELECT pp.id, pp.product_id, pp.plan_id, pp.price, pp.currency, pp.is_public, pp.status,
       pp.created_at, pp.updated_at, pp.deleted_at,
       p.id, p.name, p.description, p.features, p.created_at, p.updated_at
FROM product_plans pp
LEFT JOIN plans p ON p.id = pp.plan_id
WHERE pp.product_id = $1 AND pp.status = true AND pp.deleted_at IS NULL
ORDER BY pp.created_at`

const productPlanPricesQuery = `SELECT id, product_plan_id, billing_interval, price, currency, discount_percentage,
       is_default, created_at, updated_at
FROM product_plan_prices
WHERE product_plan_id = ANY($1)
ORDER BY is_default DESC`

// ProductPlans lists a product's active plans with their prices. An empty
// productID falls back to the configured product.
func (s *Service) ProductPlans(ctx context.Context, productID string) ([]ProductPlan, error) {
	return s.productPlans.Run(ctx, func(ctx context.Context) ([]ProductPlan, error) {
		if productID == "" {
			productID = s.productID
		}
		if productID == "" {
			return nil, idperr.Validation("Product ID is required")
		}

		plans := []ProductPlan{}
		err := s.data.Query(ctx, "product_plans.list", productPlansQuery, []any{productID}, func(rows *sql.Rows) error {
			pp, err := scanProductPlan(rows)
			if err != nil {
				return err
			}
			plans = append(plans, pp)
			return nil
		})
		if err != nil {
			s.logger.WithError(err).WithField("product_id", productID).Error("failed to fetch product plans")
			return nil, fmt.Errorf("failed to fetch product plans: %w", err)
		}
		if len(plans) == 0 {
			return plans, nil
		}

		ids := make([]string, len(plans))
		index := make(map[string]int, len(plans))
		for i, pp := range plans {
			ids[i] = pp.ID
			index[pp.ID] = i
		}
		err = s.data.Query(ctx, "product_plan_prices.list", productPlanPricesQuery, []any{pq.Array(ids)}, func(rows *sql.Rows) error {
			var p ProductPlanPrice
			if err := rows.Scan(&p.ID, &p.ProductPlanID, &p.BillingInterval, &p.Price, &p.Currency,
				&p.DiscountPercentage, &p.IsDefault, &p.CreatedAt, &p.UpdatedAt); err != nil {
				return err
			}
			if i, ok := index[p.ProductPlanID]; ok {
				plans[i].PricesByInterval = append(plans[i].PricesByInterval, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch product plan prices: %w", err)
		}
		return plans, nil
	})
}

func scanProductPlan(rows *sql.Rows) (ProductPlan, error) {
	var pp ProductPlan
	var (
		currency             sql.NullString
		isPublic             sql.NullBool
		planID, planName     sql.NullString
		planDesc             *string
		features             []byte
		planCreated, planUpd sql.NullTime
	)
	if err := rows.Scan(&pp.ID, &pp.ProductID, &pp.PlanID, &pp.Price, &currency, &isPublic, &pp.Status,
		&pp.CreatedAt, &pp.UpdatedAt, &pp.DeletedAt,
		&planID, &planName, &planDesc, &features, &planCreated, &planUpd); err != nil {
		return pp, err
	}
	pp.Currency = currency.String
	if pp.Currency == "" {
		pp.Currency = DefaultCurrency
	}
	pp.IsPublic = isPublic.Bool
	if planID.Valid {
		plan := &Plan{
			ID:          planID.String,
			Name:        planName.String,
			Description: planDesc,
			CreatedAt:   planCreated.Time,
			UpdatedAt:   planUpd.Time,
		}
		if len(features) > 0 {
			if err := json.Unmarshal(features, &plan.Features); err != nil {
				return pp, fmt.Errorf("decode plan features: %w", err)
			}
		}
		pp.Plan = plan
	}
	return pp, nil
}

const subscriptionQuery = `SELECT s.id, s.org_id, s.product_id, s.product_plan_id, s.status,
       s.current_period_start, s.current_period_end, s.trial_starts_at, s.trial_ends_at,
       s.created_at, s.updated_at, s.deleted_at,
       pr.id, pr.name, pr.description, pr.status,
       pp.id, pp.plan_id, pl.name
FROM org_product_subscriptions s
LEFT JOIN products pr ON pr.id = s.product_id
LEFT JOIN product_plans pp ON pp.id = s.product_plan_id
LEFT JOIN plans pl ON pl.id = pp.plan_id
WHERE s.org_id = $1 AND s.status = 'active' AND s.deleted_at IS NULL
ORDER BY s.created_at DESC
LIMIT 1`

// CurrentSubscription returns the organization's active subscription. It
// returns (nil, nil) when there is none or no organization can be resolved.
func (s *Service) CurrentSubscription(ctx context.Context, orgID string) (*Subscription, error) {
	return s.subscription.Run(ctx, func(ctx context.Context) (*Subscription, error) {
		id, ok := s.orgs.ResolveOrganizationID(orgID)
		if !ok {
			return nil, nil
		}

		sub := &Subscription{}
		var (
			productID, productName sql.NullString
			productDesc            *string
			productStatus          sql.NullBool
			ppID, ppPlanID, plName sql.NullString
		)
		err := s.data.QueryRow(ctx, "org_product_subscriptions.current", subscriptionQuery, []any{id},
			&sub.ID, &sub.OrgID, &sub.ProductID, &sub.ProductPlanID, &sub.Status,
			&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.TrialStartsAt, &sub.TrialEndsAt,
			&sub.CreatedAt, &sub.UpdatedAt, &sub.DeletedAt,
			&productID, &productName, &productDesc, &productStatus,
			&ppID, &ppPlanID, &plName)
		if dataapi.IsNoRows(err) {
			return nil, nil
		}
		if err != nil {
			s.logger.WithError(err).WithField("org_id", id).Error("failed to fetch subscription")
			return nil, fmt.Errorf("failed to fetch subscription: %w", err)
		}

		if productID.Valid {
			sub.Product = &Product{
				ID:          productID.String,
				Name:        productName.String,
				Description: productDesc,
				Status:      productStatus.Bool,
			}
		}
		if ppID.Valid {
			sub.ProductPlan = &ProductPlan{ID: ppID.String, ProductID: sub.ProductID, PlanID: ppPlanID.String}
			if plName.Valid {
				sub.ProductPlan.Plan = &Plan{ID: ppPlanID.String, Name: plName.String}
			}
		}
		s.logger.WithFields(map[string]interface{}{
			"org_id":          id,
			"subscription_id": sub.ID,
		}).Debug("current subscription fetched")
		return sub, nil
	})
}
