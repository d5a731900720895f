package billing

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/xzegga/ait-saas-sso/pkg/dataapi"
	"github.com/xzegga/ait-saas-sso/pkg/idperr"
)

const (
	productByIDQuery       = "SELECT id, trial_days, status FROM products WHERE id = $1 AND deleted_at IS NULL"
	productByClientIDQuery = "SELECT id, trial_days, status FROM products WHERE client_id = $1 AND deleted_at IS NULL"
)

const offeredPlansQuery = `SELECT pp.id, pp.is_public, p.id, p.name, p.description, p.is_public, p.status
FROM product_plans pp
JOIN plans p ON p.id = pp.plan_id
WHERE pp.product_id = $1 AND pp.status = true AND pp.deleted_at IS NULL
ORDER BY pp.created_at`

const planPricesQuery = `SELECT ppp.billing_interval, ppp.price, ppp.currency, ppp.is_default, bi.label, bi.sort_order
FROM product_plan_prices ppp
LEFT JOIN billing_intervals bi ON bi.key = ppp.billing_interval
WHERE ppp.product_plan_id = $1
ORDER BY ppp.is_default DESC`

const planEntitlementsQuery = `SELECT pe.value_text, e.key, e.description, e.data_type
FROM plan_entitlements pe
LEFT JOIN entitlements e ON e.id = pe.entitlement_id
WHERE pe.plan_id = $1`

// IsProductUUID reports whether id is a product UUID rather than a
// client_id.
func IsProductUUID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// offeredPlan is a product_plans row joined with its plan.
type offeredPlan struct {
	productPlanID   string
	productIsPublic sql.NullBool
	planID          string
	planName        sql.NullString
	planDescription *string
	planIsPublic    sql.NullBool
	planStatus      sql.NullBool
}

// public reports whether visitors may pick the plan. An explicit
// product_plans.is_public wins; when it is unset the plan's own flag
// decides. Inactive plans are never public.
func (o offeredPlan) public() bool {
	if !o.planStatus.Bool {
		return false
	}
	if o.productIsPublic.Valid {
		return o.productIsPublic.Bool
	}
	return o.planIsPublic.Valid && o.planIsPublic.Bool
}

// AvailablePlans lists the plans a visitor can choose at sign-up for
// productID, which may be a UUID or a client_id. An empty productID falls
// back to the configured product; with neither the result is empty.
func (s *Service) AvailablePlans(ctx context.Context, productID string) ([]AvailablePlan, error) {
	return s.available.Run(ctx, func(ctx context.Context) ([]AvailablePlan, error) {
		if productID == "" {
			productID = s.productID
		}
		if productID == "" {
			return []AvailablePlan{}, nil
		}
		logger := s.logger.WithField("product_id", productID)

		query := productByClientIDQuery
		if IsProductUUID(productID) {
			query = productByIDQuery
		}
		var (
			actualID  string
			trialDays sql.NullInt64
			status    sql.NullBool
		)
		err := s.data.QueryRow(ctx, "products.get", query, []any{productID}, &actualID, &trialDays, &status)
		if dataapi.IsNoRows(err) {
			logger.Error("product not found")
			return nil, idperr.New(idperr.KindUnknown, "Product not found: "+productID, err)
		}
		if err != nil {
			logger.WithError(err).Error("product query failed")
			return nil, fmt.Errorf("failed to fetch product: %w", err)
		}
		trialEligible := trialDays.Valid && trialDays.Int64 > 0

		var offered []offeredPlan
		err = s.data.Query(ctx, "product_plans.offered", offeredPlansQuery, []any{actualID}, func(rows *sql.Rows) error {
			var o offeredPlan
			if err := rows.Scan(&o.productPlanID, &o.productIsPublic, &o.planID, &o.planName,
				&o.planDescription, &o.planIsPublic, &o.planStatus); err != nil {
				return err
			}
			if o.public() {
				offered = append(offered, o)
			}
			return nil
		})
		if err != nil {
			logger.WithError(err).Error("product plans query failed")
			return nil, fmt.Errorf("failed to fetch plans: %w", err)
		}

		plans := make([]AvailablePlan, len(offered))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.concurrency)
		for i, o := range offered {
			g.Go(func() error {
				plans[i] = s.detailPlan(gctx, o, trialEligible)
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		logger.WithField("count", len(plans)).Info("available plans fetched")
		return plans, nil
	})
}

// detailPlan fetches a plan's prices and entitlements. A failed fetch is
// logged and leaves that list empty.
func (s *Service) detailPlan(ctx context.Context, o offeredPlan, trialEligible bool) AvailablePlan {
	plan := AvailablePlan{
		ID:              o.planID,
		Name:            o.planName.String,
		Description:     o.planDescription,
		IsTrialEligible: trialEligible,
		ProductPlanID:   o.productPlanID,
		Prices:          []PlanPrice{},
		Entitlements:    []PlanEntitlement{},
	}
	if plan.Name == "" {
		plan.Name = DefaultPlanName
	}
	if plan.Description != nil && *plan.Description == "" {
		plan.Description = nil
	}
	logger := s.logger.WithFields(map[string]interface{}{
		"plan_id":         o.planID,
		"product_plan_id": o.productPlanID,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		prices, err := s.planPrices(gctx, o.productPlanID)
		if err != nil {
			logger.WithError(err).Error("failed to fetch plan prices")
			return nil
		}
		plan.Prices = prices
		return nil
	})
	g.Go(func() error {
		entitlements, err := s.planEntitlements(gctx, o.planID)
		if err != nil {
			logger.WithError(err).Error("failed to fetch plan entitlements")
			return nil
		}
		plan.Entitlements = entitlements
		return nil
	})
	_ = g.Wait()
	return plan
}

type priceRow struct {
	price     PlanPrice
	sortOrder int
}

func (s *Service) planPrices(ctx context.Context, productPlanID string) ([]PlanPrice, error) {
	var rows []priceRow
	err := s.data.Query(ctx, "product_plan_prices.for_plan", planPricesQuery, []any{productPlanID}, func(r *sql.Rows) error {
		var (
			interval  string
			price     float64
			currency  sql.NullString
			isDefault sql.NullBool
			label     sql.NullString
			sortOrder sql.NullInt64
		)
		if err := r.Scan(&interval, &price, &currency, &isDefault, &label, &sortOrder); err != nil {
			return err
		}
		row := priceRow{
			price: PlanPrice{
				BillingInterval:      interval,
				BillingIntervalLabel: label.String,
				Price:                price,
				Currency:             currency.String,
				IsDefault:            isDefault.Bool,
			},
			sortOrder: unknownSortOrder,
		}
		if row.price.BillingIntervalLabel == "" {
			row.price.BillingIntervalLabel = interval
		}
		if row.price.Currency == "" {
			row.price.Currency = DefaultCurrency
		}
		if sortOrder.Valid {
			row.sortOrder = int(sortOrder.Int64)
		}
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// default first, then interval display order
	slices.SortStableFunc(rows, func(a, b priceRow) int {
		if a.price.IsDefault != b.price.IsDefault {
			if a.price.IsDefault {
				return -1
			}
			return 1
		}
		return a.sortOrder - b.sortOrder
	})
	prices := make([]PlanPrice, len(rows))
	for i, r := range rows {
		prices[i] = r.price
	}
	return prices, nil
}

func (s *Service) planEntitlements(ctx context.Context, planID string) ([]PlanEntitlement, error) {
	entitlements := []PlanEntitlement{}
	err := s.data.Query(ctx, "plan_entitlements.for_plan", planEntitlementsQuery, []any{planID}, func(r *sql.Rows) error {
		var (
			valueText, description *string
			key, dataType          sql.NullString
		)
		if err := r.Scan(&valueText, &key, &description, &dataType); err != nil {
			return err
		}
		e := PlanEntitlement{
			Key:         key.String,
			Description: nonEmpty(description),
			ValueText:   nonEmpty(valueText),
			DataType:    dataType.String,
		}
		if e.DataType == "" {
			e.DataType = DefaultDataType
		}
		entitlements = append(entitlements, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entitlements, nil
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
