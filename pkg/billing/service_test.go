package billing

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xzegga/ait-saas-sso/pkg/dataapi/dataapitest"
)

type staticOrg string

func (o staticOrg) ResolveOrganizationID(explicit string) (string, bool) {
	if explicit != "" {
		return explicit, true
	}
	return string(o), o != ""
}

func newService(t *testing.T, org string, opts Options) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	data, mock := dataapitest.NewClient(t, "user-1")
	return NewService(data, staticOrg(org), opts), mock
}

func TestIntervals(t *testing.T) {
	now := time.Now().UTC()
	svc, mock := newService(t, "", Options{})

	dataapitest.ExpectScope(mock, "user-1")
	mock.ExpectQuery(intervalsQuery).
		WillReturnRows(sqlmock.NewRows([]string{"id", "key", "label", "description", "days", "sort_order", "is_active", "created_at", "updated_at"}).
			AddRow("bi-1", IntervalMonth, "Monthly", nil, 30, 1, true, now, now).
			AddRow("bi-2", IntervalYear, "Yearly", "Save 20%", nil, 2, true, now, now))
	mock.ExpectCommit()

	intervals, err := svc.Intervals(context.Background())
	require.NoError(t, err)
	require.Len(t, intervals, 2)
	require.NotNil(t, intervals[0].Days)
	assert.Equal(t, 30, *intervals[0].Days)
	assert.Nil(t, intervals[1].Days)
	assert.Equal(t, "Save 20%", *intervals[1].Description)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductPlans(t *testing.T) {
	now := time.Now().UTC()

	t.Run("plans with prices", func(t *testing.T) {
		svc, mock := newService(t, "", Options{ProductID: "prod-1"})

		dataapitest.ExpectScope(mock, "user-1")
		mock.ExpectQuery(productPlansQuery).
			WithArgs("prod-1").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "product_id", "plan_id", "price", "currency", "is_public", "status",
				"created_at", "updated_at", "deleted_at",
				"id", "name", "description", "features", "created_at", "updated_at",
			}).
				AddRow("pp-1", "prod-1", "plan-1", 9.5, nil, true, true, now, now, nil,
					"plan-1", "Starter", nil, []byte(`{"seats":5}`), now, now).
				AddRow("pp-2", "prod-1", "plan-2", nil, "EUR", nil, true, now, now, nil,
					nil, nil, nil, nil, nil, nil))
		mock.ExpectCommit()

		dataapitest.ExpectScope(mock, "user-1")
		mock.ExpectQuery(productPlanPricesQuery).
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "product_plan_id", "billing_interval", "price", "currency", "discount_percentage",
				"is_default", "created_at", "updated_at",
			}).
				AddRow("ppp-1", "pp-1", IntervalMonth, 9.5, "USD", nil, true, now, now).
				AddRow("ppp-2", "pp-1", IntervalYear, 95.0, "USD", 20.0, false, now, now))
		mock.ExpectCommit()

		plans, err := svc.ProductPlans(context.Background(), "")
		require.NoError(t, err)
		require.Len(t, plans, 2)

		assert.Equal(t, DefaultCurrency, plans[0].Currency)
		require.NotNil(t, plans[0].Plan)
		assert.Equal(t, "Starter", plans[0].Plan.Name)
		assert.Equal(t, float64(5), plans[0].Plan.Features["seats"])
		require.Len(t, plans[0].PricesByInterval, 2)
		assert.Equal(t, 20.0, *plans[0].PricesByInterval[1].DiscountPercentage)

		assert.Equal(t, "EUR", plans[1].Currency)
		assert.Nil(t, plans[1].Plan)
		assert.Nil(t, plans[1].Price)
		assert.Empty(t, plans[1].PricesByInterval)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("requires a product", func(t *testing.T) {
		svc, _ := newService(t, "", Options{})
		_, err := svc.ProductPlans(context.Background(), "")
		require.Error(t, err)
		assert.Equal(t, "Product ID is required", err.Error())
	})
}

func TestIsProductUUID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"3f0b8c1e-2d4a-4b6c-9e8f-1a2b3c4d5e6f", true},
		{"3F0B8C1E-2D4A-4B6C-9E8F-1A2B3C4D5E6F", true},
		{"my-product", false},
		{"3f0b8c1e2d4a4b6c9e8f1a2b3c4d5e6f", false},
		{"{3f0b8c1e-2d4a-4b6c-9e8f-1a2b3c4d5e6f}", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, IsProductUUID(tt.id))
		})
	}
}

func TestOfferedPlanPublic(t *testing.T) {
	set := func(v bool) sql.NullBool { return sql.NullBool{Bool: v, Valid: true} }
	var unset sql.NullBool

	tests := []struct {
		name      string
		product   sql.NullBool
		plan      sql.NullBool
		status    sql.NullBool
		wantShown bool
	}{
		{"product public overrides plan", set(true), set(false), set(true), true},
		{"product private overrides plan", set(false), set(true), set(true), false},
		{"unset falls back to plan", unset, set(true), set(true), true},
		{"unset and plan private", unset, set(false), set(true), false},
		{"both unset", unset, unset, set(true), false},
		{"inactive plan", set(true), set(true), set(false), false},
		{"unknown status", set(true), set(true), unset, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := offeredPlan{productIsPublic: tt.product, planIsPublic: tt.plan, planStatus: tt.status}
			assert.Equal(t, tt.wantShown, o.public())
		})
	}
}

func TestAvailablePlans(t *testing.T) {
	const productUUID = "3f0b8c1e-2d4a-4b6c-9e8f-1a2b3c4d5e6f"
	offeredCols := []string{"id", "is_public", "id", "name", "description", "is_public", "status"}
	priceCols := []string{"billing_interval", "price", "currency", "is_default", "label", "sort_order"}
	entCols := []string{"value_text", "key", "description", "data_type"}

	t.Run("by client id", func(t *testing.T) {
		svc, mock := newService(t, "", Options{ProductID: "my-app"})
		mock.MatchExpectationsInOrder(false)

		dataapitest.ExpectScope(mock, "user-1")
		mock.ExpectQuery(productByClientIDQuery).
			WithArgs("my-app").
			WillReturnRows(sqlmock.NewRows([]string{"id", "trial_days", "status"}).AddRow(productUUID, 14, false))
		mock.ExpectCommit()

		dataapitest.ExpectScope(mock, "user-1")
		mock.ExpectQuery(offeredPlansQuery).
			WithArgs(productUUID).
			WillReturnRows(sqlmock.NewRows(offeredCols).
				AddRow("pp-1", true, "plan-1", "Starter", "", false, true).
				AddRow("pp-2", nil, "plan-2", nil, "For teams", true, true).
				AddRow("pp-3", false, "plan-3", "Hidden", nil, true, true).
				AddRow("pp-4", true, "plan-4", "Retired", nil, true, false))
		mock.ExpectCommit()

		dataapitest.ExpectScope(mock, "user-1")
		mock.ExpectQuery(planPricesQuery).
			WithArgs("pp-1").
			WillReturnRows(sqlmock.NewRows(priceCols).
				AddRow(IntervalYear, 100.0, "USD", false, "Yearly", 2).
				AddRow(IntervalMonth, 10.0, nil, false, "Monthly", 1).
				AddRow("week", 3.0, "EUR", true, nil, nil))
		mock.ExpectCommit()

		dataapitest.ExpectScope(mock, "user-1")
		mock.ExpectQuery(planPricesQuery).
			WithArgs("pp-2").
			WillReturnError(errors.New("prices unavailable"))
		mock.ExpectRollback()

		dataapitest.ExpectScope(mock, "user-1")
		mock.ExpectQuery(planEntitlementsQuery).
			WithArgs("plan-1").
			WillReturnRows(sqlmock.NewRows(entCols).
				AddRow("10", "seats", "Seats", "number").
				AddRow(nil, nil, nil, nil))
		mock.ExpectCommit()

		dataapitest.ExpectScope(mock, "user-1")
		mock.ExpectQuery(planEntitlementsQuery).
			WithArgs("plan-2").
			WillReturnRows(sqlmock.NewRows(entCols))
		mock.ExpectCommit()

		plans, err := svc.AvailablePlans(context.Background(), "")
		require.NoError(t, err)
		require.Len(t, plans, 2)

		starter := plans[0]
		assert.Equal(t, "plan-1", starter.ID)
		assert.Equal(t, "pp-1", starter.ProductPlanID)
		assert.Nil(t, starter.Description)
		assert.True(t, starter.IsTrialEligible)
		require.Len(t, starter.Prices, 3)
		assert.Equal(t, []string{"week", IntervalMonth, IntervalYear},
			[]string{starter.Prices[0].BillingInterval, starter.Prices[1].BillingInterval, starter.Prices[2].BillingInterval})
		assert.Equal(t, "week", starter.Prices[0].BillingIntervalLabel)
		assert.True(t, starter.Prices[0].IsDefault)
		assert.Equal(t, DefaultCurrency, starter.Prices[1].Currency)
		def, ok := starter.DefaultPrice()
		require.True(t, ok)
		assert.Equal(t, 3.0, def.Price)

		require.Len(t, starter.Entitlements, 2)
		assert.Equal(t, "seats", starter.Entitlements[0].Key)
		assert.Equal(t, "10", *starter.Entitlements[0].ValueText)
		assert.Equal(t, "", starter.Entitlements[1].Key)
		assert.Equal(t, DefaultDataType, starter.Entitlements[1].DataType)
		assert.Nil(t, starter.Entitlements[1].ValueText)

		teams := plans[1]
		assert.Equal(t, DefaultPlanName, teams.Name)
		assert.Equal(t, "For teams", *teams.Description)
		assert.Empty(t, teams.Prices)
		assert.NotNil(t, teams.Prices)
		assert.Empty(t, teams.Entitlements)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown product uuid", func(t *testing.T) {
		svc, mock := newService(t, "", Options{})
		dataapitest.ExpectScope(mock, "user-1")
		mock.ExpectQuery(productByIDQuery).
			WithArgs(productUUID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "trial_days", "status"}))
		mock.ExpectRollback()

		_, err := svc.AvailablePlans(context.Background(), productUUID)
		require.Error(t, err)
		assert.Equal(t, "Product not found: "+productUUID, err.Error())
		assert.Equal(t, err.Error(), svc.AvailablePlansState().Err.Message)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no trial days", func(t *testing.T) {
		svc, mock := newService(t, "", Options{})
		dataapitest.ExpectScope(mock, "user-1")
		mock.ExpectQuery(productByIDQuery).
			WithArgs(productUUID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "trial_days", "status"}).AddRow(productUUID, nil, true))
		mock.ExpectCommit()
		dataapitest.ExpectScope(mock, "user-1")
		mock.ExpectQuery(offeredPlansQuery).
			WithArgs(productUUID).
			WillReturnRows(sqlmock.NewRows(offeredCols))
		mock.ExpectCommit()

		plans, err := svc.AvailablePlans(context.Background(), productUUID)
		require.NoError(t, err)
		assert.Empty(t, plans)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no product", func(t *testing.T) {
		svc, mock := newService(t, "", Options{})
		plans, err := svc.AvailablePlans(context.Background(), "")
		require.NoError(t, err)
		assert.Empty(t, plans)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCurrentSubscription(t *testing.T) {
	now := time.Now().UTC()
	trialEnd := now.Add(72 * time.Hour)
	cols := []string{
		"id", "org_id", "product_id", "product_plan_id", "status",
		"current_period_start", "current_period_end", "trial_starts_at", "trial_ends_at",
		"created_at", "updated_at", "deleted_at",
		"id", "name", "description", "status",
		"id", "plan_id", "name",
	}

	t.Run("active subscription", func(t *testing.T) {
		svc, mock := newService(t, "org-1", Options{})
		dataapitest.ExpectScope(mock, "user-1")
		mock.ExpectQuery(subscriptionQuery).
			WithArgs("org-1").
			WillReturnRows(sqlmock.NewRows(cols).AddRow(
				"sub-1", "org-1", "prod-1", "pp-1", "active",
				now, now.AddDate(0, 1, 0), now, trialEnd,
				now, now, nil,
				"prod-1", "Acme App", nil, true,
				"pp-1", "plan-1", "Starter"))
		mock.ExpectCommit()

		sub, err := svc.CurrentSubscription(context.Background(), "")
		require.NoError(t, err)
		require.NotNil(t, sub)
		assert.Equal(t, SubscriptionActive, sub.Status)
		assert.Equal(t, "Acme App", sub.Product.Name)
		assert.Equal(t, "Starter", sub.ProductPlan.Plan.Name)
		assert.True(t, sub.InTrial(now.Add(time.Hour)))
		assert.False(t, sub.InTrial(trialEnd.Add(time.Second)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("none is not an error", func(t *testing.T) {
		svc, mock := newService(t, "org-1", Options{})
		dataapitest.ExpectScope(mock, "user-1")
		mock.ExpectQuery(subscriptionQuery).
			WithArgs("org-2").
			WillReturnRows(sqlmock.NewRows(cols))
		mock.ExpectRollback()

		sub, err := svc.CurrentSubscription(context.Background(), "org-2")
		require.NoError(t, err)
		assert.Nil(t, sub)
		assert.Nil(t, svc.SubscriptionState().Err)
	})

	t.Run("no organization", func(t *testing.T) {
		svc, mock := newService(t, "", Options{})
		sub, err := svc.CurrentSubscription(context.Background(), "")
		require.NoError(t, err)
		assert.Nil(t, sub)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query failure", func(t *testing.T) {
		svc, mock := newService(t, "org-1", Options{})
		dataapitest.ExpectScope(mock, "user-1")
		mock.ExpectQuery(subscriptionQuery).WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		_, err := svc.CurrentSubscription(context.Background(), "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")
	})
}

func TestInvoices(t *testing.T) {
	now := time.Now().UTC()
	cols := []string{"id", "org_id", "provider_id", "external_invoice_id", "amount", "currency", "status",
		"invoice_url", "pdf_url", "created_at", "name"}

	tests := []struct {
		name      string
		limit     int
		wantLimit int
	}{
		{"default", 0, 10},
		{"clamped", 500, 100},
		{"given", 25, 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock := newService(t, "org-1", Options{})
			dataapitest.ExpectScope(mock, "user-1")
			mock.ExpectQuery(invoicesQuery).
				WithArgs("org-1", tt.wantLimit).
				WillReturnRows(sqlmock.NewRows(cols).
					AddRow("inv-1", "org-1", "prov-1", "in_123", 49.0, "USD", "paid", "https://pay.example.com/i/1", nil, now, "stripe"))
			mock.ExpectCommit()

			invoices, err := svc.Invoices(context.Background(), "", tt.limit)
			require.NoError(t, err)
			require.Len(t, invoices, 1)
			assert.Equal(t, PaymentPaid, invoices[0].Status)
			assert.Nil(t, invoices[0].PDFURL)
			assert.Equal(t, "stripe", *invoices[0].ProviderName)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPaymentAccount(t *testing.T) {
	svc, mock := newService(t, "org-1", Options{})
	dataapitest.ExpectScope(mock, "user-1")
	mock.ExpectQuery(paymentAccountQuery).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "provider_id", "external_account_id", "name"}))
	mock.ExpectRollback()

	acct, err := svc.PaymentAccount(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, acct)
	assert.NoError(t, mock.ExpectationsWereMet())
}
