package billing

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/xzegga/ait-saas-sso/pkg/dataapi"
	"github.com/xzegga/ait-saas-sso/pkg/orgs"
)

const invoicesQuery = `SELECT i.id, i.org_id, i.provider_id, i.external_invoice_id, i.amount, i.currency, i.status,
       i.invoice_url, i.pdf_url, i.created_at, p.name
FROM payment_invoices i
LEFT JOIN payment_providers p ON p.id = i.provider_id
WHERE i.org_id = $1
ORDER BY i.created_at DESC
LIMIT $2`

// Invoices lists the organization's most recent invoices, newest first.
// Payment providers write these rows; nothing here calls a provider.
func (s *Service) Invoices(ctx context.Context, orgID string, limit int) ([]PaymentInvoice, error) {
	invoices := []PaymentInvoice{}
	id, ok := s.orgs.ResolveOrganizationID(orgID)
	if !ok {
		return invoices, nil
	}
	switch {
	case limit <= 0:
		limit = orgs.DefaultPageSize
	case limit > orgs.MaxPageSize:
		limit = orgs.MaxPageSize
	}

	err := s.data.Query(ctx, "payment_invoices.list", invoicesQuery, []any{id, limit}, func(rows *sql.Rows) error {
		var inv PaymentInvoice
		if err := rows.Scan(&inv.ID, &inv.OrgID, &inv.ProviderID, &inv.ExternalInvoiceID, &inv.Amount,
			&inv.Currency, &inv.Status, &inv.InvoiceURL, &inv.PDFURL, &inv.CreatedAt, &inv.ProviderName); err != nil {
			return err
		}
		invoices = append(invoices, inv)
		return nil
	})
	if err != nil {
		s.logger.WithError(err).WithField("org_id", id).Error("failed to fetch invoices")
		return nil, fmt.Errorf("failed to fetch invoices: %w", err)
	}
	return invoices, nil
}

const paymentAccountQuery = `SELECT a.id, a.org_id, a.provider_id, a.external_account_id, p.name
FROM payment_accounts a
LEFT JOIN payment_providers p ON p.id = a.provider_id
WHERE a.org_id = $1
LIMIT 1`

// PaymentAccount returns the organization's payment account, or nil when it
// has none.
func (s *Service) PaymentAccount(ctx context.Context, orgID string) (*PaymentAccount, error) {
	id, ok := s.orgs.ResolveOrganizationID(orgID)
	if !ok {
		return nil, nil
	}
	acct := &PaymentAccount{}
	err := s.data.QueryRow(ctx, "payment_accounts.get", paymentAccountQuery, []any{id},
		&acct.ID, &acct.OrgID, &acct.ProviderID, &acct.ExternalAccountID, &acct.ProviderName)
	if dataapi.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payment account: %w", err)
	}
	return acct, nil
}
