package idp

import (
	"context"

	"github.com/xzegga/ait-saas-sso/pkg/dataapi"
	"github.com/xzegga/ait-saas-sso/pkg/idperr"
)

// Client-secret check failures.
var (
	ErrInvalidClientSecret = idperr.Configuration("Invalid client_secret for the provided product_id", nil)
	ErrNoMatchingProduct   = idperr.Configuration("Invalid client_secret. No matching product found.", nil)
)

var errSecretPending = idperr.Configuration("Client secret validation has not completed", nil)

// ValidateClientSecret checks the configured client secret against the
// backend and returns the product it belongs to. With a configured product
// the secret must match it; otherwise the product is looked up by secret.
// RPC failures count as an invalid secret.
func (p *Provider) ValidateClientSecret(ctx context.Context) (string, error) {
	return p.secret.Run(ctx, func(ctx context.Context) (string, error) {
		secret, productID := p.cfg.ClientSecret, p.cfg.ProductID
		if secret == "" {
			return productID, nil
		}
		if p.db == nil {
			return "", idperr.Configuration("client_secret validation requires a database URL", nil)
		}
		anon := dataapi.New(p.db, nil, dataapi.WithLogger(p.logger), dataapi.WithMetrics(p.metrics))
		logger := p.logger.WithField("product_id", productID)

		if productID != "" {
			logger.Debug("validating client_secret")
			var valid bool
			if err := anon.RPC(ctx, "validate_client_secret", dataapi.Params{
				"p_product_id":    productID,
				"p_client_secret": secret,
			}, &valid); err != nil {
				logger.WithError(err).Error("error validating client_secret")
				return "", ErrInvalidClientSecret
			}
			if !valid {
				logger.Warn("invalid client_secret")
				return "", ErrInvalidClientSecret
			}
			logger.Info("client secret validated")
			return productID, nil
		}

		p.logger.Debug("resolving product by client_secret")
		var found *string
		if err := anon.RPC(ctx, "get_product_by_client_secret", dataapi.Params{
			"p_client_secret": secret,
		}, &found); err != nil {
			p.logger.WithError(err).Error("error getting product by client_secret")
			return "", ErrNoMatchingProduct
		}
		if found == nil || *found == "" {
			p.logger.Warn("no product found for client_secret")
			return "", ErrNoMatchingProduct
		}
		p.logger.WithField("product_id", *found).Info("client secret validated")
		return *found, nil
	})
}

// Validating reports whether the client-secret check is in flight.
func (p *Provider) Validating() bool {
	return p.secret.Loading()
}

// ValidationError returns the client-secret check failure, nil when it
// passed or no secret is configured.
func (p *Provider) ValidationError() error {
	return p.secret.Err()
}

// SubmissionAllowed reports whether authentication forms may submit: either
// no client secret is configured or its check has passed.
func (p *Provider) SubmissionAllowed() bool {
	return p.preflight() == nil
}

func (p *Provider) preflight() error {
	if p.cfg.ClientSecret == "" {
		return nil
	}
	st := p.secret.State()
	switch {
	case st.Loading:
		return errSecretPending
	case st.Err != nil:
		return st.Err
	case st.Data == "":
		return errSecretPending
	}
	return nil
}
