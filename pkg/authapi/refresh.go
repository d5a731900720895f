package authapi

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/xzegga/ait-saas-sso/pkg/idperr"
)

func (c *Client) startAutoRefresh() error {
	c.cron = cron.New()
	if _, err := c.cron.AddFunc(c.cfg.RefreshSchedule, c.autoRefreshTick); err != nil {
		return idperr.Configuration(fmt.Sprintf("invalid refresh schedule %q", c.cfg.RefreshSchedule), err)
	}
	c.cron.Start()
	c.logger.WithField("schedule", c.cfg.RefreshSchedule).Debug("auto refresh started")
	return nil
}

func (c *Client) autoRefreshTick() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if refreshed, err := c.refreshIfDue(ctx); err != nil {
		c.logger.WithError(err).Warn("auto refresh failed")
	} else if refreshed {
		c.logger.Debug("session refreshed ahead of expiry")
	}
}

// refreshIfDue refreshes the session when it expires within the margin.
func (c *Client) refreshIfDue(ctx context.Context) (bool, error) {
	s := c.Session()
	if s == nil || s.RefreshToken == "" || !s.ExpiresWithin(c.cfg.RefreshMargin, c.now()) {
		return false, nil
	}
	_, err := c.refresh(ctx, s.RefreshToken, "auto")
	return true, err
}
