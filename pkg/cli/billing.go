package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xzegga/ait-saas-sso/pkg/billing"
)

func newPlansCommand(opts *options) *cobra.Command {
	var productID string
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "List the plans available for the product",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				plans, err := s.client.Billing().AvailablePlans(cmd.Context(), productID)
				if err != nil {
					return err
				}
				if opts.json {
					return printJSON(cmd, plans)
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "PLAN\tPRICE\tTRIAL\tENTITLEMENTS")
				for _, p := range plans {
					price := "-"
					if def, ok := p.DefaultPrice(); ok {
						price = fmt.Sprintf("%.2f %s/%s", def.Price, def.Currency, def.BillingInterval)
					}
					keys := make([]string, 0, len(p.Entitlements))
					for _, e := range p.Entitlements {
						keys = append(keys, e.Key)
					}
					fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", p.Name, price, p.IsTrialEligible, strings.Join(keys, ","))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&productID, "product", "", "product id or client id (default: configured product)")
	return cmd
}

// SubscriptionReport is what `idpctl subscription` prints.
type SubscriptionReport struct {
	Subscription *billing.Subscription    `json:"subscription"`
	Account      *billing.PaymentAccount  `json:"payment_account,omitempty"`
	Invoices     []billing.PaymentInvoice `json:"invoices,omitempty"`
}

func newSubscriptionCommand(opts *options) *cobra.Command {
	var (
		orgID    string
		invoices int
	)
	cmd := &cobra.Command{
		Use:   "subscription",
		Short: "Show the organization's current subscription",
		Long: `Show the organization's current subscription, its payment account and
the most recent invoices recorded by the payment provider.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				svc := s.client.Billing()
				var (
					report SubscriptionReport
					err    error
				)
				if report.Subscription, err = svc.CurrentSubscription(cmd.Context(), orgID); err != nil {
					return err
				}
				if invoices > 0 {
					if report.Account, err = svc.PaymentAccount(cmd.Context(), orgID); err != nil {
						return err
					}
					if report.Invoices, err = svc.Invoices(cmd.Context(), orgID, invoices); err != nil {
						return err
					}
				}
				if opts.json {
					return printJSON(cmd, report)
				}
				return printSubscription(cmd.OutOrStdout(), report, time.Now())
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "organization id (default: configured or token organization)")
	cmd.Flags().IntVar(&invoices, "invoices", 5, "number of recent invoices to show (0 to skip payment records)")
	return cmd
}

func printSubscription(out io.Writer, report SubscriptionReport, now time.Time) error {
	sub := report.Subscription
	if sub == nil {
		fmt.Fprintln(out, "No subscription")
	} else {
		fmt.Fprintf(out, "Subscription: %s\n", sub.ID)
		fmt.Fprintf(out, "Status:       %s\n", sub.Status)
		if sub.ProductPlan != nil && sub.ProductPlan.Plan != nil {
			fmt.Fprintf(out, "Plan:         %s\n", sub.ProductPlan.Plan.Name)
		}
		if sub.InTrial(now) {
			fmt.Fprintf(out, "Trial ends:   %s\n", sub.TrialEndsAt.Format(time.RFC3339))
		}
	}
	if acct := report.Account; acct != nil {
		provider := acct.ProviderID
		if acct.ProviderName != nil {
			provider = *acct.ProviderName
		}
		fmt.Fprintf(out, "Payment:      %s (%s)\n", provider, acct.ExternalAccountID)
	}
	if len(report.Invoices) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INVOICE\tDATE\tAMOUNT\tSTATUS")
	for _, inv := range report.Invoices {
		fmt.Fprintf(tw, "%s\t%s\t%.2f %s\t%s\n", inv.ExternalInvoiceID, inv.CreatedAt.Format("2006-01-02"), inv.Amount, inv.Currency, inv.Status)
	}
	return tw.Flush()
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
