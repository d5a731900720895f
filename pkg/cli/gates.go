package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xzegga/ait-saas-sso/pkg/gate"
)

// GateResult is printed by can and feature.
type GateResult struct {
	Gate     string `json:"gate"`
	Name     string `json:"name"`
	Decision string `json:"decision"`
}

func newCanCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "can <permission>",
		Short: "Check a permission; exits non-zero when denied",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				return printGate(cmd, opts, "permission", args[0], s.client.Can(args[0]))
			})
		},
	}
}

func newFeatureCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "feature <name>",
		Short: "Check a feature flag; exits non-zero when disabled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				return printGate(cmd, opts, "feature", args[0], s.client.Feature(args[0]))
			})
		},
	}
}

func printGate(cmd *cobra.Command, opts *options, kind, name string, d gate.Decision) error {
	res := GateResult{Gate: kind, Name: name, Decision: d.String()}
	if opts.json {
		if err := printJSON(cmd, res); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", kind, name, res.Decision)
	}
	if d != gate.Allowed {
		return fmt.Errorf("%s %s: %w", kind, name, ErrDenied)
	}
	return nil
}
