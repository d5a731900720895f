package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xzegga/ait-saas-sso/pkg/auth"
)

// PasswordEnv is read when --password is not given.
const PasswordEnv = "IDP_PASSWORD"

// WhoAmI is the signed-in user as printed by whoami.
type WhoAmI struct {
	State          string   `json:"state"`
	UserID         string   `json:"user_id,omitempty"`
	Email          string   `json:"email,omitempty"`
	OrganizationID string   `json:"organization_id,omitempty"`
	Roles          []string `json:"roles,omitempty"`
	Permissions    []string `json:"permissions,omitempty"`
}

func newLoginCommand(opts *options) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Long: `Sign in with email and password and keep the session for later commands.

Examples:
  idpctl login --email ada@example.com --password secret123
  IDP_PASSWORD=secret123 idpctl login --email ada@example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv(PasswordEnv)
			}
			return withSession(cmd, opts, func(s *session) error {
				sess, err := s.client.Auth().Login(cmd.Context(), auth.Credentials{Email: email, Password: password})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", sess.User.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (default $"+PasswordEnv+")")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				if !s.client.Snapshot().Authenticated() {
					fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
					return nil
				}
				if err := s.client.Auth().Logout(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
				return nil
			})
		},
	}
}

func newWhoamiCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				snap := s.client.Snapshot()
				who := WhoAmI{
					State:       snap.State.String(),
					UserID:      snap.UserID(),
					Roles:       snap.View.Roles(),
					Permissions: snap.View.Permissions(),
				}
				if snap.Session != nil && snap.Session.User != nil {
					who.Email = snap.Session.User.Email
				}
				who.OrganizationID, _ = s.client.Organizations().ResolveOrganizationID("")

				if opts.json {
					return printJSON(cmd, who)
				}
				out := cmd.OutOrStdout()
				if !snap.Authenticated() {
					fmt.Fprintln(out, "Not signed in")
					return nil
				}
				fmt.Fprintf(out, "User:         %s\n", who.UserID)
				fmt.Fprintf(out, "Email:        %s\n", who.Email)
				if who.OrganizationID != "" {
					fmt.Fprintf(out, "Organization: %s\n", who.OrganizationID)
				}
				for _, perm := range who.Permissions {
					fmt.Fprintf(out, "Permission:   %s\n", perm)
				}
				return nil
			})
		},
	}
}
