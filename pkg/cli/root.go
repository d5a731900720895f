package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/xzegga/ait-saas-sso/pkg/config"
	"github.com/xzegga/ait-saas-sso/pkg/idp"
	"github.com/xzegga/ait-saas-sso/pkg/storage"
)

// ErrDenied is returned by gate commands whose gate is not allowed.
var ErrDenied = errors.New("denied")

type options struct {
	configFile string
	sessionDir string
	json       bool
}

// NewRootCommand creates the idpctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "idpctl",
		Short:         "Identity provider command-line client",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `idpctl signs in to the identity provider and inspects the signed-in
user's permissions, features, plans and subscription.

The session is kept in --session-dir between invocations.`,
	}

	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file (overrides IDP_CONFIG_FILE)")
	root.PersistentFlags().StringVar(&opts.sessionDir, "session-dir", defaultSessionDir(), "directory holding the session")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print JSON")

	root.AddCommand(
		newLoginCommand(opts),
		newLogoutCommand(opts),
		newWhoamiCommand(opts),
		newCanCommand(opts),
		newFeatureCommand(opts),
		newPlansCommand(opts),
		newSubscriptionCommand(opts),
	)
	return root
}

func defaultSessionDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".idpctl"
	}
	return filepath.Join(home, ".idpctl")
}

// session is a connected client and the resources behind it.
type session struct {
	provider *idp.Provider
	client   *idp.Client
}

func (s *session) Close() error {
	return errors.Join(s.client.Close(), s.provider.Close(context.Background()))
}

// connect loads configuration, connects a client whose session lives in
// the session directory and waits for the stored session to load.
func connect(ctx context.Context, opts *options) (*session, error) {
	path := opts.configFile
	if path == "" {
		path = os.Getenv(config.ConfigFileEnv)
	}
	cfg, err := config.LoadConfigFrom(path)
	if err != nil {
		return nil, err
	}
	// the CLI keeps its session on disk unless a shared backend is set
	if cfg.Session.Backend == storage.BackendMemory {
		cfg.Session.Backend = storage.BackendFile
		cfg.Session.Path = opts.sessionDir
	}
	cfg.Session.AutoRefresh = false

	provider, err := idp.NewProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	client, err := provider.Connect(ctx)
	if err != nil {
		provider.Close(ctx)
		return nil, err
	}
	if _, err := client.Sessions().WaitReady(ctx); err != nil {
		client.Close()
		provider.Close(ctx)
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &session{provider: provider, client: client}, nil
}

// withSession runs fn with a connected client and closes it afterwards.
func withSession(cmd *cobra.Command, opts *options, fn func(*session) error) (err error) {
	s, err := connect(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(s)
}
