// Package cli implements idpctl, a terminal client for the identity
// provider.
//
// The session is persisted in a file store under --session-dir (default
// $HOME/.idpctl), so a login survives between invocations:
//
//	idpctl login --email ada@example.com --password "$PASSWORD"
//	idpctl whoami
//	idpctl can admin:read          # exits non-zero when denied
//	idpctl feature advanced-analytics
//	idpctl plans
//	idpctl subscription --json
//	idpctl logout
//
// Connection settings come from the IDP_* environment variables or the
// YAML file named by --config (see package config).
package cli
