package dataapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/oauth2"

	"github.com/xzegga/ait-saas-sso/pkg/authapi"
	"github.com/xzegga/ait-saas-sso/pkg/idperr"
	"github.com/xzegga/ait-saas-sso/pkg/observability"
	"github.com/xzegga/ait-saas-sso/pkg/token"
)

// Database roles assumed for the duration of a call.
const (
	RoleAuthenticated = "authenticated"
	RoleAnon          = "anon"
)

const insufficientPrivilege = "42501"

// Params are named RPC arguments.
type Params map[string]any

// Querier is the call surface services depend on. *Client implements it.
type Querier interface {
	Query(ctx context.Context, name, query string, args []any, scan func(*sql.Rows) error) error
	QueryRow(ctx context.Context, name, query string, args []any, dest ...any) error
	Exec(ctx context.Context, name, query string, args ...any) (int64, error)
	RPC(ctx context.Context, fn string, params Params, out any) error
}

var _ Querier = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client's logger.
func WithLogger(l *observability.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records call counts and latency.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithVerifier checks the access token signature before its claims are
// handed to the database. A token that fails is rejected. Without a
// verifier every call runs as anon.
func WithVerifier(v token.Verifier) Option {
	return func(c *Client) { c.verifier = v }
}

// Client runs statements as the user behind tokens.
type Client struct {
	db       *sql.DB
	tokens   oauth2.TokenSource
	logger   *observability.Logger
	metrics  *observability.Metrics
	verifier token.Verifier
	calls    metric.Int64Counter

	warnUnverified sync.Once
}

// New creates a Client. tokens supplies the caller's access token; a source
// returning authapi.ErrSessionMissing makes calls run as anon. A nil source
// or a missing verifier always runs as anon.
func New(db *sql.DB, tokens oauth2.TokenSource, opts ...Option) *Client {
	c := &Client{db: db, tokens: tokens}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.OrNop().Component("dataapi")
	c.calls = observability.Counter("dataapi", "idp.dataapi.calls", "Data calls by kind, name and outcome")
	return c
}

// DB returns the underlying pool.
func (c *Client) DB() *sql.DB {
	return c.db
}

// caller resolves the claims and role for the current token.
func (c *Client) caller(ctx context.Context) (claims map[string]any, role string, err error) {
	if c.tokens == nil {
		return map[string]any{"role": RoleAnon}, RoleAnon, nil
	}
	tok, err := c.tokens.Token()
	if errors.Is(err, authapi.ErrSessionMissing) || (err == nil && tok.AccessToken == "") {
		return map[string]any{"role": RoleAnon}, RoleAnon, nil
	}
	if err != nil {
		return nil, "", idperr.Authentication("Failed to obtain access token", err)
	}

	if c.verifier == nil {
		// unverified claims never reach row-level security
		c.warnUnverified.Do(func() {
			c.logger.Warn("no token verifier configured, data calls run as anon")
		})
		return map[string]any{"role": RoleAnon}, RoleAnon, nil
	}
	decoded, err := c.verifier.Verify(ctx, tok.AccessToken)
	if err != nil {
		return nil, "", idperr.Authentication("Access token failed verification", err)
	}
	if decoded == nil || len(decoded.Raw) == 0 {
		return nil, "", idperr.Authentication("User not authenticated", nil)
	}
	return decoded.Raw, RoleAuthenticated, nil
}

// WithClaims runs fn in a transaction scoped to the caller. The transaction
// commits when fn returns nil and rolls back otherwise.
func (c *Client) WithClaims(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	claims, role, err := c.caller(ctx)
	if err != nil {
		return err
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("encode claims: %w", err)
	}
	sub, _ := claims["sub"].(string)

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`SELECT set_config('request.jwt.claims', $1, true), set_config('request.jwt.claim.sub', $2, true)`,
		string(claimsJSON), sub); err != nil {
		return fmt.Errorf("set request claims: %w", err)
	}
	// role is one of two constants, never user input
	if _, err := tx.ExecContext(ctx, "SET LOCAL ROLE "+role); err != nil {
		return fmt.Errorf("set role %s: %w", role, err)
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Query runs a multi-row query; scan is called once per row.
func (c *Client) Query(ctx context.Context, name, query string, args []any, scan func(*sql.Rows) error) error {
	return c.observe(ctx, "query", name, func(ctx context.Context) error {
		return c.WithClaims(ctx, func(ctx context.Context, tx *sql.Tx) error {
			rows, err := tx.QueryContext(ctx, query, args...)
			if err != nil {
				return err
			}
			defer rows.Close()
			for rows.Next() {
				if err := scan(rows); err != nil {
					return err
				}
			}
			return rows.Err()
		})
	})
}

// QueryRow runs a single-row query and scans it into dest. It returns
// sql.ErrNoRows when nothing matched.
func (c *Client) QueryRow(ctx context.Context, name, query string, args []any, dest ...any) error {
	return c.observe(ctx, "query_row", name, func(ctx context.Context) error {
		return c.WithClaims(ctx, func(ctx context.Context, tx *sql.Tx) error {
			return tx.QueryRowContext(ctx, query, args...).Scan(dest...)
		})
	})
}

// Exec runs a statement and returns the number of affected rows.
func (c *Client) Exec(ctx context.Context, name, query string, args ...any) (int64, error) {
	var affected int64
	err := c.observe(ctx, "exec", name, func(ctx context.Context) error {
		return c.WithClaims(ctx, func(ctx context.Context, tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return err
			}
			affected, err = res.RowsAffected()
			return err
		})
	})
	return affected, err
}

// RPC calls the database function fn with named params and decodes its
// JSON result into out. A NULL result leaves out untouched. out may be nil.
func (c *Client) RPC(ctx context.Context, fn string, params Params, out any) error {
	query, args := rpcQuery(fn, params)

	return c.observe(ctx, "rpc", fn, func(ctx context.Context) error {
		var raw []byte
		err := c.WithClaims(ctx, func(ctx context.Context, tx *sql.Tx) error {
			return tx.QueryRowContext(ctx, query, args...).Scan(&raw)
		})
		if err != nil {
			return err
		}
		if raw == nil || out == nil {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s result: %w", fn, err)
		}
		return nil
	})
}

// rpcQuery builds `SELECT to_jsonb("fn"("p_a" => $1, ...))` with params in
// name order.
func rpcQuery(fn string, params Params) (string, []any) {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	args := make([]any, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s => $%d", pq.QuoteIdentifier(name), i+1)
		args[i] = rpcArg(params[name])
	}
	return fmt.Sprintf("SELECT to_jsonb(%s(%s))", pq.QuoteIdentifier(fn), strings.Join(parts, ", ")), args
}

// rpcArg adapts Go values the driver cannot send directly.
func rpcArg(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []string:
		return pq.Array(val)
	case map[string]any, []map[string]any:
		b, err := json.Marshal(val)
		if err != nil {
			return nil
		}
		return string(b)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil
	}
	return v
}

func (c *Client) observe(ctx context.Context, kind, name string, fn func(context.Context) error) error {
	ctx, span := observability.Tracer("dataapi").Start(ctx, "dataapi."+kind)
	defer span.End()
	span.SetAttributes(attribute.String("db.operation", name))

	start := time.Now()
	err := mapError(fn(ctx))
	c.metrics.ObserveDataCall(kind, name, err, time.Since(start))
	c.calls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("name", name),
		attribute.Bool("error", err != nil && !errors.Is(err, sql.ErrNoRows)),
	))

	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		span.RecordError(err)
		span.SetStatus(codes.Error, name+" failed")
		c.logger.WithError(err).WithFields(map[string]interface{}{
			"kind": kind,
			"name": name,
		}).Debug("data call failed")
	}
	return err
}

// mapError turns RLS rejections into authorization errors.
func mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == insufficientPrivilege {
		return idperr.New(idperr.KindAuthorization, pqErr.Message, err)
	}
	return err
}

// IsNoRows reports whether err means a single-row query matched nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
