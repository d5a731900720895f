package dataapi

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/xzegga/ait-saas-sso/pkg/authapi"
	"github.com/xzegga/ait-saas-sso/pkg/idperr"
	"github.com/xzegga/ait-saas-sso/pkg/token"
)

type tokenFunc func() (*oauth2.Token, error)

func (f tokenFunc) Token() (*oauth2.Token, error) { return f() }

var signedOut = tokenFunc(func() (*oauth2.Token, error) { return nil, authapi.ErrSessionMissing })

var testSecret = []byte("data-api-test-secret")

var testVerifier = token.NewSecretVerifier(testSecret)

func userToken(t *testing.T, sub string) oauth2.TokenSource {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    sub,
		"role":   "authenticated",
		"org_id": "org-1",
		"exp":    time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: raw})
}

// unsignedToken carries claims the way a tampered session file would.
func unsignedToken(t *testing.T, claims map[string]any) oauth2.TokenSource {
	t.Helper()
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	raw := "eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: raw})
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

const setClaimsSQL = `SELECT set_config('request.jwt.claims', $1, true), set_config('request.jwt.claim.sub', $2, true)`

// claimsArg matches the JSON claims argument by its sub.
type claimsArg struct{ sub string }

func (a claimsArg) Match(v driver.Value) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	var claims map[string]any
	if json.Unmarshal([]byte(s), &claims) != nil {
		return false
	}
	if a.sub == "" {
		return claims["role"] == RoleAnon
	}
	return claims["sub"] == a.sub
}

func expectScope(mock sqlmock.Sqlmock, sub, role string) {
	mock.ExpectBegin()
	mock.ExpectExec(setClaimsSQL).WithArgs(claimsArg{sub: sub}, sub).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SET LOCAL ROLE " + role).WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestRPC_AuthenticatedCaller(t *testing.T) {
	db, mock := newMock(t)
	c := New(db, userToken(t, "user-1"), WithVerifier(testVerifier))

	expectScope(mock, "user-1", RoleAuthenticated)
	mock.ExpectQuery(`SELECT to_jsonb("validate_client_secret"("p_client_secret" => $1, "p_product_id" => $2))`).
		WithArgs("s3cret", "prod-1").
		WillReturnRows(sqlmock.NewRows([]string{"to_jsonb"}).AddRow([]byte(`true`)))
	mock.ExpectCommit()

	var ok bool
	err := c.RPC(context.Background(), "validate_client_secret", Params{
		"p_product_id":    "prod-1",
		"p_client_secret": "s3cret",
	}, &ok)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRPC_AnonCaller(t *testing.T) {
	db, mock := newMock(t)
	c := New(db, signedOut)

	expectScope(mock, "", RoleAnon)
	mock.ExpectQuery(`SELECT to_jsonb("get_product_by_client_secret"("p_client_secret" => $1))`).
		WithArgs("s3cret").
		WillReturnRows(sqlmock.NewRows([]string{"to_jsonb"}).AddRow([]byte(`"prod-9"`)))
	mock.ExpectCommit()

	var productID string
	require.NoError(t, c.RPC(context.Background(), "get_product_by_client_secret", Params{"p_client_secret": "s3cret"}, &productID))
	assert.Equal(t, "prod-9", productID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRPC_NullResult(t *testing.T) {
	db, mock := newMock(t)
	c := New(db, nil)

	expectScope(mock, "", RoleAnon)
	mock.ExpectQuery(`SELECT to_jsonb("get_product_by_client_secret"("p_client_secret" => $1))`).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"to_jsonb"}).AddRow(nil))
	mock.ExpectCommit()

	productID := "unchanged"
	require.NoError(t, c.RPC(context.Background(), "get_product_by_client_secret", Params{"p_client_secret": "nope"}, &productID))
	assert.Equal(t, "unchanged", productID)
}

func TestRPC_ArrayAndNullArgs(t *testing.T) {
	db, mock := newMock(t)
	c := New(db, userToken(t, "user-1"), WithVerifier(testVerifier))

	expectScope(mock, "user-1", RoleAuthenticated)
	mock.ExpectQuery(`SELECT to_jsonb("invite_member"("p_email" => $1, "p_org_id" => $2, "p_product_roles" => $3, "p_role" => $4))`).
		WithArgs("new@example.com", "org-1", pq.Array([]string{"editor"}), nil).
		WillReturnRows(sqlmock.NewRows([]string{"to_jsonb"}).AddRow([]byte(`{"success":true}`)))
	mock.ExpectCommit()

	var out struct {
		Success bool `json:"success"`
	}
	var role *string
	err := c.RPC(context.Background(), "invite_member", Params{
		"p_org_id":        "org-1",
		"p_email":         "new@example.com",
		"p_role":          role,
		"p_product_roles": []string{"editor"},
	}, &out)
	require.NoError(t, err)
	assert.True(t, out.Success)
}

func TestRPC_FunctionErrorRollsBack(t *testing.T) {
	db, mock := newMock(t)
	c := New(db, userToken(t, "user-1"), WithVerifier(testVerifier))

	expectScope(mock, "user-1", RoleAuthenticated)
	mock.ExpectQuery(`SELECT to_jsonb("fn_complete_user_signup"())`).
		WillReturnError(errors.New("function failed"))
	mock.ExpectRollback()

	err := c.RPC(context.Background(), "fn_complete_user_signup", nil, nil)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryRow_NoRows(t *testing.T) {
	db, mock := newMock(t)
	c := New(db, userToken(t, "user-1"), WithVerifier(testVerifier))

	expectScope(mock, "user-1", RoleAuthenticated)
	mock.ExpectQuery(`SELECT id FROM profiles WHERE id = $1`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	var id string
	err := c.QueryRow(context.Background(), "profile", `SELECT id FROM profiles WHERE id = $1`, []any{"user-1"}, &id)
	assert.True(t, IsNoRows(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuery_ScansEveryRow(t *testing.T) {
	db, mock := newMock(t)
	c := New(db, userToken(t, "user-1"), WithVerifier(testVerifier))

	expectScope(mock, "user-1", RoleAuthenticated)
	mock.ExpectQuery(`SELECT key FROM billing_intervals`).
		WillReturnRows(sqlmock.NewRows([]string{"key"}).AddRow("month").AddRow("year"))
	mock.ExpectCommit()

	var keys []string
	err := c.Query(context.Background(), "intervals", `SELECT key FROM billing_intervals`, nil, func(rows *sql.Rows) error {
		var k string
		if err := rows.Scan(&k); err != nil {
			return err
		}
		keys = append(keys, k)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"month", "year"}, keys)
}

func TestExec_RowLevelSecurityDenied(t *testing.T) {
	db, mock := newMock(t)
	c := New(db, userToken(t, "user-1"), WithVerifier(testVerifier))

	expectScope(mock, "user-1", RoleAuthenticated)
	mock.ExpectExec(`UPDATE organizations SET name = $1 WHERE id = $2`).
		WithArgs("Acme", "org-1").
		WillReturnError(&pq.Error{Code: "42501", Message: "new row violates row-level security policy"})
	mock.ExpectRollback()

	_, err := c.Exec(context.Background(), "update_org", `UPDATE organizations SET name = $1 WHERE id = $2`, "Acme", "org-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, idperr.ErrAuthorization)
	assert.Equal(t, "new row violates row-level security policy", err.Error())
}

func TestExec_RowsAffected(t *testing.T) {
	db, mock := newMock(t)
	c := New(db, userToken(t, "user-1"), WithVerifier(testVerifier))

	expectScope(mock, "user-1", RoleAuthenticated)
	mock.ExpectExec(`UPDATE org_members SET deleted_at = now() WHERE id = $1`).
		WithArgs("m-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := c.Exec(context.Background(), "remove_member", `UPDATE org_members SET deleted_at = now() WHERE id = $1`, "m-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCaller_TokenSourceFailure(t *testing.T) {
	db, mock := newMock(t)
	c := New(db, tokenFunc(func() (*oauth2.Token, error) { return nil, errors.New("keychain locked") }))

	err := c.RPC(context.Background(), "anything", nil, nil)
	assert.ErrorIs(t, err, idperr.ErrAuthentication)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCaller_UndecodableToken(t *testing.T) {
	db, _ := newMock(t)
	c := New(db, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "garbage"}), WithVerifier(testVerifier))

	err := c.RPC(context.Background(), "anything", nil, nil)
	assert.ErrorIs(t, err, idperr.ErrAuthentication)
}

func TestCaller_UnverifiedTokenRunsAsAnon(t *testing.T) {
	db, mock := newMock(t)
	c := New(db, unsignedToken(t, map[string]any{
		"sub":         "victim",
		"role":        "authenticated",
		"permissions": []string{"admin:write"},
	}))

	expectScope(mock, "", RoleAnon)
	mock.ExpectQuery(`SELECT id FROM profiles WHERE id = $1`).
		WithArgs("victim").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	var id string
	err := c.QueryRow(context.Background(), "profiles.get", `SELECT id FROM profiles WHERE id = $1`, []any{"victim"}, &id)
	assert.True(t, IsNoRows(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCaller_ForgedTokenRejected(t *testing.T) {
	db, mock := newMock(t)
	c := New(db, unsignedToken(t, map[string]any{
		"sub":  "victim",
		"role": "authenticated",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}), WithVerifier(testVerifier))

	err := c.RPC(context.Background(), "anything", nil, nil)
	assert.ErrorIs(t, err, idperr.ErrAuthentication)
	// no transaction was opened, so no role was assumed
	assert.NoError(t, mock.ExpectationsWereMet())
}
