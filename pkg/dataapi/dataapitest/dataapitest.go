// Package dataapitest provides a dataapi.Client backed by sqlmock for
// testing services that run queries as the signed-in user.
package dataapitest

import (
	"database/sql/driver"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/xzegga/ait-saas-sso/pkg/dataapi"
	"github.com/xzegga/ait-saas-sso/pkg/token"
)

// SetClaimsSQL is the statement every scoped call starts with.
const SetClaimsSQL = `SELECT set_config('request.jwt.claims', $1, true), set_config('request.jwt.claim.sub', $2, true)`

// Secret signs every token Token issues. Point a verifier or
// config.Config.JWTSecret at it to accept them.
var Secret = []byte("dataapitest-signing-secret")

// Token builds an access token carrying claims, signed with Secret. An exp
// one hour out is added when claims has none.
func Token(t testing.TB, claims map[string]any) string {
	t.Helper()
	mc := jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}
	for k, v := range claims {
		mc[k] = v
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(Secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return raw
}

// Verifier accepts tokens issued by Token.
func Verifier() token.Verifier {
	return token.NewSecretVerifier(Secret)
}

// NewClient returns a client acting as sub (anon when sub is empty) and the
// mock behind it. Queries are matched literally.
func NewClient(t testing.TB, sub string) (*dataapi.Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	var tokens oauth2.TokenSource
	if sub != "" {
		raw := Token(t, map[string]any{"sub": sub, "role": dataapi.RoleAuthenticated})
		tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: raw})
	}
	return dataapi.New(db, tokens, dataapi.WithVerifier(Verifier())), mock
}

// ExpectScope expects the transaction prologue for sub.
func ExpectScope(mock sqlmock.Sqlmock, sub string) {
	role := dataapi.RoleAuthenticated
	if sub == "" {
		role = dataapi.RoleAnon
	}
	mock.ExpectBegin()
	mock.ExpectExec(SetClaimsSQL).
		WithArgs(ClaimsSub(sub), sub).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SET LOCAL ROLE " + role).WillReturnResult(sqlmock.NewResult(0, 0))
}

// ClaimsSub matches a JSON claims argument by its sub, or by the anon role
// when empty.
type ClaimsSub string

// Match implements sqlmock.Argument.
func (c ClaimsSub) Match(v driver.Value) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	var claims map[string]any
	if json.Unmarshal([]byte(s), &claims) != nil {
		return false
	}
	if c == "" {
		return claims["role"] == dataapi.RoleAnon
	}
	return claims["sub"] == string(c)
}

// JSONArg matches an argument holding JSON equal to want.
type JSONArg string

// Match implements sqlmock.Argument.
func (j JSONArg) Match(v driver.Value) bool {
	var got, want any
	switch b := v.(type) {
	case string:
		if json.Unmarshal([]byte(b), &got) != nil {
			return false
		}
	case []byte:
		if json.Unmarshal(b, &got) != nil {
			return false
		}
	default:
		return false
	}
	if json.Unmarshal([]byte(j), &want) != nil {
		return false
	}
	gb, _ := json.Marshal(got)
	wb, _ := json.Marshal(want)
	return string(gb) == string(wb)
}
