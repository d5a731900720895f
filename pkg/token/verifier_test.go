package token

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretVerifier(t *testing.T) {
	secret := []byte("super-secret-jwt-token-with-at-least-32-characters")
	v := NewSecretVerifier(secret)

	sign := func(t *testing.T, key []byte, claims jwt.MapClaims) string {
		t.Helper()
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}

	t.Run("valid token", func(t *testing.T) {
		raw := sign(t, secret, jwt.MapClaims{
			"sub":         "u1",
			"role":        "admin",
			"org_id":      "org-1",
			"permissions": []string{"admin:read"},
			"exp":         time.Now().Add(time.Hour).Unix(),
		})

		claims, err := v.Verify(context.Background(), raw)
		require.NoError(t, err)
		assert.Equal(t, "u1", claims.Subject)
		assert.Equal(t, "admin", claims.Role)
		assert.Equal(t, "org-1", claims.OrganizationID)
		assert.Equal(t, []string{"admin:read"}, claims.Permissions)
		assert.Equal(t, "u1", claims.Raw["sub"])
	})

	t.Run("wrong secret", func(t *testing.T) {
		raw := sign(t, []byte("another-secret-another-secret-another"), jwt.MapClaims{
			"sub": "u1",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		_, err := v.Verify(context.Background(), raw)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		raw := sign(t, secret, jwt.MapClaims{
			"sub": "u1",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		_, err := v.Verify(context.Background(), raw)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("missing exp", func(t *testing.T) {
		raw := sign(t, secret, jwt.MapClaims{"sub": "u1"})
		_, err := v.Verify(context.Background(), raw)
		assert.Error(t, err)
	})

	t.Run("unsigned scenario token", func(t *testing.T) {
		_, err := v.Verify(context.Background(), "header.eyJzdWIiOiJ1MSJ9.sig")
		assert.Error(t, err)
	})

	t.Run("empty secret", func(t *testing.T) {
		_, err := NewSecretVerifier(nil).Verify(context.Background(), "a.b.c")
		assert.Error(t, err)
	})
}

func TestKeySetVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	issuer := "http://127.0.0.1:54321/auth/v1"
	keys := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	v := NewKeySetVerifier(issuer, keys)

	sign := func(t *testing.T, claims jwt.MapClaims) string {
		t.Helper()
		s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}

	t.Run("valid token", func(t *testing.T) {
		raw := sign(t, jwt.MapClaims{
			"iss":         issuer,
			"sub":         "u1",
			"aud":         "authenticated",
			"permissions": []string{"feature:beta"},
			"exp":         time.Now().Add(time.Hour).Unix(),
		})

		claims, err := v.Verify(context.Background(), raw)
		require.NoError(t, err)
		assert.Equal(t, "u1", claims.Subject)
		assert.Equal(t, []string{"feature:beta"}, claims.Permissions)
		assert.Equal(t, issuer, claims.Raw["iss"])
	})

	t.Run("issuer mismatch", func(t *testing.T) {
		raw := sign(t, jwt.MapClaims{
			"iss": "https://elsewhere.example.com",
			"sub": "u1",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		_, err := v.Verify(context.Background(), raw)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		raw := sign(t, jwt.MapClaims{
			"iss": issuer,
			"sub": "u1",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		_, err := v.Verify(context.Background(), raw)
		assert.Error(t, err)
	})
}
