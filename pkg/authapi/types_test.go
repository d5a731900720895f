package authapi

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionValidate(t *testing.T) {
	valid := &Session{AccessToken: "a", RefreshToken: "r", User: &User{ID: "u"}}
	assert.NoError(t, valid.Validate())

	tests := map[string]*Session{
		"nil":        nil,
		"no access":  {RefreshToken: "r", User: &User{ID: "u"}},
		"no refresh": {AccessToken: "a", User: &User{ID: "u"}},
		"no user":    {AccessToken: "a", RefreshToken: "r"},
		"no user id": {AccessToken: "a", RefreshToken: "r", User: &User{}},
	}
	for name, s := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, s.Validate())
		})
	}
}

func TestSessionExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	s := &Session{ExpiresIn: 3600}
	s.normalize(now)
	assert.Equal(t, now.Unix()+3600, s.ExpiresAt)
	assert.Equal(t, "bearer", s.TokenType)

	assert.False(t, s.ExpiresWithin(time.Minute, now))
	assert.True(t, s.ExpiresWithin(time.Hour, now))
	assert.True(t, s.ExpiresWithin(0, now.Add(2*time.Hour)))

	unknown := &Session{}
	assert.True(t, unknown.Expiry().IsZero())
	assert.False(t, unknown.ExpiresWithin(time.Hour, now))

	tok := s.Token()
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, time.Unix(s.ExpiresAt, 0), tok.Expiry)

	var nilSession *Session
	assert.Nil(t, nilSession.Token())
	assert.Empty(t, nilSession.UserID())
}

func TestParseAPIError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
		wantMsg  string
	}{
		{"oauth style", 400, `{"error":"invalid_grant","error_description":"Invalid login credentials"}`, "invalid_grant", "Invalid login credentials"},
		{"numeric code", 422, `{"code":422,"error_code":"weak_password","msg":"Password should be at least 6 characters"}`, "weak_password", "Password should be at least 6 characters"},
		{"numeric code only", 429, `{"code":429,"msg":"rate limited"}`, "", "rate limited"},
		{"string code", 400, `{"code":"otp_expired","message":"Token has expired"}`, "otp_expired", "Token has expired"},
		{"plain message", 401, `{"message":"Invalid API key"}`, "", "Invalid API key"},
		{"not json", 502, `<html>bad gateway</html>`, "", "Bad Gateway"},
		{"empty object", 500, `{}`, "", "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := parseAPIError(tt.status, []byte(tt.body))
			assert.Equal(t, tt.status, err.StatusCode)
			assert.Equal(t, tt.wantCode, err.Code)
			assert.Equal(t, tt.wantMsg, err.Message)
			assert.NotEmpty(t, err.Error())
		})
	}

	assert.True(t, (&APIError{StatusCode: http.StatusNotFound}).Unauthorized())
	assert.False(t, (&APIError{StatusCode: http.StatusInternalServerError}).Unauthorized())
}

func TestSubscriptionNilSafe(t *testing.T) {
	var s *Subscription
	assert.NotPanics(t, s.Unsubscribe)
	assert.NotPanics(t, NewSubscription(nil).Unsubscribe)
}
