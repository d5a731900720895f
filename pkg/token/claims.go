package token

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the decoded payload of an access token.
type Claims struct {
	jwt.RegisteredClaims
	Email          string   `json:"email,omitempty"`
	Role           string   `json:"role,omitempty"`
	OrganizationID string   `json:"org_id,omitempty"`
	Permissions    []string `json:"permissions,omitempty"`

	// Raw holds every payload field, including the ones mapped above.
	Raw map[string]any `json:"-"`
}

var urlSafe = strings.NewReplacer("-", "+", "_", "/")

// Decode parses the payload of a header.payload.signature token. It returns
// nil for a token with the wrong number of segments, a payload that is not
// base64, not UTF-8, not a JSON object, or whose known claims have the wrong
// JSON type. The signature is not checked.
func Decode(raw string) *Claims {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil
	}
	payload, ok := decodeSegment(parts[1])
	if !ok {
		return nil
	}
	claims, err := parseClaims(payload)
	if err != nil {
		return nil
	}
	return claims
}

func decodeSegment(seg string) ([]byte, bool) {
	if seg == "" {
		return nil, false
	}
	s := strings.TrimRight(urlSafe.Replace(seg), "=")
	b, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return nil, false
	}
	if !utf8.Valid(b) {
		return nil, false
	}
	return b, true
}

func parseClaims(payload []byte) (*Claims, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errNotObject
	}
	claims := &Claims{}
	if err := json.Unmarshal(payload, claims); err != nil {
		return nil, err
	}
	claims.Raw = raw
	return claims, nil
}

// PermissionsOf returns the permissions claim, or an empty slice.
func PermissionsOf(c *Claims) []string {
	if c == nil || c.Permissions == nil {
		return []string{}
	}
	return c.Permissions
}

// RolesOf returns the role claim as a one-element slice, or an empty slice.
// Tokens carry a single role; multi-role tokens would extend this function.
func RolesOf(c *Claims) []string {
	if c == nil || c.Role == "" {
		return []string{}
	}
	return []string{c.Role}
}

// OrganizationIDOf returns the org_id claim.
func OrganizationIDOf(c *Claims) (string, bool) {
	if c == nil || c.OrganizationID == "" {
		return "", false
	}
	return c.OrganizationID, true
}
