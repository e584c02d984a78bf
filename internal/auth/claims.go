package auth

import (
	"encoding/json"
	"strings"
	"time"
)

// Claims is the verified payload of an ID token.
// Known OIDC fields have typed accessors; everything else stays in the raw map.
// Claims are never mutated after the validator produces them.
type Claims struct {
	raw map[string]any
}

// NewClaims copies m so later changes to the caller's map are not observed.
func NewClaims(m map[string]any) Claims {
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Claims{raw: cp}
}

func (c Claims) Subject() string { return c.String("sub") }
func (c Claims) Issuer() string { return c.String("iss") }
func (c Claims) Nonce() string { return c.String("nonce") }
func (c Claims) Email() string { return c.String("email") }
func (c Claims) GivenName() string { return c.String("given_name") }
func (c Claims) FamilyName() string { return c.String("family_name") }

func (c Claims) EmailVerified() bool {
	switch v := c.raw["email_verified"].(type) {
	case bool:
		return v
	case string:
		// some providers (Cognito) send "true"/"false"
		return strings.EqualFold(v, "true")
	}
	return false
}

// Audience returns aud as a list; a single string becomes a one-element slice.
func (c Claims) Audience() []string {
	return c.Strings("aud")
}

func (c Claims) ExpiresAt() time.Time { return c.Time("exp") }
func (c Claims) IssuedAt() time.Time { return c.Time("iat") }

// String returns a string claim or "" if it is absent or of another type.
func (c Claims) String(name string) string {
	s, _ := c.raw[name].(string)
	return s
}

// Strings returns a claim that may be a string or a list of strings.
func (c Claims) Strings(name string) []string {
	switch v := c.raw[name].(type) {
	case string:
		return []string{v}
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Time reads a NumericDate claim.
func (c Claims) Time(name string) time.Time {
	switch v := c.raw[name].(type) {
	case float64:
		return time.Unix(int64(v), 0)
	case int64:
		return time.Unix(v, 0)
	case int:
		return time.Unix(int64(v), 0)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return time.Unix(n, 0)
		}
	}
	return time.Time{}
}

// Get returns an arbitrary claim from the pass-through bag.
func (c Claims) Get(name string) (any, bool) {
	v, ok := c.raw[name]
	return v, ok
}

// Map returns a copy of all claims.
func (c Claims) Map() map[string]any {
	cp := make(map[string]any, len(c.raw))
	for k, v := range c.raw {
		cp[k] = v
	}
	return cp
}
