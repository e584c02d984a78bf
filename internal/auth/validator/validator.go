// Package validator verifies OIDC ID tokens.
package validator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"auth-client/internal/auth"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultLeeway = 120 * time.Second

var defaultAlgorithms = []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512", "ES256", "ES384", "ES512"}

// KeySet resolves a signing key by key id. Unknown ids must be reported
// with auth.ErrUnresolvableKey and fetch failures with
// auth.ErrKeySetUnavailable.
type KeySet interface {
	Key(ctx context.Context, kid string) (any, error)
}

type Config struct {
	Issuer     string
	ClientID   string
	Leeway     time.Duration
	Algorithms []string
	Now        func() time.Time
}

type Validator struct {
	keys   KeySet
	cfg    Config
	parser *jwt.Parser
}

func New(keys KeySet, cfg Config) *Validator {
	if len(cfg.Algorithms) == 0 {
		cfg.Algorithms = defaultAlgorithms
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Validator{
		keys: keys,
		cfg:  cfg,
		// claims are checked below in a fixed order
		parser: jwt.NewParser(
			jwt.WithValidMethods(cfg.Algorithms),
			jwt.WithoutClaimsValidation(),
		),
	}
}

// Validate checks signature, issuer, audience, expiry and nonce, in that
// order, and stops at the first failure.
func (v *Validator) Validate(ctx context.Context, rawIDToken, expectedNonce string) (auth.Claims, error) {
	mc := jwt.MapClaims{}

	_, err := v.parser.ParseWithClaims(rawIDToken, mc, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		// key problems are not signature failures
		if errors.Is(err, auth.ErrUnresolvableKey) || errors.Is(err, auth.ErrKeySetUnavailable) {
			return auth.Claims{}, fmt.Errorf("id token: %w", err)
		}
		return auth.Claims{}, invalid(auth.ReasonSignature, err)
	}

	claims := auth.NewClaims(mc)

	if iss := claims.Issuer(); iss != v.cfg.Issuer {
		return auth.Claims{}, invalid(auth.ReasonIssuer, fmt.Errorf("issuer %q is not trusted", iss))
	}

	aud := claims.Audience()
	if !slices.Contains(aud, v.cfg.ClientID) {
		return auth.Claims{}, invalid(auth.ReasonAudience, fmt.Errorf("audience %v does not include client", aud))
	}
	if azp := claims.String("azp"); len(aud) > 1 && azp != "" && azp != v.cfg.ClientID {
		return auth.Claims{}, invalid(auth.ReasonAudience, fmt.Errorf("authorized party %q is not this client", azp))
	}

	exp := claims.ExpiresAt()
	if exp.IsZero() {
		return auth.Claims{}, invalid(auth.ReasonExpiry, errors.New("exp claim is missing"))
	}
	if now := v.cfg.Now(); now.After(exp.Add(v.cfg.Leeway)) {
		return auth.Claims{}, invalid(auth.ReasonExpiry, fmt.Errorf("token expired at %s", exp.UTC().Format(time.RFC3339)))
	}

	if expectedNonce == "" || claims.Nonce() != expectedNonce {
		return auth.Claims{}, invalid(auth.ReasonNonce, errors.New("nonce does not match login attempt"))
	}

	if claims.Subject() == "" {
		return auth.Claims{}, invalid(auth.ReasonClaims, errors.New("sub claim is missing"))
	}

	return claims, nil
}

func invalid(reason auth.ValidationReason, err error) error {
	return &auth.TokenValidationError{Reason: reason, Err: err}
}
