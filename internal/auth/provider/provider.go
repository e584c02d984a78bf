package provider

import (
	"context"

	"auth-client/internal/auth"
)

// TokenExchanger redeems an authorization code at the provider's token
// endpoint. Implementations return provider credentials only and must not
// create users, link identities, or touch sessions.
type TokenExchanger interface {
	// Name returns the provider identifier (e.g. "oidc", "keycloak").
	Name() string

	// Exchange redeems code. codeVerifier is sent as the PKCE verifier when
	// non-empty. Provider error payloads come back as *auth.ProviderError.
	Exchange(ctx context.Context, code string, codeVerifier string) (auth.Tokens, error)
}
