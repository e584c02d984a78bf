package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"auth-client/internal/auth"
	"auth-client/internal/logger"
	"auth-client/internal/metrics"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Endpoints are the provider URLs the callback needs.
type Endpoints struct {
	Issuer   string
	AuthURL  string
	TokenURL string
	JWKSURL  string
}

// Discover reads the provider's OpenID configuration from
// {issuer}/.well-known/openid-configuration. The request gives up after
// timeout.
func Discover(ctx context.Context, issuer string, timeout time.Duration) (Endpoints, error) {
	if timeout <= 0 {
		return Endpoints{}, errors.New("oidc discovery timeout must be positive")
	}
	ctx = oidc.ClientContext(ctx, &http.Client{Timeout: timeout})

	p, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return Endpoints{}, fmt.Errorf("oidc discovery for %s: %w", issuer, err)
	}

	var extra struct {
		JWKSURL string `json:"jwks_uri"`
	}
	if err := p.Claims(&extra); err != nil {
		return Endpoints{}, fmt.Errorf("oidc discovery for %s: %w", issuer, err)
	}
	if extra.JWKSURL == "" {
		return Endpoints{}, errors.New("oidc discovery: provider metadata has no jwks_uri")
	}

	ep := p.Endpoint()
	return Endpoints{
		Issuer:   issuer,
		AuthURL:  ep.AuthURL,
		TokenURL: ep.TokenURL,
		JWKSURL:  extra.JWKSURL,
	}, nil
}

// ClientConfig holds the registered client's credentials.
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// Exchanger performs the authorization_code grant with golang.org/x/oauth2.
type Exchanger struct {
	name        string
	oauthConfig *oauth2.Config
	client      *http.Client
	timeout     time.Duration
}

func NewExchanger(name string, client ClientConfig, ep Endpoints, timeout time.Duration) (*Exchanger, error) {
	if client.ClientID == "" || client.RedirectURL == "" || ep.TokenURL == "" {
		return nil, errors.New("oidc exchanger config missing required fields")
	}
	if timeout <= 0 {
		return nil, errors.New("oidc exchanger timeout must be positive")
	}

	scopes := client.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}

	return &Exchanger{
		name: name,
		oauthConfig: &oauth2.Config{
			ClientID:     client.ClientID,
			ClientSecret: client.ClientSecret,
			RedirectURL:  client.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  ep.AuthURL,
				TokenURL: ep.TokenURL,
				// credentials go in the form body; auto-detect would retry a
				// rejected code with a second request
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: scopes,
		},
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}, nil
}

func (e *Exchanger) Name() string {
	return e.name
}

func (e *Exchanger) Exchange(ctx context.Context, code string, codeVerifier string) (auth.Tokens, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.client)

	var opts []oauth2.AuthCodeOption
	if codeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(codeVerifier))
	}

	start := time.Now()
	token, err := e.oauthConfig.Exchange(ctx, code, opts...)
	metrics.TokenExchangeDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.ErrorCode != "" {
			return auth.Tokens{}, &auth.ProviderError{
				Code:        re.ErrorCode,
				Description: re.ErrorDescription,
			}
		}
		logger.Error("token exchange failed", map[string]any{
			"provider": e.name,
			"error":    err,
		})
		return auth.Tokens{}, fmt.Errorf("%s token exchange failed: %w", e.name, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		logger.Error("token response without id_token, check the client's scopes", map[string]any{
			"provider": e.name,
		})
		return auth.Tokens{}, auth.ErrMissingIDToken
	}

	return auth.Tokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		IDToken:      rawIDToken,
		TokenType:    token.TokenType,
		Expiry:       token.Expiry,
	}, nil
}
