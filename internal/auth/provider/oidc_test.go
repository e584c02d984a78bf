package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"auth-client/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenEndpoint struct {
	*httptest.Server
	mu       sync.Mutex
	requests []url.Values
	status   int
	body     any
	delay    time.Duration
}

func newTokenEndpoint(t *testing.T, status int, body any) *tokenEndpoint {
	te := &tokenEndpoint{status: status, body: body}
	te.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		te.mu.Lock()
		te.requests = append(te.requests, r.PostForm)
		te.mu.Unlock()

		if te.delay > 0 {
			select {
			case <-time.After(te.delay):
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(te.status)
		_ = json.NewEncoder(w).Encode(te.body)
	}))
	t.Cleanup(te.Close)
	return te
}

func newTestExchanger(t *testing.T, tokenURL string, timeout time.Duration) *Exchanger {
	t.Helper()
	ex, err := NewExchanger("oidc", ClientConfig{
		ClientID:     "1234",
		ClientSecret: "secret",
		RedirectURL:  "http://testserver/oauth/callback",
	}, Endpoints{TokenURL: tokenURL}, timeout)
	require.NoError(t, err)
	return ex
}

func TestExchange_Success(t *testing.T) {
	te := newTokenEndpoint(t, http.StatusOK, map[string]any{
		"access_token":  "at",
		"refresh_token": "rt",
		"id_token":      "it",
		"token_type":    "Bearer",
		"expires_in":    3600,
	})
	ex := newTestExchanger(t, te.URL, time.Second)

	tokens, err := ex.Exchange(context.Background(), "code", "verifier")
	require.NoError(t, err)
	assert.Equal(t, "at", tokens.AccessToken)
	assert.Equal(t, "rt", tokens.RefreshToken)
	assert.Equal(t, "it", tokens.IDToken)
	assert.False(t, tokens.Expiry.IsZero())

	require.Len(t, te.requests, 1)
	form := te.requests[0]
	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, "code", form.Get("code"))
	assert.Equal(t, "http://testserver/oauth/callback", form.Get("redirect_uri"))
	assert.Equal(t, "1234", form.Get("client_id"))
	assert.Equal(t, "secret", form.Get("client_secret"))
	assert.Equal(t, "verifier", form.Get("code_verifier"))
}

func TestExchange_NoVerifier(t *testing.T) {
	te := newTokenEndpoint(t, http.StatusOK, map[string]any{"access_token": "at", "id_token": "it"})
	ex := newTestExchanger(t, te.URL, time.Second)

	_, err := ex.Exchange(context.Background(), "code", "")
	require.NoError(t, err)
	assert.False(t, te.requests[0].Has("code_verifier"))
}

func TestExchange_ProviderErrorPayload(t *testing.T) {
	te := newTokenEndpoint(t, http.StatusBadRequest, map[string]any{
		"error":             "some_error",
		"error_description": "bla",
	})
	ex := newTestExchanger(t, te.URL, time.Second)

	_, err := ex.Exchange(context.Background(), "abc", "")
	var pe *auth.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "some_error: bla", pe.Error())
	assert.False(t, pe.CodeAlreadyUsed())
	assert.Len(t, te.requests, 1, "a rejected code is not retried")
}

func TestExchange_CodeAlreadyUsed(t *testing.T) {
	te := newTokenEndpoint(t, http.StatusBadRequest, map[string]any{
		"error":             "invalid_grant",
		"error_description": "bla",
	})
	ex := newTestExchanger(t, te.URL, time.Second)

	_, err := ex.Exchange(context.Background(), "abc", "")
	var pe *auth.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.True(t, pe.CodeAlreadyUsed())
}

func TestExchange_NonJSONFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	ex := newTestExchanger(t, srv.URL, time.Second)

	_, err := ex.Exchange(context.Background(), "abc", "")
	require.Error(t, err)
	var pe *auth.ProviderError
	assert.False(t, errors.As(err, &pe))
}

func TestExchange_MissingIDToken(t *testing.T) {
	te := newTokenEndpoint(t, http.StatusOK, map[string]any{"access_token": "at"})
	ex := newTestExchanger(t, te.URL, time.Second)

	_, err := ex.Exchange(context.Background(), "code", "")
	assert.ErrorIs(t, err, auth.ErrMissingIDToken)
}

func TestExchange_Timeout(t *testing.T) {
	te := newTokenEndpoint(t, http.StatusOK, map[string]any{"access_token": "at", "id_token": "it"})
	te.delay = 2 * time.Second
	ex := newTestExchanger(t, te.URL, 50*time.Millisecond)

	start := time.Now()
	_, err := ex.Exchange(context.Background(), "code", "")
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNewExchanger_Validation(t *testing.T) {
	_, err := NewExchanger("oidc", ClientConfig{}, Endpoints{}, time.Second)
	assert.Error(t, err)

	_, err = NewExchanger("oidc", ClientConfig{ClientID: "c", RedirectURL: "r"}, Endpoints{TokenURL: "t"}, 0)
	assert.Error(t, err)
}

func TestDiscover(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/.well-known/openid-configuration", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 srv.URL,
			"authorization_endpoint": srv.URL + "/authorize",
			"token_endpoint":         srv.URL + "/token",
			"jwks_uri":               srv.URL + "/jwks",
		})
	}))
	t.Cleanup(srv.Close)

	ep, err := Discover(context.Background(), srv.URL, time.Second)
	require.NoError(t, err)
	assert.Equal(t, srv.URL, ep.Issuer)
	assert.Equal(t, srv.URL+"/authorize", ep.AuthURL)
	assert.Equal(t, srv.URL+"/token", ep.TokenURL)
	assert.Equal(t, srv.URL+"/jwks", ep.JWKSURL)
}

func TestDiscover_IssuerMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":   "https://elsewhere",
			"jwks_uri": "https://elsewhere/jwks",
		})
	}))
	t.Cleanup(srv.Close)

	_, err := Discover(context.Background(), srv.URL, time.Second)
	assert.Error(t, err)
}

func TestDiscover_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	start := time.Now()
	_, err := Discover(context.Background(), srv.URL, 100*time.Millisecond)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
