package state

import (
	"errors"
	"net/url"
	"testing"

	"auth-client/internal/auth"
	"auth-client/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionWith(states ...string) *session.Session {
	s := &session.Session{RedirectTarget: "/success"}
	for _, st := range states {
		s.AddLoginAttempt("oidc", session.LoginAttempt{State: st, Nonce: "nonce-" + st})
	}
	return s
}

func TestCorrelate_Match(t *testing.T) {
	s := sessionWith("abc")

	a, err := Correlate("oidc", Params{Code: "code", State: "abc"}, s)
	require.NoError(t, err)
	assert.Equal(t, "nonce-abc", a.Nonce)
	assert.Empty(t, s.LoginAttempts)
}

func TestCorrelate_Replay(t *testing.T) {
	s := sessionWith("abc")
	p := Params{Code: "code", State: "abc"}

	_, err := Correlate("oidc", p, s)
	require.NoError(t, err)

	_, err = Correlate("oidc", p, s)
	assert.ErrorIs(t, err, auth.ErrStaleState)
}

func TestCorrelate_Stale(t *testing.T) {
	tests := []struct {
		name string
		p    Params
		s    *session.Session
	}{
		{"wrong state", Params{Code: "code", State: "other"}, sessionWith("abc")},
		{"no state param", Params{Code: "code"}, sessionWith("abc")},
		{"empty session", Params{Code: "code", State: "abc"}, &session.Session{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Correlate("oidc", tt.p, tt.s)
			assert.ErrorIs(t, err, auth.ErrStaleState)
		})
	}
}

func TestCorrelate_OtherProvider(t *testing.T) {
	s := sessionWith("abc")

	_, err := Correlate("google", Params{Code: "code", State: "abc"}, s)
	assert.ErrorIs(t, err, auth.ErrStaleState)
	assert.Len(t, s.LoginAttempts, 1)
}

func TestCorrelate_ProviderError(t *testing.T) {
	tests := []struct {
		name    string
		q       string
		message string
	}{
		{"no description", "error=access_denied", "access_denied: access_denied"},
		{"with description", "error=access_denied&error_description=bla", "access_denied: bla"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.q + "&state=abc")
			require.NoError(t, err)
			s := sessionWith("abc")

			_, err = Correlate("oidc", ParamsFromQuery(q), s)

			var pe *auth.ProviderError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.message, pe.Error())
			assert.Empty(t, s.LoginAttempts, "attempt is consumed on error too")
		})
	}
}

func TestCorrelate_MissingCode(t *testing.T) {
	s := sessionWith("abc")

	_, err := Correlate("oidc", Params{State: "abc"}, s)
	assert.ErrorIs(t, err, auth.ErrMissingCode)
	assert.Empty(t, s.LoginAttempts)
}

func TestRestartURL(t *testing.T) {
	assert.Equal(t, "/login/", RestartURL("/login/", ""))
	assert.Equal(t, "/login/?next=%2Fsuccess", RestartURL("/login/", "/success"))
	assert.Equal(t,
		"https://app.example.com/login/?next=%2Fa%3Fb%3D1&provider=oidc",
		RestartURL("https://app.example.com/login/?provider=oidc", "/a?b=1"),
	)
}
