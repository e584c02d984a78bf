// Package state correlates an authorization callback with the login attempt
// that started it.
package state

import (
	"net/url"

	"auth-client/internal/auth"
	"auth-client/internal/session"
)

// NextParam carries the post-login target through a restarted login.
const NextParam = "next"

// Params are the query parameters the provider appends to the redirect.
type Params struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

func ParamsFromQuery(q url.Values) Params {
	return Params{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}
}

// Correlate consumes the login attempt matching p.State from s. The attempt is
// removed whatever the outcome, so a callback can never be replayed.
//
// A provider-reported error is returned as *auth.ProviderError. A missing or
// mismatched attempt returns auth.ErrStaleState.
func Correlate(provider string, p Params, s *session.Session) (session.LoginAttempt, error) {
	var (
		attempt session.LoginAttempt
		found   bool
	)
	if p.State != "" {
		attempt, found = s.PopLoginAttempt(provider, p.State)
	}

	if p.Error != "" {
		return session.LoginAttempt{}, &auth.ProviderError{
			Code:        p.Error,
			Description: p.ErrorDescription,
		}
	}
	if !found {
		return session.LoginAttempt{}, auth.ErrStaleState
	}
	if p.Code == "" {
		return session.LoginAttempt{}, auth.ErrMissingCode
	}
	return attempt, nil
}

// RestartURL is where a stale callback is sent: the login endpoint, carrying
// the original target only when one is known.
func RestartURL(loginURL, target string) string {
	if target == "" {
		return loginURL
	}
	u, err := url.Parse(loginURL)
	if err != nil {
		return loginURL
	}
	q := u.Query()
	q.Set(NextParam, target)
	u.RawQuery = q.Encode()
	return u.String()
}
