package session

import (
	"net/http"
	"time"
)

// CookieName carries the __Host- prefix, so the cookie is host-only with
// Path=/ and needs Secure in browsers.
const CookieName = "__Host-session"

// CookieOptions defines how session cookies are issued.
type CookieOptions struct {
	Secure   bool
	SameSite http.SameSite
}

// ReadCookie returns the session id carried by the request, if any.
func ReadCookie(r *http.Request) (string, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// SetCookie issues the session cookie, expiring together with the session.
func SetCookie(w http.ResponseWriter, sessionID string, expiresAt time.Time, opts CookieOptions) {
	c := newCookie(sessionID, opts)
	c.Expires = expiresAt
	http.SetCookie(w, c)
}

// ClearCookie tells the client to drop the session cookie.
func ClearCookie(w http.ResponseWriter, opts CookieOptions) {
	c := newCookie("", opts)
	c.MaxAge = -1
	http.SetCookie(w, c)
}

func newCookie(value string, opts CookieOptions) *http.Cookie {
	sameSite := opts.SameSite
	if sameSite == 0 {
		// Strict would drop the cookie on the provider's redirect back
		sameSite = http.SameSiteLaxMode
	}
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: sameSite,
	}
}
