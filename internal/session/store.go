package session

import (
	"context"
	"time"
)

// LoginAttempt is the state of one outbound authorization request. It is
// written when the login starts and consumed by the matching callback.
type LoginAttempt struct {
	State        string    `json:"state"`
	Nonce        string    `json:"nonce"`
	CodeVerifier string    `json:"code_verifier,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is a server-side session. Anonymous sessions carry pending login
// attempts; authenticated sessions carry UserID only.
type Session struct {
	ID     string `json:"id"`
	UserID string `json:"user_id,omitempty"`

	LoginAttempts  map[string]LoginAttempt `json:"login_attempts,omitempty"`
	RedirectTarget string                  `json:"redirect_target,omitempty"`
	InvitationSlug string                  `json:"invitation_slug,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AttemptKey qualifies a state value with the provider it was issued for.
func AttemptKey(provider, state string) string {
	return "_state_" + provider + "_" + state
}

func (s *Session) AddLoginAttempt(provider string, a LoginAttempt) {
	if s.LoginAttempts == nil {
		s.LoginAttempts = make(map[string]LoginAttempt)
	}
	s.LoginAttempts[AttemptKey(provider, a.State)] = a
}

// PopLoginAttempt removes and returns the attempt for state. An entry whose
// stored state differs from its key is dropped and reported as missing.
func (s *Session) PopLoginAttempt(provider, state string) (LoginAttempt, bool) {
	key := AttemptKey(provider, state)
	a, ok := s.LoginAttempts[key]
	if !ok {
		return LoginAttempt{}, false
	}
	delete(s.LoginAttempts, key)
	if a.State != state {
		return LoginAttempt{}, false
	}
	return a, true
}

func (s *Session) Authenticated() bool {
	return s.UserID != ""
}

// Store defines how sessions are stored and retrieved.
// Get returns (nil, nil) when the session does not exist.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Update(ctx context.Context, s Session) error
	Delete(ctx context.Context, sessionID string) error
}
