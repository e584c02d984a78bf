package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrStaleState means the callback does not belong to an active login
	// attempt (unknown state, or an authorization code that was already used).
	// The flow recovers by restarting the login.
	ErrStaleState = errors.New("stale or unknown login state")

	// ErrUnresolvableKey means the ID token names a signing key that is not
	// in the provider's key set.
	ErrUnresolvableKey = errors.New("unresolvable signing key")

	// ErrKeySetUnavailable means the provider's key set could not be fetched.
	// It says nothing about the token itself.
	ErrKeySetUnavailable = errors.New("provider key set unavailable")

	ErrMissingIDToken     = errors.New("token response did not contain an id_token")
	ErrNoAccountAvailable = errors.New("no user account available for this identity, ask for an invitation")
	ErrUserInactive       = errors.New("this user account is inactive")
	ErrMultipleAccounts   = errors.New("multiple user accounts match this identity")
	ErrMissingCode        = errors.New("callback is missing the authorization code")

	// Storage errors.
	ErrNotFound      = errors.New("not found")
	ErrUsernameTaken = errors.New("username is already taken")
)

// ProviderError is an error reported by the identity provider, either on the
// callback redirect or by the token endpoint.
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	desc := e.Description
	if desc == "" {
		desc = e.Code
	}
	return e.Code + ": " + desc
}

// CodeAlreadyUsed reports whether the provider rejected the authorization code
// as redeemed or expired.
func (e *ProviderError) CodeAlreadyUsed() bool {
	return e.Code == "invalid_grant"
}

type ValidationReason string

const (
	ReasonSignature ValidationReason = "signature"
	ReasonIssuer    ValidationReason = "issuer"
	ReasonAudience  ValidationReason = "audience"
	ReasonExpiry    ValidationReason = "expiry"
	ReasonNonce     ValidationReason = "nonce"
	ReasonClaims    ValidationReason = "claims"
)

// TokenValidationError is a failed ID token check.
type TokenValidationError struct {
	Reason ValidationReason
	Err    error
}

func (e *TokenValidationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("id token %s check failed", e.Reason)
	}
	return fmt.Sprintf("id token %s check failed: %v", e.Reason, e.Err)
}

func (e *TokenValidationError) Unwrap() error { return e.Err }

type InvitationReason string

const (
	InvitationNotFound      InvitationReason = "not_found"
	InvitationUsed          InvitationReason = "used"
	InvitationExpired       InvitationReason = "expired"
	InvitationEmailMismatch InvitationReason = "email_mismatch"
)

// InvitationError is a denied invitation. Email is set for mismatches and
// holds the address the invitation was sent to.
type InvitationError struct {
	Reason InvitationReason
	Email  string
}

func (e *InvitationError) Error() string {
	switch e.Reason {
	case InvitationNotFound:
		return "this invitation does not exist"
	case InvitationUsed:
		return "this invitation has been used already"
	case InvitationExpired:
		return "this invitation has expired"
	case InvitationEmailMismatch:
		return fmt.Sprintf("this invitation was intended for a user with email '%s'", e.Email)
	}
	return "this invitation is not valid"
}

// IsPermissionDenied reports whether err should be shown to the user as a
// permission problem rather than a server fault.
func IsPermissionDenied(err error) bool {
	var inv *InvitationError
	return errors.As(err, &inv) ||
		errors.Is(err, ErrNoAccountAvailable) ||
		errors.Is(err, ErrUserInactive) ||
		errors.Is(err, ErrMultipleAccounts)
}
