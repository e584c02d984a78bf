package resolver

import (
	"context"

	"auth-client/internal/auth"
)

// Input is everything known about a validated callback.
type Input struct {
	Provider       string
	Claims         auth.Claims
	Tokens         auth.Tokens
	InvitationSlug string
}

// Resolver determines which local user an external identity belongs to,
// creating or linking the account when allowed.
// It is the ONLY place where identity-to-user mapping logic lives.
type Resolver interface {
	Resolve(ctx context.Context, in Input) (*auth.User, error)
}

// PermissionAssigner grants permissions derived from claims. It runs after
// the user has been committed.
type PermissionAssigner interface {
	Assign(ctx context.Context, userID string, claims auth.Claims) error
}
