// Package invitation decides whether a pending invitation may be redeemed by
// an authenticated identity.
package invitation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"auth-client/internal/auth"
	"auth-client/internal/logger"
)

// DefaultExpiry is how long an invitation stays redeemable after creation.
const DefaultExpiry = 14 * 24 * time.Hour

type Store interface {
	// GetInvitationBySlug returns auth.ErrNotFound when no invitation has slug.
	GetInvitationBySlug(ctx context.Context, slug string) (*auth.Invitation, error)
}

// Check reports why inv cannot be redeemed by the owner of claims at now, or
// nil when it can. The email comparison ignores email_verified.
func Check(inv *auth.Invitation, claims auth.Claims, now time.Time, expiry time.Duration) error {
	if inv.Status != auth.InvitationPending {
		return &auth.InvitationError{Reason: auth.InvitationUsed}
	}
	if !now.Before(inv.CreatedAt.Add(expiry)) {
		return &auth.InvitationError{Reason: auth.InvitationExpired}
	}
	if !strings.EqualFold(strings.TrimSpace(inv.Email), strings.TrimSpace(claims.Email())) {
		return &auth.InvitationError{Reason: auth.InvitationEmailMismatch, Email: inv.Email}
	}
	return nil
}

type Resolver struct {
	store  Store
	expiry time.Duration
	now    func() time.Time
}

type Option func(*Resolver)

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func NewResolver(store Store, expiry time.Duration, opts ...Option) *Resolver {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	r := &Resolver{store: store, expiry: expiry, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Expiry() time.Duration {
	return r.expiry
}

// Resolve looks up the invitation referenced by slug and checks it against
// claims. An empty slug means no invitation is in play and returns (nil, nil).
// Nothing is written; acceptance happens during provisioning.
func (r *Resolver) Resolve(ctx context.Context, slug string, claims auth.Claims) (*auth.Invitation, error) {
	if slug == "" {
		return nil, nil
	}

	inv, err := r.store.GetInvitationBySlug(ctx, slug)
	if errors.Is(err, auth.ErrNotFound) {
		return nil, &auth.InvitationError{Reason: auth.InvitationNotFound}
	}
	if err != nil {
		return nil, fmt.Errorf("load invitation: %w", err)
	}

	if err := Check(inv, claims, r.now(), r.expiry); err != nil {
		logger.Info("invitation rejected", map[string]any{
			"invitation": inv.ID,
			"reason":     err.Error(),
		})
		return nil, err
	}
	return inv, nil
}
