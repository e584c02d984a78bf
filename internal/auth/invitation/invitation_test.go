package invitation

import (
	"context"
	"errors"
	"testing"
	"time"

	"auth-client/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStore map[string]auth.Invitation

func (m mapStore) GetInvitationBySlug(_ context.Context, slug string) (*auth.Invitation, error) {
	inv, ok := m[slug]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &inv, nil
}

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func claims(email string, verified bool) auth.Claims {
	return auth.NewClaims(map[string]any{
		"sub":            "u1",
		"email":          email,
		"email_verified": verified,
	})
}

func newResolver(store Store) *Resolver {
	return NewResolver(store, DefaultExpiry, WithClock(func() time.Time { return now }))
}

func reasonOf(t *testing.T, err error) auth.InvitationReason {
	t.Helper()
	var ie *auth.InvitationError
	require.True(t, errors.As(err, &ie), "expected an invitation error, got %v", err)
	return ie.Reason
}

func TestResolve_NoSlug(t *testing.T) {
	inv, err := newResolver(mapStore{}).Resolve(context.Background(), "", claims("a@b.com", true))
	assert.NoError(t, err)
	assert.Nil(t, inv)
}

func TestResolve_Eligible(t *testing.T) {
	store := mapStore{"foo": {ID: "1", Slug: "foo", Email: "a@b.com", Status: auth.InvitationPending, CreatedAt: now}}

	inv, err := newResolver(store).Resolve(context.Background(), "foo", claims("a@b.com", true))
	require.NoError(t, err)
	assert.Equal(t, "1", inv.ID)
	assert.Nil(t, inv.UserID)
}

func TestResolve_UnverifiedEmailStillMatches(t *testing.T) {
	store := mapStore{"foo": {Slug: "foo", Email: "a@b.com", Status: auth.InvitationPending, CreatedAt: now}}

	_, err := newResolver(store).Resolve(context.Background(), "foo", claims("a@b.com", false))
	assert.NoError(t, err)
}

func TestResolve_Denied(t *testing.T) {
	tests := []struct {
		name    string
		inv     *auth.Invitation
		reason  auth.InvitationReason
		message string
	}{
		{
			name:    "does not exist",
			reason:  auth.InvitationNotFound,
			message: "invitation does not exist",
		},
		{
			name:    "already accepted",
			inv:     &auth.Invitation{Status: auth.InvitationAccepted, Email: "a@b.com", CreatedAt: now},
			reason:  auth.InvitationUsed,
			message: "has been used already",
		},
		{
			name:    "revoked",
			inv:     &auth.Invitation{Status: auth.InvitationRevoked, Email: "a@b.com", CreatedAt: now},
			reason:  auth.InvitationUsed,
			message: "has been used already",
		},
		{
			name:    "fourteen days old",
			inv:     &auth.Invitation{Status: auth.InvitationPending, Email: "a@b.com", CreatedAt: now.Add(-14 * 24 * time.Hour)},
			reason:  auth.InvitationExpired,
			message: "has expired",
		},
		{
			name:    "expired with other email",
			inv:     &auth.Invitation{Status: auth.InvitationPending, Email: "x@y.com", CreatedAt: now.Add(-30 * 24 * time.Hour)},
			reason:  auth.InvitationExpired,
			message: "has expired",
		},
		{
			name:    "other email",
			inv:     &auth.Invitation{Status: auth.InvitationPending, Email: "some@other.email", CreatedAt: now},
			reason:  auth.InvitationEmailMismatch,
			message: "intended for a user with email 'some@other.email'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := mapStore{}
			if tt.inv != nil {
				store["foo"] = *tt.inv
			}

			inv, err := newResolver(store).Resolve(context.Background(), "foo", claims("a@b.com", true))
			assert.Nil(t, inv)
			assert.Equal(t, tt.reason, reasonOf(t, err))
			assert.Contains(t, err.Error(), tt.message)
			assert.True(t, auth.IsPermissionDenied(err))
		})
	}
}

func TestCheck_ExpiryBoundary(t *testing.T) {
	inv := &auth.Invitation{Status: auth.InvitationPending, Email: "a@b.com"}
	c := claims("A@B.com", true)

	inv.CreatedAt = now.Add(-DefaultExpiry + time.Second)
	assert.NoError(t, Check(inv, c, now, DefaultExpiry))

	inv.CreatedAt = now.Add(-DefaultExpiry)
	assert.Error(t, Check(inv, c, now, DefaultExpiry))
}

type failingStore struct{}

func (failingStore) GetInvitationBySlug(context.Context, string) (*auth.Invitation, error) {
	return nil, errors.New("connection refused")
}

func TestResolve_StoreFailureIsNotPermissionDenied(t *testing.T) {
	_, err := newResolver(failingStore{}).Resolve(context.Background(), "foo", claims("a@b.com", true))
	require.Error(t, err)
	assert.False(t, auth.IsPermissionDenied(err))
}

func TestResolve_ExpiryFollowsClock(t *testing.T) {
	created := now.Add(-time.Hour)
	store := mapStore{"foo": {Slug: "foo", Email: "a@b.com", Status: auth.InvitationPending, CreatedAt: created}}

	clock := created.Add(2*time.Hour - time.Second)
	r := NewResolver(store, 2*time.Hour, WithClock(func() time.Time { return clock }))

	_, err := r.Resolve(context.Background(), "foo", claims("a@b.com", true))
	require.NoError(t, err)

	clock = created.Add(2 * time.Hour)
	_, err = r.Resolve(context.Background(), "foo", claims("a@b.com", true))
	require.Error(t, err)
	assert.Equal(t, auth.InvitationExpired, reasonOf(t, err))
}
