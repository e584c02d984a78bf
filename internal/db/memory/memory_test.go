package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"auth-client/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunInTx_RollbackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.RunInTx(ctx, func(repo auth.Repository) error {
		require.NoError(t, repo.CreateUser(ctx, &auth.User{Username: "alice", IsActive: true}))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, s.Users())
}

func TestRunInTx_Commit(t *testing.T) {
	s := New()
	ctx := context.Background()

	var id string
	err := s.RunInTx(ctx, func(repo auth.Repository) error {
		u := &auth.User{Username: "alice", Email: "Alice@Example.com", IsActive: true}
		if err := repo.CreateUser(ctx, u); err != nil {
			return err
		}
		id = u.ID
		assert.ErrorIs(t, repo.CreateUser(ctx, &auth.User{Username: "alice"}), auth.ErrUsernameTaken)
		return nil
	})
	require.NoError(t, err)

	u, ok := s.User(id)
	require.True(t, ok)
	assert.Equal(t, "alice", u.Username)

	err = s.RunInTx(ctx, func(repo auth.Repository) error {
		users, err := repo.FindUsers(ctx, "ALICE", "alice@example.com")
		require.NoError(t, err)
		assert.Len(t, users, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestAcceptInvitation_OnlyOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	inv := &auth.Invitation{Slug: "foo", Email: "a@b.com"}
	require.NoError(t, s.CreateInvitation(ctx, inv))

	accept := func() (bool, error) {
		var ok bool
		err := s.RunInTx(ctx, func(repo auth.Repository) error {
			var err error
			ok, err = repo.AcceptInvitation(ctx, inv.ID, "u1", time.Now())
			return err
		})
		return ok, err
	}

	ok, err := accept()
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = accept()
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetInvitationBySlug(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, auth.InvitationAccepted, got.Status)
	require.NotNil(t, got.UserID)
	assert.Equal(t, "u1", *got.UserID)
}

func TestUpsertRemoteUser_KeepsIdentity(t *testing.T) {
	s := New()
	ctx := context.Background()

	upsert := func(token string) auth.RemoteUser {
		ru := &auth.RemoteUser{UserID: "u1", Provider: "oidc", ExternalUserID: "sub", AccessToken: token}
		require.NoError(t, s.RunInTx(ctx, func(repo auth.Repository) error {
			return repo.UpsertRemoteUser(ctx, ru)
		}))
		return *ru
	}

	first := upsert("a")
	second := upsert("b")
	assert.Equal(t, first.ID, second.ID)

	stored, ok := s.RemoteUser("oidc", "sub")
	require.True(t, ok)
	assert.Equal(t, "b", stored.AccessToken)
}

func TestGrantPermissions_Idempotent(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.GrantPermissions(ctx, "u1", []string{"b", "a"}))
	require.NoError(t, s.GrantPermissions(ctx, "u1", []string{"a"}))

	perms, err := s.UserPermissions(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, perms)
}

func TestGetInvitationBySlug_NotFound(t *testing.T) {
	_, err := New().GetInvitationBySlug(context.Background(), "nope")
	assert.ErrorIs(t, err, auth.ErrNotFound)
}
