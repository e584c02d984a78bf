package auth

import (
	"context"
	"time"
)

// Repository is the storage the provisioning step reads and writes. Methods
// that look up a single record return ErrNotFound when it is missing.
type Repository interface {
	// GetInvitationForUpdate loads the invitation and locks it until the
	// surrounding transaction ends.
	GetInvitationForUpdate(ctx context.Context, slug string) (*Invitation, error)
	// AcceptInvitation moves a pending invitation to accepted. It returns
	// false when the invitation was no longer pending.
	AcceptInvitation(ctx context.Context, invitationID, userID string, at time.Time) (bool, error)

	GetUser(ctx context.Context, id string) (*User, error)
	FindUserBySubject(ctx context.Context, provider, subject string) (*User, error)
	// FindUsers matches username and email case-insensitively.
	FindUsers(ctx context.Context, username, email string) ([]User, error)
	// CreateUser fills in u.ID and timestamps. It returns ErrUsernameTaken
	// when the username is in use.
	CreateUser(ctx context.Context, u *User) error
	UpdateUser(ctx context.Context, u *User) error

	// UpsertRemoteUser creates or refreshes the link keyed by
	// (Provider, ExternalUserID).
	UpsertRemoteUser(ctx context.Context, ru *RemoteUser) error
}

// TxRunner runs fn inside a single storage transaction. fn's error rolls the
// transaction back and is returned unchanged.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(repo Repository) error) error
}
