package auth

import "time"

// Tokens are the credentials returned by the provider's token endpoint.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	TokenType    string
	Expiry       time.Time
}

// User is a local account.
type User struct {
	ID        string
	Username  string
	Email     string
	FirstName string
	LastName  string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RemoteUser links a local account to a subject at the identity provider
// and caches the most recent provider tokens.
type RemoteUser struct {
	ID             string
	UserID         string
	Provider       string
	ExternalUserID string
	AccessToken    string
	RefreshToken   string
	IDToken        string
	CreatedAt      time.Time
	LastSeenAt     time.Time
}

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"
	InvitationRevoked  InvitationStatus = "revoked"
	InvitationFailed   InvitationStatus = "failed"
)

// Invitation allows the owner of Email to claim UserID, or to get a new
// account when UserID is nil.
type Invitation struct {
	ID          string
	Slug        string
	UserID      *string
	Email       string
	Status      InvitationStatus
	CreatedAt   time.Time
	EmailSentAt *time.Time
	AcceptedAt  *time.Time
}
