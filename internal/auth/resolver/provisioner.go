package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"auth-client/internal/auth"
	"auth-client/internal/auth/invitation"
	"auth-client/internal/logger"
)

const maxUsernameAttempts = 5

// Provisioner resolves identities against the database. Every write for one
// callback happens in a single transaction.
type Provisioner struct {
	store             auth.TxRunner
	permissions       PermissionAssigner
	invitationExpiry  time.Duration
	autoAcceptDomains map[string]bool
	ssoMigration      bool
	now               func() time.Time
}

type Option func(*Provisioner)

func WithPermissions(a PermissionAssigner) Option {
	return func(p *Provisioner) { p.permissions = a }
}

func WithInvitationExpiry(d time.Duration) Option {
	return func(p *Provisioner) { p.invitationExpiry = d }
}

// WithAutoAcceptDomains lets users with a verified email in one of domains
// log in without an invitation.
func WithAutoAcceptDomains(domains []string) Option {
	return func(p *Provisioner) {
		for _, d := range domains {
			d = strings.ToLower(strings.TrimSpace(d))
			if d != "" {
				p.autoAcceptDomains[d] = true
			}
		}
	}
}

// WithSSOMigration matches identities flagged with custom:from_sso to
// existing accounts by cognito:username and email.
func WithSSOMigration(enabled bool) Option {
	return func(p *Provisioner) { p.ssoMigration = enabled }
}

func WithClock(now func() time.Time) Option {
	return func(p *Provisioner) { p.now = now }
}

func NewProvisioner(store auth.TxRunner, opts ...Option) *Provisioner {
	p := &Provisioner{
		store:             store,
		invitationExpiry:  invitation.DefaultExpiry,
		autoAcceptDomains: make(map[string]bool),
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provisioner) Resolve(ctx context.Context, in Input) (*auth.User, error) {
	if in.Claims.Subject() == "" {
		return nil, errors.New("identity has no subject")
	}

	var user *auth.User
	err := p.store.RunInTx(ctx, func(repo auth.Repository) error {
		var err error
		if in.InvitationSlug != "" {
			user, err = p.redeem(ctx, repo, in)
		} else {
			user, err = p.authenticate(ctx, repo, in)
		}
		if err != nil {
			return err
		}
		if !user.IsActive {
			return auth.ErrUserInactive
		}

		if err := p.updateProfile(ctx, repo, user, in.Claims); err != nil {
			return err
		}
		return p.link(ctx, repo, user, in)
	})
	if err != nil {
		return nil, err
	}

	if p.permissions != nil {
		if err := p.permissions.Assign(ctx, user.ID, in.Claims); err != nil {
			logger.Error("permission auto-assignment failed", map[string]any{
				"user_id": user.ID,
				"error":   err,
			})
		}
	}

	return user, nil
}

// redeem accepts the invitation for the identity. The invitation row stays
// locked until commit so only one concurrent callback can accept it.
func (p *Provisioner) redeem(ctx context.Context, repo auth.Repository, in Input) (*auth.User, error) {
	inv, err := repo.GetInvitationForUpdate(ctx, in.InvitationSlug)
	if errors.Is(err, auth.ErrNotFound) {
		return nil, &auth.InvitationError{Reason: auth.InvitationNotFound}
	}
	if err != nil {
		return nil, fmt.Errorf("lock invitation: %w", err)
	}

	now := p.now()
	if err := invitation.Check(inv, in.Claims, now, p.invitationExpiry); err != nil {
		return nil, err
	}

	var user *auth.User
	if inv.UserID != nil {
		user, err = repo.GetUser(ctx, *inv.UserID)
		if err != nil {
			return nil, fmt.Errorf("load invited user: %w", err)
		}
	} else {
		user, err = p.createUser(ctx, repo, usernameFromClaims(in.Claims), in.Claims)
		if err != nil {
			return nil, err
		}
	}

	ok, err := repo.AcceptInvitation(ctx, inv.ID, user.ID, now)
	if err != nil {
		return nil, fmt.Errorf("accept invitation: %w", err)
	}
	if !ok {
		return nil, &auth.InvitationError{Reason: auth.InvitationUsed}
	}

	logger.Info("invitation accepted", map[string]any{
		"invitation": inv.ID,
		"user_id":    user.ID,
	})
	return user, nil
}

// authenticate runs the account backends in order: an existing link for the
// subject, then migrated SSO accounts, then auto-accept by verified email
// domain.
func (p *Provisioner) authenticate(ctx context.Context, repo auth.Repository, in Input) (*auth.User, error) {
	user, err := repo.FindUserBySubject(ctx, in.Provider, in.Claims.Subject())
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, auth.ErrNotFound) {
		return nil, fmt.Errorf("find linked user: %w", err)
	}

	if p.ssoMigration {
		user, err = p.migrated(ctx, repo, in.Claims)
		if err != nil {
			return nil, err
		}
		if user != nil {
			return user, nil
		}
	}

	user, err = p.autoAccept(ctx, repo, in.Claims)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, auth.ErrNoAccountAvailable
	}
	return user, nil
}

// migrated finds the account of a user moved over from the previous SSO.
// Such accounts are never created here.
func (p *Provisioner) migrated(ctx context.Context, repo auth.Repository, claims auth.Claims) (*auth.User, error) {
	if !fromSSO(claims) {
		return nil, nil
	}
	username := claims.String("cognito:username")
	if username == "" {
		return nil, nil
	}

	users, err := repo.FindUsers(ctx, username, claims.Email())
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	switch len(users) {
	case 0:
		return nil, nil
	case 1:
		logger.Info("linking migrated sso user", map[string]any{
			"user_id":  users[0].ID,
			"username": users[0].Username,
		})
		return &users[0], nil
	default:
		return nil, auth.ErrMultipleAccounts
	}
}

// fromSSO reads custom:from_sso, which Cognito sends as a string.
func fromSSO(claims auth.Claims) bool {
	v, _ := claims.Get("custom:from_sso")
	switch v := v.(type) {
	case string:
		return strings.TrimSpace(v) == "1"
	case float64:
		return v == 1
	case bool:
		return v
	}
	return false
}

func (p *Provisioner) autoAccept(ctx context.Context, repo auth.Repository, claims auth.Claims) (*auth.User, error) {
	if len(p.autoAcceptDomains) == 0 || !claims.EmailVerified() {
		return nil, nil
	}
	email := claims.Email()
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || !p.autoAcceptDomains[strings.ToLower(domain)] {
		return nil, nil
	}

	username := cleanUsername(local)
	users, err := repo.FindUsers(ctx, username, email)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	switch len(users) {
	case 0:
		user, err := p.createUser(ctx, repo, username, claims)
		if err != nil {
			return nil, err
		}
		logger.Info("auto-accepted new user", map[string]any{
			"user_id":  user.ID,
			"username": user.Username,
		})
		return user, nil
	case 1:
		return &users[0], nil
	default:
		return nil, auth.ErrMultipleAccounts
	}
}

func (p *Provisioner) createUser(ctx context.Context, repo auth.Repository, username string, claims auth.Claims) (*auth.User, error) {
	if username == "" {
		return nil, errors.New("cannot derive a username from the claims")
	}

	candidate := username
	for attempt := 0; attempt < maxUsernameAttempts; attempt++ {
		user := &auth.User{
			Username:  candidate,
			Email:     claims.Email(),
			FirstName: claims.GivenName(),
			LastName:  claims.FamilyName(),
			IsActive:  true,
		}
		err := repo.CreateUser(ctx, user)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, auth.ErrUsernameTaken) {
			return nil, fmt.Errorf("create user: %w", err)
		}
		candidate = withSuffix(username)
	}
	return nil, fmt.Errorf("create user %q: %w", username, auth.ErrUsernameTaken)
}

// updateProfile copies email and names from the claims. Nothing is written
// when they already match.
func (p *Provisioner) updateProfile(ctx context.Context, repo auth.Repository, user *auth.User, claims auth.Claims) error {
	changed := false
	set := func(dst *string, v string) {
		if v != "" && *dst != v {
			*dst = v
			changed = true
		}
	}
	set(&user.Email, claims.Email())
	set(&user.FirstName, claims.GivenName())
	set(&user.LastName, claims.FamilyName())

	if !changed {
		return nil
	}
	if err := repo.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

func (p *Provisioner) link(ctx context.Context, repo auth.Repository, user *auth.User, in Input) error {
	ru := &auth.RemoteUser{
		UserID:         user.ID,
		Provider:       in.Provider,
		ExternalUserID: in.Claims.Subject(),
		AccessToken:    in.Tokens.AccessToken,
		RefreshToken:   in.Tokens.RefreshToken,
		IDToken:        in.Tokens.IDToken,
		LastSeenAt:     p.now(),
	}
	if err := repo.UpsertRemoteUser(ctx, ru); err != nil {
		return fmt.Errorf("link remote user: %w", err)
	}
	return nil
}
