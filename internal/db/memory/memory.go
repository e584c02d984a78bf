// Package memory is an in-process implementation of the account storage.
// Transactions are serialized and applied to a copy of the data, which is
// swapped in on commit.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"auth-client/internal/auth"

	"github.com/google/uuid"
)

type data struct {
	users       map[string]auth.User
	remoteUsers map[string]auth.RemoteUser // provider + "\x00" + external id
	invitations map[string]auth.Invitation // by slug
	permissions map[string]map[string]bool
}

func newData() data {
	return data{
		users:       make(map[string]auth.User),
		remoteUsers: make(map[string]auth.RemoteUser),
		invitations: make(map[string]auth.Invitation),
		permissions: make(map[string]map[string]bool),
	}
}

func (d data) clone() data {
	c := newData()
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.remoteUsers {
		c.remoteUsers[k] = v
	}
	for k, v := range d.invitations {
		c.invitations[k] = v
	}
	for k, v := range d.permissions {
		set := make(map[string]bool, len(v))
		for p := range v {
			set[p] = true
		}
		c.permissions[k] = set
	}
	return c
}

type Store struct {
	mu   sync.RWMutex
	data data
	now  func() time.Time
}

func New() *Store {
	return &Store{data: newData(), now: time.Now}
}

func (s *Store) RunInTx(ctx context.Context, fn func(repo auth.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(&repo{d: work, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *Store) GetInvitationBySlug(_ context.Context, slug string) (*auth.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.data.invitations[slug]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &inv, nil
}

func (s *Store) CreateInvitation(_ context.Context, inv *auth.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.Slug == "" {
		inv.Slug = uuid.NewString()
	}
	if inv.Status == "" {
		inv.Status = auth.InvitationPending
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = s.now()
	}
	s.data.invitations[inv.Slug] = *inv
	return nil
}

// PutUser stores u as is. It is meant for seeding.
func (s *Store) PutUser(u auth.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.users[u.ID] = u
}

func (s *Store) User(id string) (auth.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.data.users[id]
	return u, ok
}

func (s *Store) Users() []auth.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.User, 0, len(s.data.users))
	for _, u := range s.data.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

func (s *Store) RemoteUser(provider, externalID string) (auth.RemoteUser, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ru, ok := s.data.remoteUsers[remoteKey(provider, externalID)]
	return ru, ok
}

func (s *Store) GrantPermissions(_ context.Context, userID string, perms []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.data.permissions[userID]
	if set == nil {
		set = make(map[string]bool)
		s.data.permissions[userID] = set
	}
	for _, p := range perms {
		set[p] = true
	}
	return nil
}

func (s *Store) UserPermissions(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data.permissions[userID]))
	for p := range s.data.permissions[userID] {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func remoteKey(provider, externalID string) string {
	return provider + "\x00" + externalID
}

type repo struct {
	d   data
	now func() time.Time
}

func (r *repo) GetInvitationForUpdate(_ context.Context, slug string) (*auth.Invitation, error) {
	inv, ok := r.d.invitations[slug]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &inv, nil
}

func (r *repo) AcceptInvitation(_ context.Context, invitationID, userID string, at time.Time) (bool, error) {
	for slug, inv := range r.d.invitations {
		if inv.ID != invitationID {
			continue
		}
		if inv.Status != auth.InvitationPending {
			return false, nil
		}
		inv.Status = auth.InvitationAccepted
		inv.UserID = &userID
		inv.AcceptedAt = &at
		r.d.invitations[slug] = inv
		return true, nil
	}
	return false, nil
}

func (r *repo) GetUser(_ context.Context, id string) (*auth.User, error) {
	u, ok := r.d.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &u, nil
}

func (r *repo) FindUserBySubject(ctx context.Context, provider, subject string) (*auth.User, error) {
	ru, ok := r.d.remoteUsers[remoteKey(provider, subject)]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return r.GetUser(ctx, ru.UserID)
}

func (r *repo) FindUsers(_ context.Context, username, email string) ([]auth.User, error) {
	var out []auth.User
	for _, u := range r.d.users {
		if strings.EqualFold(u.Username, username) && strings.EqualFold(u.Email, email) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *repo) CreateUser(_ context.Context, u *auth.User) error {
	for _, existing := range r.d.users {
		if existing.Username == u.Username {
			return auth.ErrUsernameTaken
		}
	}
	now := r.now()
	u.ID = uuid.NewString()
	u.CreatedAt = now
	u.UpdatedAt = now
	r.d.users[u.ID] = *u
	return nil
}

func (r *repo) UpdateUser(_ context.Context, u *auth.User) error {
	if _, ok := r.d.users[u.ID]; !ok {
		return auth.ErrNotFound
	}
	u.UpdatedAt = r.now()
	r.d.users[u.ID] = *u
	return nil
}

func (r *repo) UpsertRemoteUser(_ context.Context, ru *auth.RemoteUser) error {
	key := remoteKey(ru.Provider, ru.ExternalUserID)
	if existing, ok := r.d.remoteUsers[key]; ok {
		ru.ID = existing.ID
		ru.CreatedAt = existing.CreatedAt
	} else {
		ru.ID = uuid.NewString()
		ru.CreatedAt = r.now()
	}
	r.d.remoteUsers[key] = *ru
	return nil
}
