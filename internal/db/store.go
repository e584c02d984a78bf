package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auth-client/internal/auth"
	"auth-client/internal/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Store is the Postgres implementation of the account storage.
type Store struct {
	pool PgxIface
}

func NewStore(pool PgxIface) *Store {
	return &Store{pool: pool}
}

// RunInTx runs fn in a READ COMMITTED transaction. Invitation rows are locked
// explicitly with SELECT ... FOR UPDATE.
func (s *Store) RunInTx(ctx context.Context, fn func(repo auth.Repository) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			logger.Warn("rollback failed", map[string]any{"error": err})
		}
	}()

	if err := fn(&queries{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) GetInvitationBySlug(ctx context.Context, slug string) (*auth.Invitation, error) {
	return scanInvitation(s.pool.QueryRow(ctx, selectInvitation+` WHERE slug = $1`, slug))
}

// CreateInvitation stores a new pending invitation and fills in its id,
// status and creation time.
func (s *Store) CreateInvitation(ctx context.Context, inv *auth.Invitation) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO invitations (slug, email, user_id)
		VALUES ($1, $2, $3)
		RETURNING id::text, status, created_at
	`,
		inv.Slug,
		inv.Email,
		inv.UserID,
	).Scan(&inv.ID, &inv.Status, &inv.CreatedAt)
}

func (s *Store) GrantPermissions(ctx context.Context, userID string, perms []string) error {
	if len(perms) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_permissions (user_id, permission)
		SELECT $1, unnest($2::text[])
		ON CONFLICT DO NOTHING
	`,
		userID,
		perms,
	)
	return err
}

func (s *Store) UserPermissions(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT permission
		FROM user_permissions
		WHERE user_id = $1
		ORDER BY permission
	`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// queries implements auth.Repository on one transaction.
type queries struct {
	q querier
}

const selectInvitation = `
	SELECT id::text, slug, user_id::text, email, status, created_at, email_sent_at, accepted_at
	FROM invitations`

const selectUser = `
	SELECT u.id::text, u.username, u.email, u.first_name, u.last_name, u.is_active, u.created_at, u.updated_at
	FROM users u`

func scanInvitation(row pgx.Row) (*auth.Invitation, error) {
	var inv auth.Invitation
	err := row.Scan(
		&inv.ID,
		&inv.Slug,
		&inv.UserID,
		&inv.Email,
		&inv.Status,
		&inv.CreatedAt,
		&inv.EmailSentAt,
		&inv.AcceptedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var u auth.User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.FirstName,
		&u.LastName,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *queries) GetInvitationForUpdate(ctx context.Context, slug string) (*auth.Invitation, error) {
	return scanInvitation(r.q.QueryRow(ctx, selectInvitation+` WHERE slug = $1 FOR UPDATE`, slug))
}

func (r *queries) AcceptInvitation(ctx context.Context, invitationID, userID string, at time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE invitations
		SET status = 'accepted', user_id = $2, accepted_at = $3
		WHERE id = $1
		  AND status = 'pending'
	`,
		invitationID,
		userID,
		at,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *queries) GetUser(ctx context.Context, id string) (*auth.User, error) {
	return scanUser(r.q.QueryRow(ctx, selectUser+` WHERE u.id = $1`, id))
}

func (r *queries) FindUserBySubject(ctx context.Context, provider, subject string) (*auth.User, error) {
	return scanUser(r.q.QueryRow(ctx, selectUser+`
		JOIN remote_users ru ON ru.user_id = u.id
		WHERE ru.provider = $1
		  AND ru.external_user_id = $2
	`,
		provider,
		subject,
	))
}

func (r *queries) FindUsers(ctx context.Context, username, email string) ([]auth.User, error) {
	rows, err := r.q.Query(ctx, selectUser+`
		WHERE LOWER(u.username) = LOWER($1)
		  AND LOWER(u.email) = LOWER($2)
		LIMIT 2
	`,
		username,
		email,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (r *queries) CreateUser(ctx context.Context, u *auth.User) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO users (username, email, first_name, last_name, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (username) DO NOTHING
		RETURNING id::text, created_at, updated_at
	`,
		u.Username,
		u.Email,
		u.FirstName,
		u.LastName,
		u.IsActive,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return auth.ErrUsernameTaken
	}
	return err
}

func (r *queries) UpdateUser(ctx context.Context, u *auth.User) error {
	err := r.q.QueryRow(ctx, `
		UPDATE users
		SET email = $2, first_name = $3, last_name = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`,
		u.ID,
		u.Email,
		u.FirstName,
		u.LastName,
	).Scan(&u.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return auth.ErrNotFound
	}
	return err
}

func (r *queries) UpsertRemoteUser(ctx context.Context, ru *auth.RemoteUser) error {
	return r.q.QueryRow(ctx, `
		INSERT INTO remote_users (user_id, provider, external_user_id, access_token, refresh_token, id_token, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (provider, external_user_id) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    access_token = EXCLUDED.access_token,
		    refresh_token = EXCLUDED.refresh_token,
		    id_token = EXCLUDED.id_token,
		    last_seen_at = EXCLUDED.last_seen_at
		RETURNING id::text, created_at
	`,
		ru.UserID,
		ru.Provider,
		ru.ExternalUserID,
		ru.AccessToken,
		ru.RefreshToken,
		ru.IDToken,
		ru.LastSeenAt,
	).Scan(&ru.ID, &ru.CreatedAt)
}
