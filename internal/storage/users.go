package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"halfmonth/internal/store"
)

func (r *Repository) CreateUser(ctx context.Context, u store.User) error {
	_, err := r.exec(ctx, r.db,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.CreatedAt.UnixMilli())
	if isUniqueViolation(err) {
		return store.ErrEmailExists
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *Repository) UserByEmail(ctx context.Context, email string) (store.User, error) {
	return r.queryUser(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE email = ?`, email)
}

func (r *Repository) UserByID(ctx context.Context, id string) (store.User, error) {
	return r.queryUser(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE id = ?`, id)
}

func (r *Repository) queryUser(ctx context.Context, query string, arg string) (store.User, error) {
	var (
		u         store.User
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx, r.dialect.rebind(query), arg).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, store.ErrNotFound
	}
	if err != nil {
		return store.User{}, fmt.Errorf("query user: %w", err)
	}
	u.CreatedAt = time.UnixMilli(createdAt).UTC()
	return u, nil
}

// ListUserIDs returns registered users plus any partition that owns
// periods without a user row (data copied in from elsewhere).
func (r *Repository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM users
		UNION
		SELECT DISTINCT user_id FROM periods
		ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repository) CreateSession(ctx context.Context, s store.Session) error {
	_, err := r.exec(ctx, r.db,
		`INSERT INTO sessions (token, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		s.Token, s.UserID, s.ExpiresAt.UnixMilli(), s.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *Repository) SessionByToken(ctx context.Context, token string) (store.Session, error) {
	var (
		s                    store.Session
		expiresAt, createdAt int64
	)
	err := r.db.QueryRowContext(ctx,
		r.dialect.rebind(`SELECT token, user_id, expires_at, created_at FROM sessions WHERE token = ?`), token,
	).Scan(&s.Token, &s.UserID, &expiresAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Session{}, store.ErrNotFound
	}
	if err != nil {
		return store.Session{}, fmt.Errorf("query session: %w", err)
	}
	s.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	s.CreatedAt = time.UnixMilli(createdAt).UTC()
	return s, nil
}

func (r *Repository) DeleteSession(ctx context.Context, token string) error {
	if _, err := r.exec(ctx, r.db, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *Repository) DeleteUserSessions(ctx context.Context, userID string) error {
	if _, err := r.exec(ctx, r.db, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete user sessions: %w", err)
	}
	return nil
}
