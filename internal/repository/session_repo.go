package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"inboxpilot/internal/model"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session row.
func (r *SessionRepository) Create(ctx context.Context, s *model.Session) error {
	query := `
        INSERT INTO sessions (id, access_token, refresh_token, token_type, expiry, scopes, username, email, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
        RETURNING created_at, updated_at
    `
	return observe(ctx, "insert", "sessions", query, func(ctx context.Context) error {
		return r.db.QueryRow(ctx, query,
			s.ID, s.AccessToken, s.RefreshToken, s.TokenType, s.Expiry, s.Scopes, s.Username, s.Email,
		).Scan(&s.CreatedAt, &s.UpdatedAt)
	})
}

// FindByID returns ErrSessionNotFound when the row does not exist.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*model.Session, error) {
	query := `
        SELECT id, access_token, refresh_token, token_type, expiry, scopes, username, email, created_at, updated_at
        FROM sessions
        WHERE id = $1
    `
	var s model.Session
	err := observe(ctx, "select", "sessions", query, func(ctx context.Context) error {
		return r.db.QueryRow(ctx, query, id).Scan(
			&s.ID, &s.AccessToken, &s.RefreshToken, &s.TokenType, &s.Expiry,
			&s.Scopes, &s.Username, &s.Email, &s.CreatedAt, &s.UpdatedAt,
		)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateToken 保存刷新后的 token。refresh token 为空时保留原值
func (r *SessionRepository) UpdateToken(ctx context.Context, id, accessToken, refreshToken, tokenType string, expiry time.Time) error {
	query := `
        UPDATE sessions
        SET access_token = $2,
            refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
            token_type = $4,
            expiry = $5,
            updated_at = NOW()
        WHERE id = $1
    `
	return observe(ctx, "update", "sessions", query, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, query, id, accessToken, refreshToken, tokenType, expiry)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrSessionNotFound
		}
		return nil
	})
}

// Delete removes a session; deleting a missing row is not an error.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM sessions WHERE id = $1`
	return observe(ctx, "delete", "sessions", query, func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, query, id)
		return err
	})
}
