package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-auth-backend/internal/model"
)

const sessionColumns = `id, user_id, access_token, refresh_token, expires_at, created_at, updated_at`

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) FindByAccessToken(ctx context.Context, accessToken string) (model.Session, error) {
	return r.findBy(ctx, `access_token`, accessToken)
}

func (r *SessionRepository) FindByRefreshToken(ctx context.Context, refreshToken string) (model.Session, error) {
	return r.findBy(ctx, `refresh_token`, refreshToken)
}

func (r *SessionRepository) findBy(ctx context.Context, column string, value string) (model.Session, error) {
	var s model.Session
	err := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE `+column+` = $1`, value).
		Scan(&s.ID, &s.UserID, &s.AccessToken, &s.RefreshToken, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.Session{}, model.ErrSessionNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("find session by %s: %w", column, err)
	}
	return s, nil
}

func (r *SessionRepository) FindByUserID(ctx context.Context, userID string) ([]model.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("find sessions by user id: %w", err)
	}
	defer rows.Close()

	sessions := make([]model.Session, 0, 1)
	for rows.Next() {
		var s model.Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.AccessToken, &s.RefreshToken,
			&s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Create inserts the session row. The unique constraint on user_id is the
// arbiter for the single-session policy: two concurrent logins both reach
// the insert, one wins, the other gets ErrSessionExists.
func (r *SessionRepository) Create(ctx context.Context, s model.Session) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (id, user_id, access_token, refresh_token, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.UserID, s.AccessToken, s.RefreshToken, s.ExpiresAt, s.CreatedAt, s.UpdatedAt)
	if isUniqueViolation(err) {
		return model.ErrSessionExists
	}
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) UpdateAccessToken(ctx context.Context, sessionID string, accessToken string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sessions SET access_token = $2, updated_at = $3 WHERE id = $1`,
		sessionID, accessToken, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update session access token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrSessionNotFound
	}
	return nil
}

// UpdateTokens replaces the full token pair and pushes out the expiry.
// Used only when refresh rotation is enabled.
func (r *SessionRepository) UpdateTokens(ctx context.Context, sessionID string, accessToken string, refreshToken string, expiresAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sessions
		 SET access_token = $2, refresh_token = $3, expires_at = $4, updated_at = $5
		 WHERE id = $1`,
		sessionID, accessToken, refreshToken, expiresAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update session tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) DeleteByAccessToken(ctx context.Context, accessToken string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE access_token = $1`, accessToken)
	if err != nil {
		return 0, fmt.Errorf("delete session by access token: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *SessionRepository) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete sessions by user id: %w", err)
	}
	return nil
}

// DeleteExpired removes rows past their refresh expiry. Expiry is enforced
// lazily on refresh regardless; this only reclaims storage.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
