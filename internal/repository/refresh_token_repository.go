package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"templatedev/api/internal/models"
)

type RefreshTokenRepository struct {
	pool *pgxpool.Pool
}

func NewRefreshTokenRepository(pool *pgxpool.Pool) *RefreshTokenRepository {
	return &RefreshTokenRepository{pool: pool}
}

func (r *RefreshTokenRepository) Create(ctx context.Context, token models.RefreshToken) error {
	const query = `
		INSERT INTO refresh_tokens (id, token, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query, token.ID, token.Token, token.UserID, token.ExpiresAt, token.CreatedAt)
	if uniqueViolationOn(err, "refresh_tokens_token_key") {
		return ErrDuplicateToken
	}
	return err
}

func (r *RefreshTokenRepository) FindByToken(ctx context.Context, token string) (models.RefreshToken, error) {
	const query = `
		SELECT id, token, user_id, expires_at, created_at
		FROM refresh_tokens
		WHERE token = $1
	`

	var rt models.RefreshToken
	if err := r.pool.QueryRow(ctx, query, token).Scan(
		&rt.ID,
		&rt.Token,
		&rt.UserID,
		&rt.ExpiresAt,
		&rt.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.RefreshToken{}, ErrRefreshTokenNotFound
		}
		return models.RefreshToken{}, err
	}
	return rt, nil
}

// DeleteByID reports whether this call removed the row. Of two concurrent
// redemptions of one token only one sees true.
func (r *RefreshTokenRepository) DeleteByID(ctx context.Context, id string) (bool, error) {
	const query = `DELETE FROM refresh_tokens WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *RefreshTokenRepository) DeleteByUserAndToken(ctx context.Context, userID, token string) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE user_id = $1 AND token = $2`
	cmd, err := r.pool.Exec(ctx, query, userID, token)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE expires_at <= $1`
	cmd, err := r.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
