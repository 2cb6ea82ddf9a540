package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/storefront/internal/apperrors"
	"github.com/nkiryanov/storefront/internal/models"
)

type RefreshTokenRepo struct {
	DB DBTX
}

const refreshColumns = `id, user_id, created_at, expires_at, used_at, revoked_at`

const saveToken = `-- name: SaveRefreshToken
INSERT INTO refresh_tokens (id, user_id, created_at, expires_at, used_at, revoked_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + refreshColumns

func (r *RefreshTokenRepo) Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, saveToken, token.ID, token.UserID, token.CreatedAt, token.ExpiresAt, token.UsedAt, token.RevokedAt)
	saved, err := pgx.CollectOneRow(rows, rowToRefreshToken)
	if err != nil {
		return saved, dbError(err)
	}
	return saved, nil
}

const getToken = `-- name: GetRefreshToken
SELECT ` + refreshColumns + `
FROM refresh_tokens
WHERE id = $1
`

// Get token
// It should return result even it expired, used or revoked already
func (r *RefreshTokenRepo) Get(ctx context.Context, tokenID uuid.UUID) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, getToken, tokenID)
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	default:
		return token, dbError(err)
	}
}

const markTokenUsed = `-- name: MarkRefreshTokenUsed
UPDATE refresh_tokens
SET used_at = $2
WHERE id = $1 AND used_at IS NULL AND revoked_at IS NULL
RETURNING ` + refreshColumns

// Mark token as used
// The condition is re-checked by postgres after the row lock is taken, so only one of concurrent callers succeeds
// Used or revoked token is never rewritten
func (r *RefreshTokenRepo) GetAndMarkUsed(ctx context.Context, tokenID uuid.UUID, at time.Time) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, markTokenUsed, tokenID, at)
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return token, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return token, dbError(err)
	}

	// Nothing updated: find out why
	token, err = r.Get(ctx, tokenID)
	switch {
	case err != nil:
		return token, err
	case token.UsedAt != nil:
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenIsUsed)
	case token.RevokedAt != nil:
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenRevoked)
	default:
		return token, errors.New("programming error, token neither used nor revoked but not updated")
	}
}

const revokeToken = `-- name: RevokeRefreshToken
UPDATE refresh_tokens
SET revoked_at = COALESCE(revoked_at, $3)
WHERE id = $1 AND user_id = $2
`

func (r *RefreshTokenRepo) Revoke(ctx context.Context, tokenID uuid.UUID, userID uuid.UUID, at time.Time) error {
	tag, err := r.DB.Exec(ctx, revokeToken, tokenID, userID, at)

	switch {
	case err != nil:
		return dbError(err)
	case tag.RowsAffected() == 0:
		return fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	default:
		return nil
	}
}

const revokeAllTokens = `-- name: RevokeAllRefreshTokens
UPDATE refresh_tokens
SET revoked_at = $2
WHERE user_id = $1 AND used_at IS NULL AND revoked_at IS NULL
`

func (r *RefreshTokenRepo) RevokeAll(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, revokeAllTokens, userID, at)
	if err != nil {
		return 0, dbError(err)
	}
	return tag.RowsAffected(), nil
}

const deleteExpiredTokens = `-- name: DeleteExpiredRefreshTokens
DELETE FROM refresh_tokens
WHERE expires_at < $1
`

func (r *RefreshTokenRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteExpiredTokens, before)
	if err != nil {
		return 0, dbError(err)
	}
	return tag.RowsAffected(), nil
}

func rowToRefreshToken(row pgx.CollectableRow) (models.RefreshToken, error) {
	var t models.RefreshToken
	err := row.Scan(&t.ID, &t.UserID, &t.CreatedAt, &t.ExpiresAt, &t.UsedAt, &t.RevokedAt)
	return t, err
}
