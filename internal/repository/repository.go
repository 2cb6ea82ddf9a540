package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/storefront/internal/models"
)

// Credential store
type UserRepo interface {
	// Create user
	// Email uniqueness is enforced by the store: if user with the email exists must return apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, email string, hashedPassword string) (models.User, error)

	// Get user by it's id or email
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	// Set last login time
	// If user not found must return apperrors.ErrUserNotFound
	TouchLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	// Save token in repository
	Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)

	// Return the token even it expired, used or revoked
	// If token not found must return apperrors.ErrRefreshTokenNotFound
	Get(ctx context.Context, tokenID uuid.UUID) (models.RefreshToken, error)

	// Atomically mark the token used at the moment and return it
	// Only one caller may use the token:
	//   - apperrors.ErrRefreshTokenIsUsed if used already (returned token has the first 'UsedAt')
	//   - apperrors.ErrRefreshTokenRevoked if revoked
	//   - apperrors.ErrRefreshTokenNotFound if not exists
	GetAndMarkUsed(ctx context.Context, tokenID uuid.UUID, at time.Time) (models.RefreshToken, error)

	// Revoke token issued for user
	// Idempotent: revoking already revoked token is ok and must not overwrite 'RevokedAt'
	// If token not found (or belongs to other user) must return apperrors.ErrRefreshTokenNotFound
	Revoke(ctx context.Context, tokenID uuid.UUID, userID uuid.UUID, at time.Time) error

	// Revoke all not used and not revoked user tokens, return count of revoked ones
	RevokeAll(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)

	// Delete tokens expired before the moment, return count of deleted ones
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo

	// Run fn in transaction. Commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}
