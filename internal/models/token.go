package models

import (
	"time"

	"github.com/google/uuid"
)

// Persisted part of the refresh token
// The token itself is a signed JWT which 'jti' is the ID
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time // nil if token not used
	RevokedAt *time.Time // nil if token not revoked
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issues by TokenManager, AuthService
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}
