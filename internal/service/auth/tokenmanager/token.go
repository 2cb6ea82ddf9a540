package tokenmanager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/storefront/internal/apperrors"
	"github.com/nkiryanov/storefront/internal/models"
	"github.com/nkiryanov/storefront/internal/repository"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultSigningMethod   = "HS256"
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Value of the 'typ' claim, so access token can't be used as refresh one and vice versa
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

type Claims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

// Token manager with sensible default
type Config struct {
	// Secret key to sign tokens
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Clock. time.Now if not set
	Now func() time.Time
}

type TokenManager struct {
	key        []byte
	alg        jwt.SigningMethod
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time

	storage repository.Storage
}

func New(cfg Config, storage repository.Storage) (*TokenManager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg := jwt.GetSigningMethod(cfg.Alg)
	if _, ok := alg.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unsupported signing method: %q", cfg.Alg)
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, errors.New("token ttl must be positive")
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &TokenManager{
		key:        []byte(cfg.SecretKey),
		alg:        alg,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        cfg.Now,
		storage:    storage,
	}, nil
}

func (m *TokenManager) AccessTTL() time.Duration  { return m.accessTTL }
func (m *TokenManager) RefreshTTL() time.Duration { return m.refreshTTL }

// JWT numeric dates have second precision, keep issued values the same
func (m *TokenManager) currentTime() time.Time {
	return m.now().Truncate(time.Second)
}

func (m *TokenManager) sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(m.alg, claims).SignedString(m.key)
}

func (m *TokenManager) IssueAccessToken(user models.User) (models.IssuedToken, error) {
	now := m.currentTime()
	expiresAt := now.Add(m.accessTTL)

	access, err := m.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Type: TypeAccess,
	})
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	return models.IssuedToken{Value: access, ExpiresAt: expiresAt}, nil
}

// Issue refresh token and persist it
func (m *TokenManager) IssueRefreshToken(ctx context.Context, user models.User) (models.IssuedToken, error) {
	return m.issueRefresh(ctx, m.storage.Refresh(), user.ID)
}

func (m *TokenManager) issueRefresh(ctx context.Context, repo repository.RefreshTokenRepo, userID uuid.UUID) (models.IssuedToken, error) {
	now := m.currentTime()
	expiresAt := now.Add(m.refreshTTL)

	token, err := repo.Save(ctx, models.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	refresh, err := m.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ID:        token.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Type: TypeRefresh,
	})
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing refresh token. Err: %w", err)
	}

	return models.IssuedToken{Value: refresh, ExpiresAt: expiresAt}, nil
}

func (m *TokenManager) GeneratePair(ctx context.Context, user models.User) (models.TokenPair, error) {
	return m.generatePair(ctx, m.storage.Refresh(), user.ID)
}

func (m *TokenManager) generatePair(ctx context.Context, repo repository.RefreshTokenRepo, userID uuid.UUID) (models.TokenPair, error) {
	var pair models.TokenPair

	access, err := m.IssueAccessToken(models.User{ID: userID})
	if err != nil {
		return pair, err
	}

	refresh, err := m.issueRefresh(ctx, repo, userID)
	if err != nil {
		return pair, err
	}

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

// Parse and validate token of the expected type
// Any problem with the token except expiration is reported as apperrors.ErrInvalidToken
// Expired (but correctly signed) token is reported as apperrors.ErrExpiredToken, claims are filled in this case
func (m *TokenManager) parse(value string, typ string, opts ...jwt.ParserOption) (Claims, error) {
	var claims Claims

	opts = append(opts,
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	_, err := jwt.ParseWithClaims(value, &claims, func(*jwt.Token) (any, error) { return m.key, nil }, opts...)

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		err = apperrors.ErrExpiredToken
	case err != nil:
		return claims, fmt.Errorf("%w: %w", apperrors.ErrInvalidToken, err)
	}

	if claims.Type != typ {
		return claims, fmt.Errorf("%w: unexpected token type %q", apperrors.ErrInvalidToken, claims.Type)
	}

	return claims, err
}

func subject(claims Claims) (uuid.UUID, error) {
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject: %w", apperrors.ErrInvalidToken, err)
	}
	return userID, nil
}

// Verify access token and return its subject
func (m *TokenManager) Verify(access string) (uuid.UUID, error) {
	claims, err := m.parse(access, TypeAccess, jwt.WithExpirationRequired())
	if err != nil {
		return uuid.Nil, err
	}
	return subject(claims)
}

// Return subject of correctly signed refresh token even it is expired
func (m *TokenManager) RefreshOwner(refresh string) (uuid.UUID, error) {
	claims, err := m.parse(refresh, TypeRefresh, jwt.WithoutClaimsValidation())
	if err != nil {
		return uuid.Nil, err
	}
	return subject(claims)
}

func (m *TokenManager) refreshIdentity(claims Claims) (tokenID uuid.UUID, userID uuid.UUID, err error) {
	userID, err = subject(claims)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}

	tokenID, err = uuid.Parse(claims.ID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: bad token id: %w", apperrors.ErrInvalidToken, err)
	}

	return tokenID, userID, nil
}

// Exchange refresh token to the new pair
// Refresh token is usable only once. Presenting already used token revokes all active user tokens.
func (m *TokenManager) Refresh(ctx context.Context, refresh string) (models.TokenPair, error) {
	var pair models.TokenPair

	claims, err := m.parse(refresh, TypeRefresh, jwt.WithExpirationRequired())
	switch {
	case errors.Is(err, apperrors.ErrExpiredToken):
		return pair, fmt.Errorf("refresh error: %w", apperrors.ErrRefreshTokenExpired)
	case err != nil:
		return pair, fmt.Errorf("refresh error: %w", err)
	}

	tokenID, userID, err := m.refreshIdentity(claims)
	if err != nil {
		return pair, fmt.Errorf("refresh error: %w", err)
	}

	now := m.currentTime()
	err = m.storage.InTx(ctx, func(s repository.Storage) error {
		token, err := s.Refresh().GetAndMarkUsed(ctx, tokenID, now)
		if err != nil {
			return err
		}

		if token.UserID != userID {
			return fmt.Errorf("%w: token issued for other user", apperrors.ErrInvalidToken)
		}

		if !now.Before(token.ExpiresAt) {
			return apperrors.ErrRefreshTokenExpired
		}

		pair, err = m.generatePair(ctx, s.Refresh(), userID)
		return err
	})

	if errors.Is(err, apperrors.ErrRefreshTokenIsUsed) {
		if _, revokeErr := m.storage.Refresh().RevokeAll(ctx, userID, now); revokeErr != nil {
			return pair, fmt.Errorf("refresh error: %w (revoke all failed: %w)", err, revokeErr)
		}
	}

	if err != nil {
		return models.TokenPair{}, fmt.Errorf("refresh error: %w", err)
	}

	return pair, nil
}

// Revoke refresh token issued for the user
// Revoking already revoked token is ok
func (m *TokenManager) Revoke(ctx context.Context, refresh string, userID uuid.UUID) error {
	claims, err := m.parse(refresh, TypeRefresh, jwt.WithoutClaimsValidation())
	if err != nil {
		return fmt.Errorf("revoke error: %w", err)
	}

	tokenID, _, err := m.refreshIdentity(claims)
	if err != nil {
		return fmt.Errorf("revoke error: %w", err)
	}

	if err := m.storage.Refresh().Revoke(ctx, tokenID, userID, m.currentTime()); err != nil {
		return fmt.Errorf("revoke error: %w", err)
	}

	return nil
}
