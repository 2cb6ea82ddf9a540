package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/storefront/internal/apperrors"
	"github.com/nkiryanov/storefront/internal/models"
	"github.com/nkiryanov/storefront/internal/repository"
)

const (
	defaultAccessHeaderName  = "Authorization"
	defaultAccessAuthScheme  = "Bearer"
	defaultAccessCookieName  = "accesstoken"
	defaultAccessCookiePath  = "/"
	defaultRefreshCookieName = "refreshtoken"
	defaultRefreshCookiePath = "/api/auth"
	defaultStoreTimeout      = 5 * time.Second
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

type TokenManager interface {
	GeneratePair(ctx context.Context, user models.User) (models.TokenPair, error)
	Refresh(ctx context.Context, refresh string) (models.TokenPair, error)
	Revoke(ctx context.Context, refresh string, userID uuid.UUID) error
	Verify(access string) (uuid.UUID, error)
	RefreshOwner(refresh string) (uuid.UUID, error)
	AccessTTL() time.Duration
	RefreshTTL() time.Duration
}

// Where tokens are taken from and written to. Defaults are used for empty fields
type Config struct {
	AccessHeaderName string
	AccessAuthScheme string

	AccessCookieName  string
	AccessCookiePath  string
	RefreshCookieName string
	RefreshCookiePath string

	// Send cookies over https only
	SecureCookies bool

	// Max time to wait for credential store answer
	StoreTimeout time.Duration
}

type AuthService struct {
	accessHeaderName string
	accessAuthScheme string

	accessCookieName  string
	accessCookiePath  string
	refreshCookieName string
	refreshCookiePath string
	secureCookies     bool

	storeTimeout time.Duration

	tokenManager TokenManager
	userRepo     repository.UserRepo
}

func NewService(cfg Config, tokenManager TokenManager, userRepo repository.UserRepo) (*AuthService, error) {
	setDefault := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	setDefault(&cfg.AccessHeaderName, defaultAccessHeaderName)
	setDefault(&cfg.AccessAuthScheme, defaultAccessAuthScheme)
	setDefault(&cfg.AccessCookieName, defaultAccessCookieName)
	setDefault(&cfg.AccessCookiePath, defaultAccessCookiePath)
	setDefault(&cfg.RefreshCookieName, defaultRefreshCookieName)
	setDefault(&cfg.RefreshCookiePath, defaultRefreshCookiePath)

	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if cfg.StoreTimeout < 0 {
		return nil, errors.New("store timeout must be positive")
	}

	return &AuthService{
		accessHeaderName:  cfg.AccessHeaderName,
		accessAuthScheme:  cfg.AccessAuthScheme,
		accessCookieName:  cfg.AccessCookieName,
		accessCookiePath:  cfg.AccessCookiePath,
		refreshCookieName: cfg.RefreshCookieName,
		refreshCookiePath: cfg.RefreshCookiePath,
		secureCookies:     cfg.SecureCookies,
		storeTimeout:      cfg.StoreTimeout,
		tokenManager:      tokenManager,
		userRepo:          userRepo,
	}, nil
}

// Issue new token pair for already authenticated user
func (s *AuthService) Login(ctx context.Context, user models.User) (models.TokenPair, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	pair, err := s.tokenManager.GeneratePair(ctx, user)
	if err != nil {
		return pair, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return pair, nil
}

// Exchange refresh token to the new pair
func (s *AuthService) RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	return s.tokenManager.Refresh(ctx, refresh)
}

// Close the user session: revoke refresh token if any
// Token already removed from the store is not an error
func (s *AuthService) Logout(ctx context.Context, user models.User, refresh string) error {
	if refresh == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	err := s.tokenManager.Revoke(ctx, refresh, user.ID)
	if err != nil && !errors.Is(err, apperrors.ErrRefreshTokenNotFound) {
		return err
	}

	return nil
}

// Authenticate request by access token
// The token is taken from header first, then from cookie
func (s *AuthService) Auth(ctx context.Context, r *http.Request) (models.User, error) {
	var user models.User

	access := s.accessFromRequest(r)
	if access == "" {
		return user, fmt.Errorf("%w: no access token", apperrors.ErrInvalidToken)
	}

	userID, err := s.tokenManager.Verify(access)
	if err != nil {
		return user, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err = s.userRepo.GetUserByID(ctx, userID)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return user, fmt.Errorf("%w: token subject not exists", apperrors.ErrInvalidToken)
	case err != nil:
		return user, err
	}

	return user, nil
}

// Authenticate request to close the session
// Same as Auth, but refresh token (if sent) must belong to the authenticated user
// Expired refresh token is fine here
func (s *AuthService) AuthIntercept(ctx context.Context, r *http.Request) (models.User, error) {
	user, err := s.Auth(ctx, r)
	if err != nil {
		return user, err
	}

	refresh, ok := s.RefreshFromRequest(r)
	if !ok {
		return user, nil
	}

	owner, err := s.tokenManager.RefreshOwner(refresh)
	switch {
	case err != nil:
		return models.User{}, err
	case owner != user.ID:
		return models.User{}, fmt.Errorf("%w: refresh token belongs to other user", apperrors.ErrInvalidToken)
	}

	return user, nil
}

func (s *AuthService) accessFromRequest(r *http.Request) string {
	if header := r.Header.Get(s.accessHeaderName); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if found && strings.EqualFold(scheme, s.accessAuthScheme) {
			return strings.TrimSpace(token)
		}
		return ""
	}

	if c, err := r.Cookie(s.accessCookieName); err == nil {
		return c.Value
	}

	return ""
}

func (s *AuthService) RefreshFromRequest(r *http.Request) (string, bool) {
	c, err := r.Cookie(s.refreshCookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// Write tokens to response: both as cookies, access one also as header
func (s *AuthService) SetTokens(w http.ResponseWriter, pair models.TokenPair) {
	w.Header().Set(s.accessHeaderName, s.accessAuthScheme+" "+pair.Access.Value)

	http.SetCookie(w, s.cookie(s.accessCookieName, s.accessCookiePath, pair.Access.Value, s.tokenManager.AccessTTL()))
	http.SetCookie(w, s.cookie(s.refreshCookieName, s.refreshCookiePath, pair.Refresh.Value, s.tokenManager.RefreshTTL()))
}

// Ask client to remove token cookies
func (s *AuthService) ClearTokens(w http.ResponseWriter) {
	http.SetCookie(w, s.cookie(s.accessCookieName, s.accessCookiePath, "", -1))
	http.SetCookie(w, s.cookie(s.refreshCookieName, s.refreshCookiePath, "", -1))
}

// Negative ttl deletes the cookie
func (s *AuthService) cookie(name string, path string, value string, ttl time.Duration) *http.Cookie {
	maxAge := int(ttl.Seconds())
	if ttl < 0 {
		maxAge = -1
	}

	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteStrictMode,
	}
}
