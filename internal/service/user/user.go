package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nkiryanov/storefront/internal/apperrors"
	"github.com/nkiryanov/storefront/internal/models"
	"github.com/nkiryanov/storefront/internal/repository"
	"github.com/nkiryanov/storefront/internal/service/auth"
)

const defaultStoreTimeout = 5 * time.Second

type Config struct {
	// Hasher for user passwords. auth.DefaultHasher if not set
	Hasher auth.PasswordHasher

	// Max time to wait for credential store answer
	StoreTimeout time.Duration
}

type UserService struct {
	hasher       auth.PasswordHasher
	storage      repository.Storage
	storeTimeout time.Duration

	// Hash to compare with when user not found, so login takes the same time either way
	dummyHash func() (string, error)

	now func() time.Time
}

func NewService(cfg Config, storage repository.Storage) *UserService {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = auth.DefaultHasher
	}

	timeout := cfg.StoreTimeout
	if timeout == 0 {
		timeout = defaultStoreTimeout
	}

	return &UserService{
		hasher:       hasher,
		storage:      storage,
		storeTimeout: timeout,
		dummyHash:    sync.OnceValues(func() (string, error) { return hasher.Hash("not-a-real-password") }),
		now:          time.Now,
	}
}

// Emails are compared case-insensitively
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create user with the password
// Duplicates are detected by the store only: apperrors.ErrUserAlreadyExists if email taken
func (s *UserService) CreateUser(ctx context.Context, email string, password string) (models.User, error) {
	var user models.User

	if password == "" {
		return user, errors.New("password must not be empty")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err = s.storage.User().CreateUser(ctx, NormalizeEmail(email), hash)
	if err != nil {
		return user, fmt.Errorf("can't create user. Err: %w", err)
	}

	return user, nil
}

// Check user credentials and return the user
// Wrong password and unknown email both result in apperrors.ErrInvalidCredentials
func (s *UserService) Login(ctx context.Context, email string, password string) (models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.storage.User().GetUserByEmail(ctx, NormalizeEmail(email))
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		// Burn the same time as the real comparison would
		if hash, hashErr := s.dummyHash(); hashErr == nil {
			_ = s.hasher.Compare(hash, password)
		}
		return models.User{}, apperrors.ErrInvalidCredentials
	case err != nil:
		return models.User{}, fmt.Errorf("can't get user. Err: %w", err)
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return models.User{}, apperrors.ErrInvalidCredentials
	}

	now := s.now()
	if err := s.storage.User().TouchLastLogin(ctx, user.ID, now); err != nil {
		return models.User{}, fmt.Errorf("can't update last login. Err: %w", err)
	}
	user.LastLoginAt = &now

	return user, nil
}
