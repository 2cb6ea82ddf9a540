package user

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/storefront/internal/apperrors"
	"github.com/nkiryanov/storefront/internal/models"
	"github.com/nkiryanov/storefront/internal/repository"
	"github.com/nkiryanov/storefront/internal/repository/postgres"
	"github.com/nkiryanov/storefront/internal/service/auth"
	"github.com/nkiryanov/storefront/internal/testutil"
)

func TestUser(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Helper function to create UserService within transaction
	inTx := func(t *testing.T, fn func(s *UserService, storage repository.Storage)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			userService := NewService(Config{Hasher: auth.DefaultHasher}, storage)
			fn(userService, storage)
		})
	}

	t.Run("CreateUser", func(t *testing.T) {
		t.Run("create ok", func(t *testing.T) {
			inTx(t, func(s *UserService, _ repository.Storage) {
				user, err := s.CreateUser(t.Context(), "a@x.com", "password123")

				require.NoError(t, err, "creating new user should be ok")
				require.NotEmpty(t, user.ID, "user ID should not be empty")
				require.Equal(t, "a@x.com", user.Email, "email should match")
				require.NotEmpty(t, user.HashedPassword, "password hash should not be empty")
				require.NotEqual(t, "password123", user.HashedPassword, "password should be hashed")
				require.NotZero(t, user.CreatedAt, "created at should be set")
			})
		})

		t.Run("email normalized", func(t *testing.T) {
			inTx(t, func(s *UserService, _ repository.Storage) {
				user, err := s.CreateUser(t.Context(), "  Mixed@Example.COM ", "password123")

				require.NoError(t, err)
				require.Equal(t, "mixed@example.com", user.Email)
			})
		})

		t.Run("empty password fail", func(t *testing.T) {
			inTx(t, func(s *UserService, _ repository.Storage) {
				_, err := s.CreateUser(t.Context(), "a@x.com", "")

				require.Error(t, err, "creating user with empty password should fail")
			})
		})

		t.Run("create duplicate user fail", func(t *testing.T) {
			inTx(t, func(s *UserService, _ repository.Storage) {
				_, err := s.CreateUser(t.Context(), "a@x.com", "password123")
				require.NoError(t, err, "first user creation should succeed")

				_, err = s.CreateUser(t.Context(), "A@X.com", "different_password")

				require.Error(t, err, "creating duplicate user should fail")
				require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
			})
		})
	})

	t.Run("Login", func(t *testing.T) {
		t.Run("login ok", func(t *testing.T) {
			inTx(t, func(s *UserService, storage repository.Storage) {
				createdUser, err := s.CreateUser(t.Context(), "a@x.com", "password123")
				require.NoError(t, err)

				user, err := s.Login(t.Context(), "A@x.com", "password123")

				require.NoError(t, err, "login with correct credentials should succeed")
				require.Equal(t, createdUser.ID, user.ID, "user ID should match")
				require.Equal(t, createdUser.Email, user.Email, "email should match")
				require.NotNil(t, user.LastLoginAt)

				stored, err := storage.User().GetUserByID(t.Context(), user.ID)
				require.NoError(t, err)
				require.NotNil(t, stored.LastLoginAt, "last login must be persisted")
				require.WithinDuration(t, time.Now(), *stored.LastLoginAt, time.Second)
			})
		})

		t.Run("invalid password fail", func(t *testing.T) {
			inTx(t, func(s *UserService, _ repository.Storage) {
				_, err := s.CreateUser(t.Context(), "a@x.com", "password123")
				require.NoError(t, err)

				_, err = s.Login(t.Context(), "a@x.com", "wrong-password")

				require.Error(t, err, "login with wrong password should fail")
				require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
			})
		})

		t.Run("not existed user fail", func(t *testing.T) {
			inTx(t, func(s *UserService, _ repository.Storage) {
				_, err := s.Login(t.Context(), "nobody@x.com", "password123")

				require.Error(t, err, "login with non-existent user should fail")
				require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
				require.NotErrorIs(t, err, apperrors.ErrUserNotFound, "user existence must not leak")
			})
		})
	})

	t.Run("concurrent signup with same email", func(t *testing.T) {
		// Transactions can't be shared between goroutines, so use the pool and unique email
		s := NewService(Config{Hasher: fastHasher{}}, postgres.NewStorage(pg.Pool))
		email := fmt.Sprintf("race-%s@x.com", uuid.NewString())

		const workers = 10
		var wg sync.WaitGroup
		errs := make(chan error, workers)

		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.CreateUser(t.Context(), email, "password123")
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		created := 0
		for err := range errs {
			switch {
			case err == nil:
				created++
			default:
				assert.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
			}
		}
		assert.Equal(t, 1, created, "exactly one signup must win")
	})
}

func TestUser_StoreTimeout(t *testing.T) {
	s := NewService(Config{Hasher: fastHasher{}, StoreTimeout: 10 * time.Millisecond}, slowStorage{})

	_, err := s.Login(t.Context(), "a@x.com", "password123")

	require.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	require.NotErrorIs(t, err, apperrors.ErrInvalidCredentials, "outage must not look like wrong password")
}

// Hasher without bcrypt cost, to keep concurrent test fast
type fastHasher struct{}

func (fastHasher) Hash(password string) (string, error) { return "hash:" + password, nil }
func (fastHasher) Compare(hash string, password string) error {
	if hash != "hash:"+password {
		return errors.New("mismatch")
	}
	return nil
}

// Storage that never answers in time
type slowStorage struct{ repository.Storage }

func (slowStorage) User() repository.UserRepo { return slowUserRepo{} }

type slowUserRepo struct{ repository.UserRepo }

func (slowUserRepo) GetUserByEmail(ctx context.Context, _ string) (m models.User, err error) {
	<-ctx.Done()
	return m, fmt.Errorf("%w: %w", apperrors.ErrStoreUnavailable, ctx.Err())
}
