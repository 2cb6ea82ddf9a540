package tokensweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/storefront/internal/logger"
)

// Allow to use a function as token repo
type deleteFunc func(ctx context.Context, before time.Time) (int64, error)

func (f deleteFunc) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return f(ctx, before)
}

func TestSweeper(t *testing.T) {
	t.Run("new defaults", func(t *testing.T) {
		s, err := New(Config{}, deleteFunc(nil), logger.NewNoOpLogger())
		require.NoError(t, err)

		assert.Equal(t, defaultInterval, s.interval)
		assert.Equal(t, defaultRetention, s.retention)
		assert.Equal(t, defaultTimeout, s.timeout)
	})

	t.Run("new fail", func(t *testing.T) {
		_, err := New(Config{}, nil, logger.NewNoOpLogger())
		require.Error(t, err, "repo is required")

		_, err = New(Config{Interval: -time.Second}, deleteFunc(nil), logger.NewNoOpLogger())
		require.Error(t, err)
	})

	t.Run("sweep respects retention", func(t *testing.T) {
		now := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
		var got time.Time
		repo := deleteFunc(func(ctx context.Context, before time.Time) (int64, error) {
			_, hasDeadline := ctx.Deadline()
			require.True(t, hasDeadline, "sweep must be limited in time")
			got = before
			return 3, nil
		})
		s, err := New(Config{Retention: 2 * time.Hour}, repo, logger.NewNoOpLogger())
		require.NoError(t, err)
		s.now = func() time.Time { return now }

		deleted, err := s.Sweep(t.Context())

		require.NoError(t, err)
		assert.Equal(t, int64(3), deleted)
		assert.Equal(t, now.Add(-2*time.Hour), got)
	})

	t.Run("run until context done", func(t *testing.T) {
		var mu sync.Mutex
		calls := 0
		repo := deleteFunc(func(ctx context.Context, before time.Time) (int64, error) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls == 1 {
				return 0, errors.New("db is down")
			}
			return 1, nil
		})
		s, err := New(Config{Interval: 5 * time.Millisecond}, repo, logger.NewNoOpLogger())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(t.Context())
		stopped := s.Run(ctx)

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return calls >= 3
		}, time.Second, 5*time.Millisecond, "sweeper must keep running after error")

		cancel()
		select {
		case <-stopped:
		case <-time.After(time.Second):
			t.Fatal("sweeper not stopped after context cancel")
		}
	})
}
