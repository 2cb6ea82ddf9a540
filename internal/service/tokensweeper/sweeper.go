package tokensweeper

import (
	"context"
	"errors"
	"time"

	"github.com/nkiryanov/storefront/internal/logger"
)

const (
	defaultInterval  = time.Hour
	defaultRetention = 24 * time.Hour
	defaultTimeout   = 30 * time.Second
)

type tokenRepo interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type Config struct {
	// How often expired refresh tokens are deleted
	Interval time.Duration

	// Expired tokens are kept that long after expiration
	Retention time.Duration

	// Max time for one sweep
	Timeout time.Duration
}

// Periodically deletes expired refresh tokens
type Sweeper struct {
	interval  time.Duration
	retention time.Duration
	timeout   time.Duration

	repo   tokenRepo
	logger logger.Logger
	now    func() time.Time
}

func New(cfg Config, repo tokenRepo, l logger.Logger) (*Sweeper, error) {
	if repo == nil {
		return nil, errors.New("token repo must not be nil")
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.Interval, defaultInterval)
	setDefaultDuration(&cfg.Retention, defaultRetention)
	setDefaultDuration(&cfg.Timeout, defaultTimeout)

	if cfg.Interval < 0 || cfg.Retention < 0 || cfg.Timeout < 0 {
		return nil, errors.New("sweeper durations must be positive")
	}

	return &Sweeper{
		interval:  cfg.Interval,
		retention: cfg.Retention,
		timeout:   cfg.Timeout,
		repo:      repo,
		logger:    l,
		now:       time.Now,
	}, nil
}

// Delete tokens expired more than retention ago
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.repo.DeleteExpired(ctx, s.now().Add(-s.retention))
}

// Sweep on every tick until ctx is done
// Returned channel is closed when sweeper stopped
func (s *Sweeper) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	s.logger.Debug("Starting token sweeper", "interval", s.interval, "retention", s.retention)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("Token sweeper stopped by context")
				return

			case <-ticker.C:
				deleted, err := s.Sweep(ctx)
				if err != nil {
					s.logger.Error("Failed to delete expired refresh tokens", "error", err)
					continue
				}
				if deleted > 0 {
					s.logger.Info("Expired refresh tokens deleted", "count", deleted)
				}
			}
		}
	}()

	return idleStopped
}
