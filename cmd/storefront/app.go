package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nkiryanov/storefront/internal/db"
	"github.com/nkiryanov/storefront/internal/handlers"
	"github.com/nkiryanov/storefront/internal/handlers/middleware"
	"github.com/nkiryanov/storefront/internal/logger"
	"github.com/nkiryanov/storefront/internal/repository/postgres"
	"github.com/nkiryanov/storefront/internal/service/auth"
	"github.com/nkiryanov/storefront/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/storefront/internal/service/tokensweeper"
	"github.com/nkiryanov/storefront/internal/service/user"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger  logger.Logger
	pool    *pgxpool.Pool
	sweeper *tokensweeper.Sweeper
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Fail before touching db if the tokens can't be signed anyway
	if c.SecretKey == "" {
		return nil, errors.New("secret key must be set")
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	app, err := newServerApp(c, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return app, nil
}

func newServerApp(c *Config, pool *pgxpool.Pool, logger logger.Logger) (*ServerApp, error) {
	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Initialize services
	tokenManager, err := tokenmanager.New(tokenmanager.Config{
		SecretKey:  c.SecretKey,
		AccessTTL:  c.AccessTTL,
		RefreshTTL: c.RefreshTTL,
	}, storage)
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}
	userService := user.NewService(user.Config{StoreTimeout: c.StoreTimeout}, storage)
	authService, err := auth.NewService(auth.Config{
		SecureCookies: c.SecureCookies,
		StoreTimeout:  c.StoreTimeout,
	}, tokenManager, storage.User())
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	sweeper, err := tokensweeper.New(tokensweeper.Config{Interval: c.SweepInterval}, storage.Refresh(), logger)
	if err != nil {
		return nil, fmt.Errorf("error while creating token sweeper. Err: %w", err)
	}

	handler, err := handlers.NewRouter(
		handlers.RouterConfig{
			CORS:      middleware.CORSConfig{AllowedOrigins: c.CORSOrigins},
			RateLimit: middleware.RateLimitConfig{RPS: c.RateLimitRPS, Burst: c.RateLimitBurst},
		},
		authService,
		userService,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("error while creating router. Err: %w", err)
	}

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    handler,
		logger:     logger,
		pool:       pool,
		sweeper:    sweeper,
	}, nil
}

// Run starts http server and closes gracefully on context cancellation
// Database pool is closed when Run returns
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.pool.Close()

	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	sweeperStopped := s.sweeper.Run(srvCtx)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-sweeperStopped

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
