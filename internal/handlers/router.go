package handlers

import (
	"context"
	"net/http"

	"github.com/nkiryanov/storefront/internal/handlers/middleware"
	"github.com/nkiryanov/storefront/internal/logger"
	"github.com/nkiryanov/storefront/internal/models"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type RouterConfig struct {
	CORS      middleware.CORSConfig
	RateLimit middleware.RateLimitConfig
}

func NewRouter(
	cfg RouterConfig,
	authService authService,
	userService userService,
	logger logger.Logger,
) (http.Handler, error) {
	rateLimit, err := middleware.RateLimit(cfg.RateLimit)
	if err != nil {
		return nil, err
	}
	cors, err := middleware.CORS(cfg.CORS)
	if err != nil {
		return nil, err
	}
	withAuth := middleware.Auth(authService)
	withInterceptor := middleware.Interceptor(authService)

	apiauth := http.NewServeMux()

	apiauth.Handle("POST /signup", chain(handleSignup(userService, logger), rateLimit))
	apiauth.Handle("POST /login", chain(handleLogin(userService, authService, logger), rateLimit))
	apiauth.Handle("POST /refresh", chain(handleRefresh(authService, logger), rateLimit))
	apiauth.Handle("POST /logout", chain(handleLogout(authService, logger), withInterceptor))
	apiauth.Handle("GET /me", chain(handleMe(), withAuth))

	root := http.NewServeMux()
	root.Handle("GET /{$}", handleHealth())
	root.Handle("/api/auth/", http.StripPrefix("/api/auth", apiauth))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
		cors,
	)

	return handler, nil
}

type userService interface {
	// Create user with email and password
	// Has to return apperrors.ErrUserAlreadyExists if email taken
	CreateUser(ctx context.Context, email string, password string) (models.User, error)

	// Check user credentials
	// Has to return apperrors.ErrInvalidCredentials if email unknown or password wrong
	Login(ctx context.Context, email string, password string) (models.User, error)
}

type authService interface {
	// Issue token pair for authenticated user
	Login(ctx context.Context, user models.User) (models.TokenPair, error)

	// Refresh tokens using refresh token
	RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error)

	// Revoke refresh token of the user if any
	Logout(ctx context.Context, user models.User, refresh string) error

	// Set auth tokens (access, refresh) to response, or ask client to forget them
	SetTokens(w http.ResponseWriter, pair models.TokenPair)
	ClearTokens(w http.ResponseWriter)

	// Get refresh token from request
	RefreshFromRequest(r *http.Request) (string, bool)

	// Get request and return user if it authenticated or error
	Auth(ctx context.Context, r *http.Request) (models.User, error)
	AuthIntercept(ctx context.Context, r *http.Request) (models.User, error)
}
