package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/nkiryanov/storefront/internal/apperrors"
	"github.com/nkiryanov/storefront/internal/handlers/render"
	"github.com/nkiryanov/storefront/internal/handlers/userctx"
	"github.com/nkiryanov/storefront/internal/models"
)

type authService interface {
	Auth(ctx context.Context, r *http.Request) (models.User, error)
}

type interceptService interface {
	AuthIntercept(ctx context.Context, r *http.Request) (models.User, error)
}

type authenticateFunc func(ctx context.Context, r *http.Request) (models.User, error)

// Put authenticated user to request context or stop with 401
func authenticate(fn authenticateFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := fn(r.Context(), r)
			switch {
			case errors.Is(err, apperrors.ErrStoreUnavailable):
				render.AppError(w, err)
				return
			case err != nil:
				render.Unauthorized(w)
				return
			}

			ctx := userctx.New(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// General session middleware for protected routes
func Auth(as authService) func(http.Handler) http.Handler {
	return authenticate(as.Auth)
}

// Session middleware for the route that closes the session
func Interceptor(as interceptService) func(http.Handler) http.Handler {
	return authenticate(as.AuthIntercept)
}
