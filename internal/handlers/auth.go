package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/storefront/internal/apperrors"
	"github.com/nkiryanov/storefront/internal/handlers/render"
	"github.com/nkiryanov/storefront/internal/handlers/userctx"
	"github.com/nkiryanov/storefront/internal/logger"
	"github.com/nkiryanov/storefront/internal/models"
)

type signupRequest struct {
	Email    string `json:"email" validate:"notblank,email,max=254"`
	Password string `json:"password" validate:"notblank"`
}

// Login checks presence only: any wrong input must end as invalid credentials
type loginRequest struct {
	Email    string `json:"email" validate:"notblank"`
	Password string `json:"password" validate:"notblank"`
}

type userResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func newUserResponse(user models.User) userResponse {
	return userResponse{ID: user.ID, Email: user.Email, CreatedAt: user.CreatedAt}
}

func newTokenResponse(pair models.TokenPair) tokenResponse {
	return tokenResponse{AccessToken: pair.Access.Value, TokenType: "Bearer", ExpiresAt: pair.Access.ExpiresAt}
}

// Render error, log it if it is not caller's fault
func renderError(w http.ResponseWriter, err error, l logger.Logger, msg string) {
	switch {
	case errors.Is(err, apperrors.ErrStoreUnavailable):
		l.Warn(msg, "error", err)
	case errors.Is(err, apperrors.ErrUserAlreadyExists),
		errors.Is(err, apperrors.ErrInvalidCredentials):
	default:
		l.Debug(msg, "error", err)
	}

	render.AppError(w, err)
}

func handleSignup(userService userService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[signupRequest](w, r)
		if err != nil {
			return
		}

		user, err := userService.CreateUser(r.Context(), data.Email, data.Password)
		if err != nil {
			renderError(w, err, l, "Signup failed")
			return
		}

		l.Info("User signed up", "user_id", user.ID)
		render.JSONWithStatus(w, newUserResponse(user), http.StatusCreated)
	})
}

func handleLogin(userService userService, authService authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[loginRequest](w, r)
		if err != nil {
			return
		}

		user, err := userService.Login(r.Context(), data.Email, data.Password)
		if err != nil {
			renderError(w, err, l, "Login failed")
			return
		}

		pair, err := authService.Login(r.Context(), user)
		if err != nil {
			l.Error("Token pair not issued", "user_id", user.ID, "error", err)
			render.AppError(w, err)
			return
		}

		authService.SetTokens(w, pair)
		render.JSON(w, newTokenResponse(pair))
	})
}

func handleRefresh(authService authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, ok := authService.RefreshFromRequest(r)
		if !ok {
			render.Unauthorized(w)
			return
		}

		pair, err := authService.RefreshPair(r.Context(), refresh)
		switch {
		case errors.Is(err, apperrors.ErrRefreshTokenIsUsed):
			l.Warn("Refresh token reused, user sessions revoked", "error", err)
			render.Unauthorized(w)
			return
		case errors.Is(err, apperrors.ErrStoreUnavailable):
			renderError(w, err, l, "Refresh failed")
			return
		case err != nil:
			// Any other refresh problem is the caller's one
			l.Debug("Refresh failed", "error", err)
			render.Unauthorized(w)
			return
		}

		authService.SetTokens(w, pair)
		render.JSON(w, newTokenResponse(pair))
	})
}

func handleLogout(authService authService, l logger.Logger) http.Handler {
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.Unauthorized(w)
			return
		}

		refresh, _ := authService.RefreshFromRequest(r)
		if err := authService.Logout(r.Context(), user, refresh); err != nil {
			// Session closed for the client anyway, token expires by itself
			l.Warn("Refresh token not revoked on logout", "user_id", user.ID, "error", err)
		}

		authService.ClearTokens(w)
		render.JSON(w, response{Message: "Logged out"})
	})
}

func handleMe() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.Unauthorized(w)
			return
		}
		render.JSON(w, newUserResponse(user))
	})
}

func handleHealth() http.Handler {
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, response{Message: "hello server is alive"})
	})
}
