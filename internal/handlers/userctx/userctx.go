// Authenticated user travels from session middleware to handlers in request context
package userctx

import (
	"context"

	"github.com/nkiryanov/storefront/internal/models"
)

type userKey struct{}

// Create a new context with the user
func New(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// Extract the user from the context
// False if request passed no session middleware
func FromContext(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(userKey{}).(models.User)
	return u, ok
}
