package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/storefront/internal/apperrors"
)

// Satisfied by *pgxpool.Pool and pgx.Tx both
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Wrap driver error
// Errors meaning the database is not reachable (or not answered in time) become apperrors.ErrStoreUnavailable
func dbError(err error) error {
	var connectErr *pgconn.ConnectError
	var netErr net.Error

	switch {
	case errors.As(err, &connectErr),
		errors.As(err, &netErr),
		errors.Is(err, context.DeadlineExceeded),
		pgconn.Timeout(err):
		return fmt.Errorf("db error: %w: %w", apperrors.ErrStoreUnavailable, err)
	default:
		return fmt.Errorf("db error: %w", err)
	}
}
