package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arklim/tenant-access/internal/core/domain"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = fmt.Errorf("repository: %w", domain.ErrNotFound)
	// ErrConflict indicates a uniqueness constraint rejected the write.
	ErrConflict = fmt.Errorf("repository: %w", domain.ErrConflict)
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// MapWriteError converts driver errors raised by writes into repository errors.
func MapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		case foreignKeyViolation:
			return fmt.Errorf("%w: %s", ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}
