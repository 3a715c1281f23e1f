package jobstore

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// IsNotFoundError checks if an error is a "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// WrapError wraps a database error with operation context.
func WrapError(err error, operation string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", operation, err)
}
