// Package repos is the data access layer: one narrow interface per table,
// gorm underneath, optional caller-supplied transactions.
package repos

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/dewiapp/dewi-backend/internal/domain"
)

const pgUniqueViolation = "23505"

// mapWriteError classifies storage write failures. A unique violation means
// a concurrent writer won the same key, which upper layers handle as a race
// conflict; everything else passes through wrapped.
func mapWriteError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%s: %w", op, domain.ErrRaceConflict)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%s: %w", op, domain.ErrRaceConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
