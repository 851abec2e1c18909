package repository

import (
	"errors"
	"fmt"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/model"
)

// Sentinel kinds for repository errors.
var (
	// ErrConflict marks a unique constraint violation on insert.
	ErrConflict = fmt.Errorf("unique constraint violated: %w", model.ErrWriteConflict)
	// ErrNotFound marks a missing row.
	ErrNotFound = fmt.Errorf("record %w", model.ErrNotFound)
	// ErrInvalidPage marks a negative limit or offset.
	ErrInvalidPage = errors.New("invalid page")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store closed")
)

// Persistence wraps a storage error so it unwraps to model.ErrPersistence
// while keeping the cause reachable.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, model.ErrPersistence, err)
}
