package dedup

import (
	"errors"
	"fmt"
)

var (
	// ErrStorageUnavailable wraps every failure of the underlying database.
	// Callers may retry the whole operation.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrIntegrityViolation means the composite key could be neither inserted nor read back.
	ErrIntegrityViolation = errors.New("integrity violation")
	// ErrRelativePath is returned when the database path is not absolute.
	ErrRelativePath = errors.New("database path must be absolute")
)

func unavailable(op string, err error) error {
	return fmt.Errorf("dedup: %s: %w: %w", op, ErrStorageUnavailable, err)
}
