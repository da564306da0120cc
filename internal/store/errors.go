package store

import (
	"context"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound means the referenced task does not exist (or was deleted concurrently).
	ErrNotFound = errors.New("task not found")
	// ErrInvalidArgument means a malformed status or index reached the store or engine.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConcurrencyConflict means another writer held the board long enough
	// for this transaction to give up. Retry the whole operation with fresh state.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrStorage wraps any other persistence failure.
	ErrStorage = errors.New("storage failure")
)

// wrapErr classifies a driver error into one of the sentinels above.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrConcurrencyConflict) || errors.Is(err, ErrStorage) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%s: %w: %v", op, ErrConcurrencyConflict, err)
		}
	}
	return fmt.Errorf("%s: %w: %v", op, ErrStorage, err)
}
