package database

import (
	"errors"
	"fmt"
)

var (
	// ErrUserNotFound is returned when no record exists for an external ID.
	// It marks first contact, not a failure.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned by CreateUser when the external ID is taken.
	ErrUserExists = errors.New("user already exists")
	// ErrStoreUnavailable wraps every driver-level failure.
	ErrStoreUnavailable = errors.New("user store unavailable")
	// ErrSkipUpdate may be returned by an UpdateUser mutation to leave the
	// record untouched. UpdateUser then returns the current record and nil.
	ErrSkipUpdate = errors.New("skip update")
)

// StoreError tags a driver error with ErrStoreUnavailable.
func StoreError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
