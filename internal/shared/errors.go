package shared

import (
	"errors"
	"fmt"
)

// Engine error taxonomy. Domain packages wrap these sentinels so callers can
// classify failures with errors.Is regardless of how deep the wrap is.
var (
	// ErrValidation indicates malformed caller input; recoverable by the caller.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a referenced entity is absent.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates an operation illegal for the current lifecycle state.
	ErrInvalidState = errors.New("invalid state")
	// ErrConflict indicates a uniqueness or numbering collision; callers may retry.
	ErrConflict = errors.New("conflict")
	// ErrStorage indicates an underlying durability failure; fatal to the operation.
	ErrStorage = errors.New("storage failure")
)

// Validationf builds a validation error with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// InvalidStatef builds an invalid-state error with a formatted reason.
func InvalidStatef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// UserSafeMessage returns a message safe to surface to API consumers.
// Storage internals are hidden; everything else in the taxonomy is caller-facing.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStorage):
		return "a storage error occurred, please try again"
	default:
		return err.Error()
	}
}
