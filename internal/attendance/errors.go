package attendance

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks missing or malformed input. Not retryable.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized is returned for any rejected credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrAuthBackendUnavailable is logged when the active key cannot be read.
	ErrAuthBackendUnavailable = errors.New("auth backend unavailable")
	// ErrStudentNotFound means no student carries the scanned badge.
	ErrStudentNotFound = errors.New("student not found")
	// ErrNotFound is returned by stores for a missing record addressed by id.
	ErrNotFound = errors.New("not found")
	// ErrStoreUnavailable wraps store failures and timeouts. Retryable.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrDuplicateEvent is returned by stores when (student, day) already has an event.
	ErrDuplicateEvent = errors.New("event already recorded for this day")
	// ErrBadgeTaken is returned when another student already uses the badge id.
	ErrBadgeTaken = errors.New("badge id already assigned")
)

// validationError wraps ErrValidation with the offending field.
func validationError(field, msg string) error {
	return fmt.Errorf("%w: %s %s", ErrValidation, field, msg)
}

// unavailable wraps a raw store error as ErrStoreUnavailable unless it is
// already one of the domain sentinels.
func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrNotFound, ErrDuplicateEvent, ErrBadgeTaken, ErrValidation, ErrStoreUnavailable} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
