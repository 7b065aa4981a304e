package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: the message id is unknown to the store.
	ErrNotFound = errors.New("scheduled message not found")

	// ErrConflict: a fenced update lost an optimistic-concurrency race.
	ErrConflict = errors.New("scheduling state changed concurrently")

	// ErrInvalidTransition: the message's current status does not allow the
	// requested operation.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrScheduleInPast: the rule produces no future occurrence.
	ErrScheduleInPast = errors.New("schedule has no future occurrence")

	// ErrDuplicateJob: a delay-queue job id collided with a pending one.
	// Job ids are freshly generated UUIDs, so this signals an internal
	// invariant violation rather than an expected condition.
	ErrDuplicateJob = errors.New("duplicate delay-queue job id")
)

// ValidationError reports a malformed recurrence rule or payload field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validationf builds a ValidationError for a field.
func Validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
