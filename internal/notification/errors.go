package notification

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no non-deleted notification exists
	// for the requested id. Soft-deleted rows are indistinguishable
	// from missing ones on every read path.
	ErrNotFound = errors.New("notification not found")

	// ErrAlreadyOpened is returned when MarkAsOpened is called on a
	// notification that is already OPENED. The transition is
	// deliberately not idempotent so callers can detect double opens.
	ErrAlreadyOpened = errors.New("notification already opened")

	// ErrVersionConflict is returned by stores when a save carries a
	// stale version. The service retries internally; it never reaches
	// API callers.
	ErrVersionConflict = errors.New("notification version conflict")
)

// ValidationError reports malformed caller input. Always caller-fixable,
// never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
