package app

import (
	"errors"
	"fmt"
)

// ErrBusy is returned when an item already has a change in flight.
var ErrBusy = errors.New("item is already being processed")

// ErrNoOpMove is returned when a move would leave the item where it is.
// It is a cancellation, not a failure.
var ErrNoOpMove = errors.New("item is already in that folder")

// ValidationError is a request rejected locally, before any network call.
type ValidationError struct {
	Op     string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func invalid(op OpKind, format string, args ...any) error {
	return &ValidationError{Op: string(op), Reason: fmt.Sprintf(format, args...)}
}

// AsValidation extracts a ValidationError from err.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
