package api

import (
	"errors"
	"fmt"
)

// Reasons a server rejects a request.
var (
	ErrNameCollision      = errors.New("an item with that name already exists")
	ErrNotFound           = errors.New("item not found")
	ErrPermission         = errors.New("permission denied")
	ErrInvalidDestination = errors.New("destination is inside the item being moved")
	ErrUnsupported        = errors.New("operation not supported")
)

// ErrMalformed is returned when a response cannot be decoded.
var ErrMalformed = errors.New("malformed response")

// TransportError means the request did not complete.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: request failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RejectedError is a non-success response with a server-provided reason.
// Err is one of the sentinel reasons when the status or code maps to one.
type RejectedError struct {
	Op     string
	Status int
	Code   string
	Reason string
	Err    error
}

func (e *RejectedError) Error() string {
	msg := e.Reason
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s: rejected (%d): %s", e.Op, e.Status, msg)
	}
	return fmt.Sprintf("%s: rejected: %s", e.Op, msg)
}

func (e *RejectedError) Unwrap() error { return e.Err }

// AsRejected checks if an error is a RejectedError and returns it.
func AsRejected(err error) (*RejectedError, bool) {
	var re *RejectedError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// Reason returns a short user-facing explanation of err.
func Reason(err error) string {
	if re, ok := AsRejected(err); ok {
		if re.Reason != "" {
			return re.Reason
		}
		if re.Err != nil {
			return re.Err.Error()
		}
	}
	var te *TransportError
	if errors.As(err, &te) {
		if errors.Is(te.Err, ErrMalformed) {
			return "the server sent an unreadable response"
		}
		return "the server could not be reached"
	}
	return err.Error()
}
