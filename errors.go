package telemd

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidArgument is returned when a required input is missing, empty
	// or malformed.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidState is returned when an operation is attempted before Init,
	// or when there is nothing to report yet.
	ErrInvalidState = errors.New("invalid state")

	// ErrNoMemory is returned when a buffer cannot be allocated during Init.
	ErrNoMemory = errors.New("cannot allocate memory")

	// ErrTimeout is returned when a bounded wait expires.
	ErrTimeout = errors.New("timeout")

	// ErrTransport is returned for network or transport failures other than
	// timeouts.
	ErrTransport = errors.New("transport error")

	// ErrNotSupported is returned for an unrecognized request variant.
	ErrNotSupported = errors.New("not supported")

	// ErrNotConnected is returned by link queries made while the link is down.
	ErrNotConnected = errors.New("not connected")
)

// An ApplicationError represents a well-formed HTTP response with a status
// outside the 2xx range.
type ApplicationError struct {
	Status int
	Body   string
}

func (e *ApplicationError) Error() string {
	v := fmt.Sprintf("unexpected response: %v - %v", e.Status, http.StatusText(e.Status))
	if e.Body != "" {
		v += fmt.Sprintf(" (%v)", e.Body)
	}
	return v
}

// An InvalidArgumentError represents an invalid value passed to a command line
// argument.
type InvalidArgumentError struct {
	Flag, Value string
}

func (e InvalidArgumentError) Error() string {
	if e.Value == "" {
		return "missing value for argument '--" + e.Flag + "'"
	}
	return "invalid value '" + e.Value + "' for argument '" + e.Flag + "'"
}

// Unwrap lets errors.Is match an InvalidArgumentError against
// ErrInvalidArgument.
func (e InvalidArgumentError) Unwrap() error {
	return ErrInvalidArgument
}
