package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNotFound is returned when the requested marker does not exist in the
// remote store. Views render it as a distinct "not found" state.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned when a marker fails validation, either locally
// (see ValidationError) or because the remote store rejected the payload.
// Local validation errors never reach the network.
var ErrValidation = errors.New("validation error")

// ErrTransport is returned when a request to the remote store could not be
// completed at all: connection failures, timeouts, truncated bodies.
var ErrTransport = errors.New("transport error")

// ErrServer is returned when the remote store was reachable but answered with
// a non-2xx status that is neither a not-found nor a payload rejection.
var ErrServer = errors.New("server error")

// FieldError is a single field-scoped validation failure.
// Field uses the wire path of the offending value, e.g. "coordinate.latitude"
// or "subscribedEmails[2]".
type FieldError struct {
	Field   string
	Message string
}

// ValidationError collects every field-scoped failure found in one draft.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation error: " + strings.Join(parts, "; ")
}

// Unwrap lets callers test for ErrValidation with errors.Is.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Field returns the first message recorded for field, or "" when the field is valid.
func (e *ValidationError) Field(field string) string {
	for _, f := range e.Fields {
		if f.Field == field {
			return f.Message
		}
	}
	return ""
}

// ServerError is a non-2xx reply from the remote store.
// Message holds the server-supplied text and may be empty.
type ServerError struct {
	Op      string
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
}

// Unwrap classifies the status: 404 is ErrNotFound, 400 and 422 mean the store
// rejected the payload (ErrValidation), everything else is ErrServer.
func (e *ServerError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrValidation
	default:
		return ErrServer
	}
}

// TransportError wraps the underlying I/O failure of a remote call.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes both ErrTransport and the cause, so errors.Is works for
// context.DeadlineExceeded as well as for the transport kind.
func (e *TransportError) Unwrap() []error { return []error{ErrTransport, e.Err} }

// UserMessage returns the text to show a user for err: the server-supplied
// message when there is one, otherwise fallback.
func UserMessage(err error, fallback string) string {
	var se *ServerError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return fallback
}
