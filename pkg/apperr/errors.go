package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies every failure the relay can surface
type Kind int

const (
	// Internal is any unexpected failure while routing a request
	Internal Kind = iota
	// InvalidPayload means the inbound body could not be decoded
	InvalidPayload
	// SignatureInvalid means the Slack signature was bad, missing or stale
	SignatureInvalid
	// BackendUnavailable means the AI backend call failed, timed out or is not configured
	BackendUnavailable
	// DeliveryFailure means posting back to Slack failed
	DeliveryFailure
)

func (k Kind) String() string {
	switch k {
	case InvalidPayload:
		return "invalid_payload"
	case SignatureInvalid:
		return "signature_invalid"
	case BackendUnavailable:
		return "backend_unavailable"
	case DeliveryFailure:
		return "delivery_failure"
	default:
		return "internal_error"
	}
}

// StatusCode translates a kind into the HTTP status returned to Slack.
// BackendUnavailable and DeliveryFailure are recovered before a response is
// written, so they map to 200 if they ever reach the boundary.
func (k Kind) StatusCode() int {
	switch k {
	case InvalidPayload, SignatureInvalid:
		return http.StatusBadRequest
	case BackendUnavailable, DeliveryFailure:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a Kind alongside a public message and the underlying cause
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New returns an *Error of the given kind
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain, or Internal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
