package relay

import (
	"fmt"
	"net/http"
)

// Kind classifies why a webhook could not be relayed.
type Kind string

const (
	KindMalformedRequest   Kind = "MalformedRequest"
	KindInvalidPayload     Kind = "InvalidPayload"
	KindConfigurationError Kind = "ConfigurationError"
	KindDeliveryError      Kind = "DeliveryError"
	KindUnexpectedError    Kind = "UnexpectedError"
)

// Error is a terminal relay failure. Status is the HTTP status sent back to the caller.
type Error struct {
	Kind   Kind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Status: defaultStatus(kind), Err: err}
}

func defaultStatus(kind Kind) int {
	if kind == KindInvalidPayload {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Plain-text response bodies.
const (
	bodySent          = "Telegram notification sent"
	bodyNotHandled    = "Notification type not handled"
	bodyInvalid       = "Invalid payload"
	bodyConfiguration = "Telegram configuration error"
	bodyDelivery      = "Error sending Telegram notification"
	bodyProcessing    = "Error processing webhook"
)

func (e *Error) body() string {
	switch e.Kind {
	case KindInvalidPayload:
		return bodyInvalid
	case KindConfigurationError:
		return bodyConfiguration
	case KindDeliveryError:
		return bodyDelivery
	default:
		return bodyProcessing
	}
}
