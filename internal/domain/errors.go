package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies failures of the export pipeline.
type Kind int

const (
	KindUnexpected Kind = iota
	KindMethodNotAllowed
	KindParse
	KindValidation
	KindConfig
	KindStorage
	KindSigning
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindMethodNotAllowed:
		return "method_not_allowed"
	case KindParse:
		return "parse_error"
	case KindValidation:
		return "validation_error"
	case KindConfig:
		return "config_error"
	case KindStorage:
		return "storage_error"
	case KindSigning:
		return "signing_error"
	case KindTimeout:
		return "timeout"
	default:
		return "unexpected_error"
	}
}

// Error is a classified failure. Message is what the client sees.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Status maps the kind onto an HTTP status: 400 for client input, 405 for a
// wrong verb, 500 for everything on the server or storage side.
func (e *Error) Status() int {
	switch e.Kind {
	case KindParse, KindValidation:
		return http.StatusBadRequest
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// New creates an Error without a cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a kind and client message to err.
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

var (
	ErrMethodNotAllowed = New(KindMethodNotAllowed, "Method not allowed")
	ErrMissingFields    = New(KindValidation, "Missing member_code or selected[]")
	ErrInvalidJSON      = New(KindParse, "Invalid JSON body")
)

// FromError normalises any error into an *Error; unknown errors become
// KindUnexpected carrying their own message.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, KindUnexpected, err.Error())
}

// KindOf returns the kind of err, KindUnexpected for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}
