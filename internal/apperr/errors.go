// Package apperr holds the failure kinds raised by the domain services.
// Handlers map a Kind to a transport status; services never pick one.
package apperr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a domain failure.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindValidation
	KindAuthorization
	KindCredential
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindCredential:
		return "credential"
	default:
		return "internal"
	}
}

// FieldError points a validation failure at a single input field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// Error is a typed domain failure.
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound reports a missing entity, e.g. NotFound("slot", id).
func NotFound(entity, id string) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found with id: %s", entity, id)}
}

// NotFoundf is NotFound with a free-form message.
func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Validation(msg string, fields ...FieldError) error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

// Field is shorthand for a single-field validation failure.
func Field(field, msg string) error {
	return &Error{Kind: KindValidation, Message: msg, Fields: []FieldError{{Field: field, Error: msg}}}
}

func Unauthorized(msg string) error {
	return &Error{Kind: KindAuthorization, Message: msg}
}

// CredentialMessage is the only text a credential failure ever carries.
const CredentialMessage = "invalid or expired OTP"

// Credential reports an unusable one-time code. The cause is kept for logs
// but never rendered.
func Credential(cause error) error {
	return &Error{Kind: KindCredential, Message: CredentialMessage, Err: cause}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// FieldsOf returns the field errors attached to err, if any.
func FieldsOf(err error) []FieldError {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}
