package entities

import (
	"errors"
	"fmt"
)

// Error kinds
var (
	ErrValidation = errors.New("validation failed")
	ErrPermission = errors.New("permission denied")
	ErrNotFound   = errors.New("not found")
	ErrStore      = errors.New("store operation failed")

	// ErrUnauthenticated covers bad credentials and invalid session tokens.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Error carries one of the kinds above. Field is set for validation errors.
type Error struct {
	Kind  error
	Field string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Msg != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Is matches the kind, so errors.Is(err, ErrPermission) works on wrapped errors.
func (e *Error) Is(target error) bool { return e.Kind == target }

func (e *Error) Unwrap() error { return e.Err }

// ValidationError reports a missing or malformed field.
func ValidationError(field, msg string) error {
	return &Error{Kind: ErrValidation, Field: field, Msg: msg}
}

func Permissionf(format string, args ...any) error {
	return &Error{Kind: ErrPermission, Msg: fmt.Sprintf(format, args...)}
}

func Unauthenticatedf(format string, args ...any) error {
	return &Error{Kind: ErrUnauthenticated, Msg: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Msg: fmt.Sprintf(format, args...)}
}

// StoreError wraps a failed store call. The cause stays reachable through
// errors.Is / errors.As.
func StoreError(op string, err error) error {
	return &Error{Kind: ErrStore, Msg: op, Err: err}
}

// FieldOf returns the offending field of a validation error, if any.
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}
