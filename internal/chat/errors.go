package chat

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a failed chat operation.
type ErrorCode string

// Error codes.
const (
	ErrorUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrorNotFound     ErrorCode = "NOT_FOUND"
	ErrorValidation   ErrorCode = "VALIDATION"
	ErrorDownstream   ErrorCode = "DOWNSTREAM"
)

// Error is returned by Service operations that fail before any effect is persisted.
// NOT_FOUND covers both missing and inaccessible resources.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("chat: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("chat: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches another *Error by code, so errors.Is(err, ErrNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t == nil || e == nil {
		return false
	}
	return t.Code == e.Code && t.Reason == ""
}

// Sentinels for errors.Is.
var (
	ErrUnauthorized = &Error{Code: ErrorUnauthorized}
	ErrNotFound     = &Error{Code: ErrorNotFound}
	ErrValidation   = &Error{Code: ErrorValidation}
	ErrDownstream   = &Error{Code: ErrorDownstream}
)

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// CodeOf returns the code of a chat error, or "" for anything else.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
