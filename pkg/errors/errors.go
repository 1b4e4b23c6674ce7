package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors by code so clones and wraps compare equal to the predefined values.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound        = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden       = New("NOT_AUTHORIZED", http.StatusForbidden, "not authorized")
	ErrUnauthorized    = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrValidation      = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal        = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss       = New("CACHE_MISS", http.StatusNotFound, "cache miss")
	ErrNotAvailable    = New("NOT_AVAILABLE", http.StatusConflict, "teacher is not available at the requested time")
	ErrAlreadyBooked   = New("ALREADY_BOOKED", http.StatusConflict, "requested time overlaps an existing lesson")
	ErrSlotTaken       = New("SLOT_TAKEN", http.StatusConflict, "requested time was taken by a concurrent booking")
	ErrOutOfWindow     = New("OUT_OF_BOOKING_WINDOW", http.StatusUnprocessableEntity, "requested time is outside the booking window")
	ErrVersionConflict = New("VERSION_CONFLICT", http.StatusConflict, "lesson was modified concurrently, reload and retry")
	ErrTransientStore  = New("TRANSIENT_STORE_ERROR", http.StatusServiceUnavailable, "storage temporarily unavailable")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Internal wraps err as an INTERNAL_ERROR unless it already carries a typed error.
func Internal(err error, message string) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, message)
}

// IsRetryable reports whether the error is safe to retry with the same input.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientStore)
}

// HasCode reports whether err is a typed error carrying code.
func HasCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
