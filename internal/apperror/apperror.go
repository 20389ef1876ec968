package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeValidation  ErrorCode = "VALIDATION_ERROR"
	ErrCodeAuth        ErrorCode = "AUTH_ERROR"
	ErrCodePersistence ErrorCode = "PERSISTENCE_ERROR"
	ErrCodeConflict    ErrorCode = "CONFLICT"
	ErrCodeNotFound    ErrorCode = "NOT_FOUND"
	ErrCodeInternal    ErrorCode = "INTERNAL_ERROR"
)

// AppError is the single error shape screens display. Key, when set, is a
// translation key the presentation layer resolves in the active language,
// interpolating Params.
type AppError struct {
	Code       ErrorCode
	Message    string
	Key        string
	Params     map[string]any
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

// Validation reports a local input problem that never reached the gateway.
func Validation(key, message string) *AppError {
	e := New(ErrCodeValidation, message)
	e.Key = key
	return e
}

// Conflict reports an action that is already running or not yet allowed.
func Conflict(key, message string) *AppError {
	e := New(ErrCodeConflict, message)
	e.Key = key
	return e
}

func NotFound(message string) *AppError {
	return New(ErrCodeNotFound, message)
}

// HumanMessage is implemented by errors that carry a message fit for display.
type HumanMessage interface {
	HumanMessage() string
}

// Auth re-raises a gateway failure as a uniform AuthError. The message is the
// gateway's human-readable text when it provides one.
func Auth(err error) *AppError {
	if err == nil {
		return nil
	}
	var existing *AppError
	if errors.As(err, &existing) && existing.Code == ErrCodeAuth {
		return existing
	}
	msg := err.Error()
	var hm HumanMessage
	if errors.As(err, &hm) {
		msg = hm.HumanMessage()
	}
	return Wrap(err, ErrCodeAuth, msg)
}

func Persistence(err error) *AppError {
	return Wrap(err, ErrCodePersistence, "failed to persist preference")
}

// Message returns the display message of err, or fallback when err carries
// none.
func Message(err error, fallback string) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return fallback
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeAuth:
		return http.StatusUnauthorized
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func is(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

func IsValidation(err error) bool { return is(err, ErrCodeValidation) }

func IsAuth(err error) bool { return is(err, ErrCodeAuth) }

func IsConflict(err error) bool { return is(err, ErrCodeConflict) }

func IsNotFound(err error) bool { return is(err, ErrCodeNotFound) }
