package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured application error with HTTP status code.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Storage and state sentinels.
var (
	// ErrDuplicateActive is returned by stores when a write would leave a user
	// with more than one active subscription.
	ErrDuplicateActive = errors.New("user already has an active subscription")
	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("invalid subscription status transition")
)

// Common error constructors.

func ErrNotFound(msg string) *AppError {
	return &AppError{Code: http.StatusNotFound, Message: msg}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: http.StatusUnauthorized, Message: msg}
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: http.StatusForbidden, Message: msg}
}

func ErrBadRequest(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func ErrConflict(msg string, err error) *AppError {
	return &AppError{Code: http.StatusConflict, Message: msg, Err: err}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: http.StatusUnprocessableEntity, Message: msg}
}

func ErrInternal(msg string, err error) *AppError {
	return &AppError{Code: http.StatusInternalServerError, Message: msg, Err: err}
}

// ErrUnavailable marks an upstream dependency (payment gateway) as unusable for this request.
func ErrUnavailable(msg string, err error) *AppError {
	return &AppError{Code: http.StatusServiceUnavailable, Message: msg, Err: err}
}

// AsAppError attempts to extract an AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
