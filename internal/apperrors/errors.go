// Package apperrors holds the error kinds shared by the auth core, the
// services and the transports. Callers match them with errors.Is.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidToken is returned by token verification. The authentication
	// gate swallows it; it never reaches a caller.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUnauthorized is a guard rejection.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound means a referenced user or message does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a username is already taken.
	ErrConflict = errors.New("conflict")
	// ErrInvalidInput is returned for malformed caller input.
	ErrInvalidInput = errors.New("invalid input")
)

// AppError is an error with a caller-facing message and HTTP status.
type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error for the given resource.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("No such %s: %s", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// Conflict creates a 409 error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// Unauthorized creates a 401 error. Guards always use the same message so
// that a rejection never tells the caller why it was rejected.
func Unauthorized() *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: "Unauthorized",
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// InvalidCredentials creates a 401 error for a failed login.
func InvalidCredentials() *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: "Invalid credentials",
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// HTTPStatus returns the HTTP status code for err.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the caller-facing text for err. Internal errors are
// reduced to a generic message.
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	switch HTTPStatus(err) {
	case http.StatusNotFound:
		return "Not found"
	case http.StatusConflict:
		return "Conflict"
	case http.StatusBadRequest:
		return "Bad request"
	case http.StatusUnauthorized:
		return "Unauthorized"
	default:
		return "Internal server error"
	}
}
