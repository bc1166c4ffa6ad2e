package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error types.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrBadRequest         = errors.New("bad request")
	ErrConflict           = errors.New("resource conflict")
	ErrUnavailable        = errors.New("service unavailable")
	ErrInsufficientCredit = errors.New("insufficient credit")
)

// AppError represents an application error with HTTP status and error code.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error constructors.

// NotFound creates a not found error.
func NotFound(resource string) *AppError {
	return &AppError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
		Err:        ErrNotFound,
	}
}

// BadRequest creates a bad request error.
func BadRequest(message string) *AppError {
	return &AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        ErrBadRequest,
	}
}

// InvalidAmount creates an error for a non-positive credit amount.
func InvalidAmount(message string) *AppError {
	return &AppError{
		Code:       "INVALID_AMOUNT",
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        ErrBadRequest,
	}
}

// InsufficientCredit creates an error for a balance below the requested debit.
func InsufficientCredit() *AppError {
	return &AppError{
		Code:       "INSUFFICIENT_CREDIT",
		Message:    "Upgrade your plan or get more credits.",
		StatusCode: http.StatusPaymentRequired,
		Err:        ErrInsufficientCredit,
	}
}

// NoActivePlan creates an error for a feature check without an assigned plan.
func NoActivePlan(message string) *AppError {
	if message == "" {
		message = "No active plan found. Upgrade your plan or get more credits."
	}
	return &AppError{
		Code:       "NO_ACTIVE_PLAN",
		Message:    message,
		StatusCode: http.StatusForbidden,
		Err:        ErrForbidden,
	}
}

// FeatureNotAllowed creates an error for a feature outside the plan's limits.
func FeatureNotAllowed(message string) *AppError {
	if message == "" {
		message = "your plan does not include this feature"
	}
	return &AppError{
		Code:       "FEATURE_NOT_ALLOWED",
		Message:    message,
		StatusCode: http.StatusForbidden,
		Err:        ErrForbidden,
	}
}

// ServiceUnavailable creates an error for a dependency that is
// temporarily unreachable or shedding load.
func ServiceUnavailable(message string) *AppError {
	if message == "" {
		message = "service temporarily unavailable"
	}
	return &AppError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Err:        ErrUnavailable,
	}
}

// GetStatusCode returns the appropriate HTTP status code for an error.
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrInsufficientCredit):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}
