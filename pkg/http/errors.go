package http

import (
	"fmt"
	"net/http"
)

// Error codes carried in AppError.Code.
const (
	CodeNotFound     = "ERR_NOT_FOUND"
	CodeBadRequest   = "ERR_BAD_REQUEST"
	CodeInvalidModel = "ERR_INVALID_MODEL"
	CodeRateLimited  = "ERR_RATE_LIMITED"
	CodeTimeout      = "ERR_TIMEOUT"
	CodeUnavailable  = "ERR_UNAVAILABLE"
	CodeInternal     = "ERR_INTERNAL"
)

// AppError is an API error with the HTTP status it maps to.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// NewAppError creates a new application error.
func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Field: field, Status: status}
}

// WithError attaches the cause. It is logged, never serialized.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func NotFoundError(message string) *AppError {
	return NewAppError(CodeNotFound, "", message, http.StatusNotFound)
}

func NotFoundErrorf(format string, a ...interface{}) *AppError {
	return NotFoundError(fmt.Sprintf(format, a...))
}

func BadRequestError(message string) *AppError {
	return NewAppError(CodeBadRequest, "", message, http.StatusBadRequest)
}

// InvalidModelError rejects a model definition that cannot be evaluated.
func InvalidModelError(message string) *AppError {
	return NewAppError(CodeInvalidModel, "model", message, http.StatusBadRequest)
}

func RateLimitedError() *AppError {
	return NewAppError(CodeRateLimited, "", "too many requests", http.StatusTooManyRequests)
}

func TimeoutError(message string) *AppError {
	return NewAppError(CodeTimeout, "", message, http.StatusGatewayTimeout)
}

// UnavailableError reports an upstream that is failing fast, e.g. behind an open breaker.
func UnavailableError(message string) *AppError {
	return NewAppError(CodeUnavailable, "", message, http.StatusServiceUnavailable)
}

func InternalError(message string) *AppError {
	return NewAppError(CodeInternal, "", message, http.StatusInternalServerError)
}
