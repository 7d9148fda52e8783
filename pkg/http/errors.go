package http

import (
	"fmt"
	"net/http"
)

// AppError is an error that knows its HTTP status and machine readable code.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
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

// NewAppError creates a new application error.
func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{Code: code, Field: field, Message: message, Status: status}
}

// WithParam attaches a value the client can use to render the error.
func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]interface{}, 1)
	}
	e.Params[key] = value
	return e
}

// WithError wraps an underlying error. It is never serialized.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func NotFoundError(message string) *AppError {
	return NewAppError("ERR_NOT_FOUND", "", message, http.StatusNotFound)
}

func BadRequestError(message string) *AppError {
	return NewAppError("ERR_BAD_REQUEST", "", message, http.StatusBadRequest)
}

func UnauthorizedError(message string) *AppError {
	return NewAppError("ERR_UNAUTHORIZED", "", message, http.StatusUnauthorized)
}

func ForbiddenError(message string) *AppError {
	return NewAppError("ERR_FORBIDDEN", "", message, http.StatusForbidden)
}

// AccessDeniedError names the minimum tier that unlocks the resource so the
// client can offer an upgrade.
func AccessDeniedError(required string) *AppError {
	msg := fmt.Sprintf("subscription tier '%s' or higher is required", required)
	return NewAppError("ERR_ACCESS_DENIED", "", msg, http.StatusForbidden).
		WithParam("required_tier", required)
}

// PersistenceError reports an unreachable or rejecting store as 503.
func PersistenceError(err error) *AppError {
	return NewAppError("ERR_PERSISTENCE", "", "storage unavailable", http.StatusServiceUnavailable).WithError(err)
}
