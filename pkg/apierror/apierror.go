// Package apierror provides standardized API error handling.
// Client-facing bodies carry a short localized message under "error";
// the wrapped internal error is never serialized.
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Code represents an error code.
type Code string

// Standard error codes.
const (
	CodeBadRequest         Code = "BAD_REQUEST"
	CodeValidationFailed   Code = "VALIDATION_FAILED"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeForbidden          Code = "FORBIDDEN"
	CodePaymentRequired    Code = "PAYMENT_REQUIRED"
	CodeRateLimitExceeded  Code = "RATE_LIMIT_EXCEEDED"
	CodeConfigurationError Code = "CONFIGURATION_ERROR"
	CodeUpstreamError      Code = "UPSTREAM_ERROR"
	CodeInternalError      Code = "INTERNAL_ERROR"
)

// Localized messages surfaced to the client.
const (
	MsgInternal      = "Erro interno do servidor"
	MsgNotConfigured = "Sistema não configurado"
)

// Error represents a standardized API error.
type Error struct {
	// HTTP status code
	Status int `json:"-"`

	// Machine-readable error code
	Code Code `json:"code"`

	// Human-readable error message
	Message string `json:"error"`

	// Additional error details (optional)
	Details any `json:"details,omitempty"`

	// RetryAfter, when positive, is sent as a Retry-After header in seconds.
	RetryAfter int `json:"-"`

	// Internal error (not exposed to client)
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Response represents the error response structure.
type Response struct {
	Error     string `json:"error"`
	Code      Code   `json:"code,omitempty"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ToResponse converts the error to a response structure.
func (e *Error) ToResponse() Response {
	return Response{
		Error:   e.Message,
		Code:    e.Code,
		Details: e.Details,
	}
}

// WriteJSON writes the error as JSON to the response writer.
func (e *Error) WriteJSON(w http.ResponseWriter) {
	e.writeHeaders(w)
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(e.ToResponse())
}

// WriteJSONWithRequestID writes the error as JSON with request ID.
func (e *Error) WriteJSONWithRequestID(w http.ResponseWriter, requestID string) {
	e.writeHeaders(w)
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}
	w.WriteHeader(e.Status)
	resp := e.ToResponse()
	resp.RequestID = requestID
	_ = json.NewEncoder(w).Encode(resp)
}

func (e *Error) writeHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	if e.RetryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", e.RetryAfter))
	}
}

// New creates a new API error.
func New(status int, code Code, message string) *Error {
	return &Error{
		Status:  status,
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with API error context.
func Wrap(err error, status int, code Code, message string) *Error {
	return &Error{
		Status:  status,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails adds details to the error.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// WithError adds an internal error.
func (e *Error) WithError(err error) *Error {
	e.Err = err
	return e
}

// WithRetryAfter sets the Retry-After hint in seconds.
func (e *Error) WithRetryAfter(seconds int) *Error {
	e.RetryAfter = seconds
	return e
}

// Pre-defined error constructors

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, CodeBadRequest, message)
}

// ValidationFailed creates a 400 error for input that broke a field constraint.
// Input constraints are not security sensitive, so the message is kept as-is.
func ValidationFailed(message string, details any) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Code:    CodeValidationFailed,
		Message: message,
		Details: details,
	}
}

// Unauthorized creates a 401 Unauthorized error.
func Unauthorized(message string) *Error {
	if message == "" {
		message = "Autenticação necessária"
	}
	return New(http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden creates a 403 Forbidden error.
func Forbidden(message string) *Error {
	if message == "" {
		message = "Acesso negado"
	}
	return New(http.StatusForbidden, CodeForbidden, message)
}

// PaymentRequired creates a 402 error.
func PaymentRequired(message string) *Error {
	return New(http.StatusPaymentRequired, CodePaymentRequired, message)
}

// TooManyRequests creates a 429 error with a custom message.
func TooManyRequests(message string) *Error {
	return New(http.StatusTooManyRequests, CodeRateLimitExceeded, message)
}

// NotConfigured creates a 500 error for missing server-side configuration.
// The missing setting belongs in err and is only logged.
func NotConfigured(err error) *Error {
	return Wrap(err, http.StatusInternalServerError, CodeConfigurationError, MsgNotConfigured)
}

// Upstream creates a 500 error for a failed dependency call.
func Upstream(err error) *Error {
	return Wrap(err, http.StatusInternalServerError, CodeUpstreamError, MsgInternal)
}

// InternalError creates a 500 Internal Server Error.
func InternalError(err error) *Error {
	return Wrap(err, http.StatusInternalServerError, CodeInternalError, MsgInternal)
}

// Helper functions

// IsAPIError checks if an error is an API error.
func IsAPIError(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr)
}

// FromError converts any error to an API error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	return InternalError(err)
}
