package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeEncoding     ErrorType = "encoding"
	ErrorTypeBackend      ErrorType = "backend"
	ErrorTypeAggregation  ErrorType = "aggregation"
	ErrorTypeInvalidState ErrorType = "invalid_state"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeRateLimited  ErrorType = "rate_limited"
	ErrorTypeUnavailable  ErrorType = "unavailable"
	ErrorTypeInternal     ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	Facet      string    `json:"facet,omitempty"`
	StatusCode int       `json:"status_code"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewEncodingError reports a file that could not be read or encoded for display
func NewEncodingError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeEncoding,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Cause:      cause,
	}
}

// NewBackendError reports a failed call to one analysis facet: transport
// failure, non-success status, or an unparseable body.
func NewBackendError(facet, message string, upstreamStatus int, cause error) *AppError {
	details := ""
	if upstreamStatus != 0 {
		details = fmt.Sprintf("upstream status %d", upstreamStatus)
	}
	return &AppError{
		Type:       ErrorTypeBackend,
		Message:    message,
		Details:    details,
		Facet:      facet,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

// NewAggregationError collapses the failed facet calls of one submission.
// Returns nil when failures is empty.
func NewAggregationError(failures ...error) *AppError {
	var causes []error
	var facets []string
	for _, err := range failures {
		if err == nil {
			continue
		}
		causes = append(causes, err)
		var appErr *AppError
		if stderrors.As(err, &appErr) && appErr.Facet != "" {
			facets = append(facets, appErr.Facet)
		}
	}
	if len(causes) == 0 {
		return nil
	}

	message := "analysis failed"
	if len(facets) > 0 {
		message = fmt.Sprintf("analysis failed for %s", strings.Join(facets, ", "))
	}
	return &AppError{
		Type:       ErrorTypeAggregation,
		Message:    message,
		Details:    fmt.Sprintf("%d of 3 facet calls failed", len(causes)),
		StatusCode: http.StatusBadGateway,
		Cause:      stderrors.Join(causes...),
	}
}

// NewInvalidStateError reports an operation that is not valid in the current state
func NewInvalidStateError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInvalidState,
		Message:    message,
		StatusCode: http.StatusConflict,
		Cause:      cause,
	}
}

// NewRateLimitedError creates a new rate limit error
func NewRateLimitedError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeRateLimited,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
	}
}

// NewUnavailableError reports a feature that is not configured
func NewUnavailableError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeUnavailable,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Cause:      cause,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
		Cause:      cause,
	}
}

// IsType checks if the error, or any error it wraps, is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// UserMessage renders an error for display on the dashboard
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return err.Error()
	}
	if appErr.Details != "" {
		return fmt.Sprintf("%s (%s)", appErr.Message, appErr.Details)
	}
	return appErr.Message
}
