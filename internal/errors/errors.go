// Package errors provides categorized domain errors with stable codes and
// HTTP status mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/buggu-git/taiwan-tools/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryValidation represents malformed or duplicate input rows (4xx)
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound represents lookup misses
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents uniqueness and lifecycle conflicts
	CategoryConflict ErrorCategory = "conflict"
	// CategoryDatabase represents storage-transport failures
	CategoryDatabase ErrorCategory = "database"
	// CategorySystem represents everything else (5xx)
	CategorySystem ErrorCategory = "system"
)

// Stable error codes surfaced to callers.
const (
	CodeDuplicateKey    = "DUPLICATE_KEY"
	CodeNotFound        = "NOT_FOUND"
	CodeValidationError = "VALIDATION_ERROR"
	CodeAlreadyIngested = "ALREADY_INGESTED"
	CodeAlreadyFinished = "ALREADY_FINISHED"
	CodeDatabaseError   = "DATABASE_ERROR"
	CodeInternalError   = "INTERNAL_ERROR"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError payload
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewDuplicateKeyError reports an attempt to register an already-registered key.
func NewDuplicateKeyError(resource, key string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       CodeDuplicateKey,
		Message:    fmt.Sprintf("%s already exists: %s", resource, key),
		Details: map[string]interface{}{
			"resource": resource,
			"key":      key,
		},
	}
}

// NewNotFoundError reports a lookup miss.
func NewNotFoundError(resource, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewValidationError reports a malformed ingestion batch or request.
func NewValidationError(message string, details map[string]interface{}) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeValidationError,
		Message:    message,
		Details:    details,
	}
}

// NewDuplicateSecurityError reports a duplicate security identifier within one
// ingestion batch, naming the offending identifier.
func NewDuplicateSecurityError(securityID string) *CategorizedError {
	return NewValidationError(
		fmt.Sprintf("duplicate security identifier in batch: %s", securityID),
		map[string]interface{}{"securityId": securityID},
	)
}

// NewAlreadyIngestedError reports a re-ingestion without the force flag.
func NewAlreadyIngestedError(etfSymbol string, tradeDate time.Time) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       CodeAlreadyIngested,
		Message: fmt.Sprintf("snapshot already ingested for %s on %s",
			etfSymbol, tradeDate.Format(types.DateFormat)),
		Details: map[string]interface{}{
			"etfSymbol": etfSymbol,
			"tradeDate": tradeDate.Format(types.DateFormat),
		},
	}
}

// NewAlreadyFinishedError reports a double-finish of a scrape run.
func NewAlreadyFinishedError(runID string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       CodeAlreadyFinished,
		Message:    fmt.Sprintf("scrape run already finished: %s", runID),
		Details: map[string]interface{}{
			"runId": runID,
		},
	}
}

// NewDatabaseError wraps a storage-transport failure. These are propagated,
// never silently retried; retry policy belongs to the caller.
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeDatabaseError,
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternalError,
		Message:    message,
		Cause:      cause,
	}
}

// Categorize coerces an arbitrary error into a CategorizedError.
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}

	return NewInternalError("unexpected error", err)
}

// HasCode reports whether err carries the given stable code.
func HasCode(err error, code string) bool {
	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Code == code
	}
	return false
}

// IsNotFound reports whether err is a lookup miss.
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// IsConflict reports whether err is a uniqueness or lifecycle conflict.
func IsConflict(err error) bool {
	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category == CategoryConflict
	}
	return false
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}
