package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/portfolio-tracker/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUserInput represents user input errors (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryUpstream represents exchange or peer service failures
	CategoryUpstream ErrorCategory = "upstream"
	// CategoryInvalidSymbol represents a trading pair the exchange does not list
	CategoryInvalidSymbol ErrorCategory = "invalid_symbol"
	// CategoryPersistence represents storage failures
	CategoryPersistence ErrorCategory = "persistence"
	// CategoryEmptyValue represents a missing, zero or negative reading
	CategoryEmptyValue ErrorCategory = "empty_value"
	// CategoryConfiguration represents missing startup configuration
	CategoryConfiguration ErrorCategory = "configuration"
	// CategoryValidation represents validation errors
	CategoryValidation ErrorCategory = "validation"
	// CategoryCache represents cache errors
	CategoryCache ErrorCategory = "cache"
)

// Sentinels for errors.Is checks against categorized errors.
var (
	ErrUpstreamUnavailable     = stderrors.New("upstream unavailable")
	ErrInvalidSymbol           = stderrors.New("invalid symbol")
	ErrPersistenceFailure      = stderrors.New("persistence failure")
	ErrEmptyOrNonPositiveValue = stderrors.New("empty or non-positive value")
	ErrConfigurationMissing    = stderrors.New("configuration missing")
)

var categorySentinels = map[ErrorCategory]error{
	CategoryUpstream:      ErrUpstreamUnavailable,
	CategoryInvalidSymbol: ErrInvalidSymbol,
	CategoryPersistence:   ErrPersistenceFailure,
	CategoryEmptyValue:    ErrEmptyOrNonPositiveValue,
	CategoryConfiguration: ErrConfigurationMissing,
}

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

// Is matches the sentinel of the error's category
func (e *CategorizedError) Is(target error) bool {
	sentinel, ok := categorySentinels[e.Category]
	return ok && sentinel == target
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// User Input Errors (4xx)

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewInvalidSymbolError marks a pair the exchange does not list. It is benign
// for trade aggregation and a 400 when a user asked for it directly.
func NewInvalidSymbolError(symbol string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryInvalidSymbol,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_SYMBOL",
		Message:    fmt.Sprintf("invalid symbol: %s", symbol),
		Cause:      cause,
		Details: map[string]interface{}{
			"symbol": symbol,
		},
	}
}

// NewMalformedRecordError rejects an exchange payload that fails validation
func NewMalformedRecordError(kind string, field string, value string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUpstream,
		StatusCode: http.StatusBadGateway,
		Code:       "MALFORMED_RECORD",
		Message:    fmt.Sprintf("malformed %s record: field %s=%q", kind, field, value),
		Details: map[string]interface{}{
			"kind":  kind,
			"field": field,
		},
	}
}

// System Errors (5xx)

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// NewUpstreamUnavailableError wraps a network failure against the exchange or peer service
func NewUpstreamUnavailableError(upstream string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUpstream,
		StatusCode: http.StatusBadGateway,
		Code:       "UPSTREAM_UNAVAILABLE",
		Message:    fmt.Sprintf("upstream unavailable: %s", upstream),
		Cause:      cause,
		Details: map[string]interface{}{
			"upstream": upstream,
		},
	}
}

// NewPersistenceError creates a storage error
func NewPersistenceError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPersistence,
		StatusCode: http.StatusInternalServerError,
		Code:       "PERSISTENCE_FAILURE",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewEmptyValueError reports a reading that should not be recorded
func NewEmptyValueError(source string, value string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryEmptyValue,
		StatusCode: http.StatusOK,
		Code:       "EMPTY_OR_NON_POSITIVE_VALUE",
		Message:    fmt.Sprintf("%s returned empty or non-positive value %s", source, value),
		Details: map[string]interface{}{
			"source": source,
			"value":  value,
		},
	}
}

// NewConfigurationMissingError lists required settings that were not provided
func NewConfigurationMissingError(keys []string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConfiguration,
		StatusCode: http.StatusInternalServerError,
		Code:       "CONFIGURATION_MISSING",
		Message:    fmt.Sprintf("missing required configuration: %s", strings.Join(keys, ", ")),
		Details: map[string]interface{}{
			"missing": keys,
		},
	}
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCache,
		StatusCode: http.StatusInternalServerError,
		Code:       "CACHE_ERROR",
		Message:    fmt.Sprintf("cache error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewServiceUnavailableError creates a service unavailable error
func NewServiceUnavailableError(service string) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusServiceUnavailable,
		Code:       "SERVICE_UNAVAILABLE",
		Message:    fmt.Sprintf("service unavailable: %s", service),
		Details: map[string]interface{}{
			"service": service,
		},
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if stderrors.As(err, &svcErr) {
		return &CategorizedError{
			Category:   CategorySystem,
			StatusCode: http.StatusInternalServerError,
			Code:       svcErr.Code,
			Message:    svcErr.Message,
			Details:    svcErr.Details,
		}
	}

	return NewInternalError("unexpected error", err)
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsInvalidSymbol reports whether err means the pair is not listed
func IsInvalidSymbol(err error) bool {
	return stderrors.Is(err, ErrInvalidSymbol)
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryUpstream, CategoryPersistence, CategoryCache:
		return catErr.Code != "MALFORMED_RECORD"
	case CategorySystem:
		return catErr.StatusCode == http.StatusServiceUnavailable ||
			catErr.StatusCode == http.StatusGatewayTimeout
	default:
		return false
	}
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}
