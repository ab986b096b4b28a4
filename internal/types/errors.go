package types

import "fmt"

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Repositories and services MUST use these constants
// instead of hardcoded strings.
const (
	// Validation
	ErrCodeValidationRegionCode   ErrorCode = "validation_invalid_region_code"
	ErrCodeValidationDateRange    ErrorCode = "validation_invalid_date_range"
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"

	// Not Found
	ErrCodeNotFoundRegion      ErrorCode = "not_found_region"
	ErrCodeNotFoundObservation ErrorCode = "not_found_observation"
	ErrCodeNotFoundPredictor   ErrorCode = "not_found_predictor"

	// Conflict
	ErrCodeConflictObservation ErrorCode = "conflict_observation_exists"
	ErrCodeConflictPredictor   ErrorCode = "conflict_predictor_exists"

	// Internal / Upstream
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalForecast   ErrorCode = "internal_forecast_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamQueue      ErrorCode = "upstream_queue_unavailable"
	ErrCodeUpstreamMetrics    ErrorCode = "upstream_metrics_unavailable"
)

// AppError is the standard application error type. All domain and worker
// errors are expressed as AppError to enable consistent formatting and error
// chain support.
//
// Soft outcomes -- insufficient training history, an entity deleted between
// enqueue and execution -- are deliberately NOT AppErrors; they surface as nil
// results so callers treat them as "not ready" rather than failures.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
