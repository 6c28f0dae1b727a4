package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the pipeline error taxonomy.
var (
	// ErrSourceUnavailable indicates one source adapter's query failed
	// (network, auth, quota). Recovered locally as zero results.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrAllSourcesFailed indicates every source adapter failed. The run
	// still proceeds with an empty collection.
	ErrAllSourcesFailed = errors.New("all sources failed")

	// ErrOracleMalformed indicates the scoring oracle returned unparsable
	// or schema-violating data.
	ErrOracleMalformed = errors.New("oracle response malformed")

	// ErrConfigurationInvalid indicates a run configuration that fails
	// validation. Fatal before the run starts.
	ErrConfigurationInvalid = errors.New("configuration invalid")

	// ErrReportGeneration indicates one report kind failed to generate.
	ErrReportGeneration = errors.New("report generation failed")

	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited indicates that a request was rate limited.
	ErrRateLimited = errors.New("rate limited")

	// ErrCancelled indicates that an operation was cancelled.
	ErrCancelled = errors.New("cancelled")
)

// ValidationError represents a validation error for a specific field.
// It unwraps to ErrConfigurationInvalid so callers can classify it.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrConfigurationInvalid
}

// SourceError provides details about a failed source adapter call.
type SourceError struct {
	Source SourceType
	Reason string
	Cause  error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("source %s unavailable: %s: %v", e.Source, e.Reason, e.Cause)
	}
	return fmt.Sprintf("source %s unavailable: %s", e.Source, e.Reason)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *SourceError) Unwrap() error {
	return ErrSourceUnavailable
}

// OracleError provides details about a malformed oracle response entry.
type OracleError struct {
	Title  string
	Reason string
}

// Error implements the error interface.
func (e *OracleError) Error() string {
	if e.Title != "" {
		return fmt.Sprintf("oracle evaluation for %q malformed: %s", e.Title, e.Reason)
	}
	return fmt.Sprintf("oracle response malformed: %s", e.Reason)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *OracleError) Unwrap() error {
	return ErrOracleMalformed
}

// ReportError provides details about a failed report generation.
type ReportError struct {
	Kind  ReportKind
	Cause error
}

// Error implements the error interface.
func (e *ReportError) Error() string {
	return fmt.Sprintf("%s report generation failed: %v", e.Kind, e.Cause)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ReportError) Unwrap() error {
	return ErrReportGeneration
}

// RateLimitError provides details about a rate limit error.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s: retry after %s", e.Source, e.RetryAfter)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// ExternalAPIError provides details about an external API error.
type ExternalAPIError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ExternalAPIError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewSourceError creates a new SourceError.
func NewSourceError(source SourceType, reason string, cause error) *SourceError {
	return &SourceError{
		Source: source,
		Reason: reason,
		Cause:  cause,
	}
}

// NewOracleError creates a new OracleError.
func NewOracleError(title, reason string) *OracleError {
	return &OracleError{
		Title:  title,
		Reason: reason,
	}
}

// NewReportError creates a new ReportError.
func NewReportError(kind ReportKind, cause error) *ReportError {
	return &ReportError{
		Kind:  kind,
		Cause: cause,
	}
}

// NewRateLimitError creates a new RateLimitError.
func NewRateLimitError(source string, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{
		Source:     source,
		RetryAfter: retryAfter,
	}
}

// NewExternalAPIError creates a new ExternalAPIError.
func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{
		Source:     source,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}
