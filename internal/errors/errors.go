// Package errors provides structured error types for the schooldata core.
// Every error carries a category, code, message, and retryable flag so the
// backends can be compared and reported uniformly.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory classifies errors by subsystem.
type ErrorCategory string

const (
	ErrCategoryValidation   ErrorCategory = "VALIDATION"
	ErrCategoryEngine       ErrorCategory = "ENGINE"
	ErrCategoryAvailability ErrorCategory = "AVAILABILITY"
	ErrCategoryRemote       ErrorCategory = "REMOTE"
	ErrCategoryQuery        ErrorCategory = "QUERY"
	ErrCategoryInternal     ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidEntity    = "INVALID_ENTITY"
	CodeInvalidYear      = "INVALID_YEAR"
	CodeInvalidDimension = "INVALID_DIMENSION"

	// Engine codes
	CodeInitFailed     = "INIT_FAILED"
	CodeConnectionLost = "CONNECTION_LOST"

	// Availability codes
	CodeYearUnavailable = "YEAR_UNAVAILABLE"

	// Remote codes
	CodeTransport = "TRANSPORT"
	CodeNotFound  = "NOT_FOUND"

	// Query codes
	CodeQueryFailed = "FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Detail keys attached to errors.
const (
	DetailEntity  = "entity"
	DetailYear    = "year"
	DetailBackend = "backend"
)

// Error is the structured error type used throughout the core.
type Error struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new Error.
func New(category ErrorCategory, code, message string) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with the details merged in.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	cp := *e
	cp.Details = make(map[string]interface{}, len(e.Details)+len(details))
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	for k, v := range details {
		cp.Details[k] = v
	}
	return &cp
}

// Detail returns a string detail, or "" when unset.
func (e *Error) Detail(key string) string {
	if v, ok := e.Details[key]; ok {
		return fmt.Sprint(v)
	}
	return ""
}

// Scope returns the standard entity/year/backend detail set.
func Scope(entity, year, backend string) map[string]interface{} {
	d := map[string]interface{}{DetailEntity: entity, DetailBackend: backend}
	if year != "" {
		d[DetailYear] = year
	}
	return d
}

// YearAvailabilityError reports that the requested school year has no data
// partition for the entity. It is its own type so callers can extract the
// available years with errors.As.
type YearAvailabilityError struct {
	RequestedYear  string
	AvailableYears []string
	Cause          error
}

// Error returns a formatted error string.
func (e *YearAvailabilityError) Error() string {
	return fmt.Sprintf("[%s:%s] school year %s is not available (available: %s)",
		ErrCategoryAvailability, CodeYearUnavailable, e.RequestedYear, strings.Join(e.AvailableYears, ", "))
}

// Unwrap returns the underlying engine or storage failure.
func (e *YearAvailabilityError) Unwrap() error {
	return e.Cause
}

// Is matches any structured error of the same category and code.
func (e *YearAvailabilityError) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Category == ErrCategoryAvailability && t.Code == CodeYearUnavailable
	}
	_, ok := target.(*YearAvailabilityError)
	return ok
}

// NewYearAvailabilityError builds a YearAvailabilityError with a private copy
// of the available years.
func NewYearAvailabilityError(requested string, available []string, cause error) *YearAvailabilityError {
	return &YearAvailabilityError{
		RequestedYear:  requested,
		AvailableYears: append([]string(nil), available...),
		Cause:          cause,
	}
}

// AsYearUnavailable extracts a YearAvailabilityError from an error chain.
func AsYearUnavailable(err error) (*YearAvailabilityError, bool) {
	var ye *YearAvailabilityError
	if errors.As(err, &ye) {
		return ye, true
	}
	return nil, false
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	_, _, retryable := outermost(err)
	return retryable
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not structured.
func GetCategory(err error) ErrorCategory {
	category, _, _ := outermost(err)
	return category
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not structured.
func GetCode(err error) string {
	_, code, _ := outermost(err)
	return code
}

// outermost returns the classification of the first structured error in the chain.
func outermost(err error) (ErrorCategory, string, bool) {
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch v := e.(type) {
		case *Error:
			return v.Category, v.Code, v.Retryable
		case *YearAvailabilityError:
			return ErrCategoryAvailability, CodeYearUnavailable, false
		}
	}
	return "", "", false
}

// IsEngineInit reports whether err is an engine initialization failure.
func IsEngineInit(err error) bool {
	return matches(err, ErrCategoryEngine, CodeInitFailed)
}

// IsConnectionLost reports whether err is an unrecoverable connection loss.
func IsConnectionLost(err error) bool {
	return matches(err, ErrCategoryEngine, CodeConnectionLost)
}

// IsTransport reports whether err is a remote transport failure.
func IsTransport(err error) bool {
	return matches(err, ErrCategoryRemote, CodeTransport)
}

// IsNotFound reports whether err is a remote "no data" response.
func IsNotFound(err error) bool {
	return matches(err, ErrCategoryRemote, CodeNotFound)
}

// IsValidation reports whether err is a rejected input.
func IsValidation(err error) bool {
	return GetCategory(err) == ErrCategoryValidation
}

func matches(err error, category ErrorCategory, code string) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Category == category && se.Code == code
	}
	return false
}

func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryEngine && code == CodeConnectionLost:
		return true
	case category == ErrCategoryRemote && code == CodeTransport:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *Error {
	return New(ErrCategoryValidation, code, message)
}

func NewEngineInitError(message string, cause error) *Error {
	return Wrap(ErrCategoryEngine, CodeInitFailed, message, cause)
}

func NewConnectionLostError(message string, cause error) *Error {
	return Wrap(ErrCategoryEngine, CodeConnectionLost, message, cause)
}

func NewTransportError(message string, cause error) *Error {
	return Wrap(ErrCategoryRemote, CodeTransport, message, cause)
}

func NewNotFoundError(message string) *Error {
	return New(ErrCategoryRemote, CodeNotFound, message)
}

func NewQueryError(message string, cause error) *Error {
	return Wrap(ErrCategoryQuery, CodeQueryFailed, message, cause)
}

func NewInternalError(message string, cause error) *Error {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
