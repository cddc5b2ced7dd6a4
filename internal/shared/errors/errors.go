package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies migration failures.
type ErrorType string

const (
	ErrorTypeFetchFailure       ErrorType = "FETCH_FAILURE"
	ErrorTypeMissingReference   ErrorType = "MISSING_REFERENCE"
	ErrorTypeWriteFailure       ErrorType = "WRITE_FAILURE"
	ErrorTypeMalformedTimestamp ErrorType = "MALFORMED_TIMESTAMP"
	ErrorTypeDuplicateMapping   ErrorType = "DUPLICATE_MAPPING"
	ErrorTypeUnknownReference   ErrorType = "UNKNOWN_REFERENCE"
	ErrorTypeNotFound           ErrorType = "NOT_FOUND_ERROR"
	ErrorTypeValidation         ErrorType = "VALIDATION_ERROR"
	ErrorTypeInternal           ErrorType = "INTERNAL_ERROR"
)

// Sentinel causes. Every AppError built by the constructors below wraps one of
// these, so callers can use errors.Is regardless of how much context was added.
var (
	ErrFetchFailure       = errors.New("fetch failure")
	ErrMissingReference   = errors.New("missing reference")
	ErrWriteFailure       = errors.New("write failure")
	ErrMalformedTimestamp = errors.New("malformed timestamp")
	ErrDuplicateMapping   = errors.New("duplicate mapping")
	ErrUnknownReference   = errors.New("unknown reference")
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnsupported        = errors.New("operation not supported")
)

// AppError represents a migration error with context
type AppError struct {
	Type      ErrorType              `json:"type"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Component string                 `json:"component,omitempty"`

	sentinel error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the wrapped cause, falling back to the sentinel of the error type.
func (e *AppError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.sentinel != nil {
		errs = append(errs, e.sentinel)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, message string) *AppError {
	return &AppError{
		Type:     errorType,
		Message:  message,
		Details:  make(map[string]interface{}),
		sentinel: sentinelFor(errorType),
	}
}

// WithCause adds the underlying cause
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithComponent adds the component name
func (e *AppError) WithComponent(component string) *AppError {
	e.Component = component
	return e
}

// WithDetail adds a detail field
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func sentinelFor(t ErrorType) error {
	switch t {
	case ErrorTypeFetchFailure:
		return ErrFetchFailure
	case ErrorTypeMissingReference:
		return ErrMissingReference
	case ErrorTypeWriteFailure:
		return ErrWriteFailure
	case ErrorTypeMalformedTimestamp:
		return ErrMalformedTimestamp
	case ErrorTypeDuplicateMapping:
		return ErrDuplicateMapping
	case ErrorTypeUnknownReference:
		return ErrUnknownReference
	case ErrorTypeNotFound:
		return ErrNotFound
	case ErrorTypeValidation:
		return ErrInvalidInput
	}
	return nil
}

// NewFetchFailure reports that a source scope could not be read.
func NewFetchFailure(kind, scope string, cause error) *AppError {
	return NewAppError(ErrorTypeFetchFailure, fmt.Sprintf("cannot list %s under %s", kind, scope)).
		WithCause(cause).
		WithDetail("kind", kind).
		WithDetail("scope", scope)
}

// NewMissingReference reports a foreign key with no identity mapping entry.
func NewMissingReference(kind, id, field, refKind, refID string) *AppError {
	return NewAppError(ErrorTypeMissingReference,
		fmt.Sprintf("%s %s references unmigrated %s %q via %s", kind, id, refKind, refID, field)).
		WithDetail("kind", kind).
		WithDetail("id", id).
		WithDetail("field", field).
		WithDetail("reference", refID)
}

// NewWriteFailure reports that the destination rejected an entity.
func NewWriteFailure(kind, id string, cause error) *AppError {
	return NewAppError(ErrorTypeWriteFailure, fmt.Sprintf("cannot create %s %s", kind, id)).
		WithCause(cause).
		WithDetail("kind", kind).
		WithDetail("id", id)
}

// NewMalformedTimestamp reports a date field that does not parse.
func NewMalformedTimestamp(field, value string, cause error) *AppError {
	return NewAppError(ErrorTypeMalformedTimestamp, fmt.Sprintf("field %s has malformed timestamp %q", field, value)).
		WithCause(cause).
		WithDetail("field", field)
}

// NewDuplicateMapping reports an attempt to remap an id to a second value.
func NewDuplicateMapping(kind, oldID, existing, proposed string) *AppError {
	return NewAppError(ErrorTypeDuplicateMapping,
		fmt.Sprintf("%s %s already mapped to %s, refusing %s", kind, oldID, existing, proposed)).
		WithDetail("kind", kind).
		WithDetail("old_id", oldID)
}

// NewUnknownReference reports a Resolve miss.
func NewUnknownReference(kind, oldID string) *AppError {
	return NewAppError(ErrorTypeUnknownReference, fmt.Sprintf("no mapping for %s %s", kind, oldID)).
		WithDetail("kind", kind).
		WithDetail("old_id", oldID)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource))
}

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return NewAppError(ErrorTypeValidation, message)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, message)
}

// WrapError wraps an error with context
func WrapError(err error, message string) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError(message).WithCause(err)
}

// TypeOf returns the ErrorType of the first AppError in err's chain.
func TypeOf(err error) (ErrorType, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type, true
	}
	return "", false
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsMissingReference checks whether err denotes an unresolvable foreign key.
func IsMissingReference(err error) bool {
	return errors.Is(err, ErrMissingReference) || errors.Is(err, ErrUnknownReference)
}

// IsFatal reports errors that must abort a run instead of skipping one entity.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDuplicateMapping)
}
