// Package huberrors provides sentinel and custom error types for the application.
package huberrors

import "strings"

// ErrNotFound represents a "not found" error.
// Use when a requested resource doesn't exist.
var ErrNotFound = &NotFoundError{}

// NotFoundError is a sentinel error for resources that are not found.
type NotFoundError struct {
	Resource string
	Message  string
}

// NewNotFoundError creates a new NotFoundError with a custom message.
func NewNotFoundError(resource, message string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		Message:  message,
	}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Resource != "" {
		return e.Resource + " not found"
	}

	return "resource not found"
}

// Is implements the error interface for error comparison.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)

	return ok
}

// ErrValidation represents a validation error.
// Use when client input fails validation or a submit finds unanswered required fields.
var ErrValidation = &ValidationError{}

// FieldError is one failing field of a ValidationError.
type FieldError struct {
	FieldID string `json:"field_id"`
	Message string `json:"message"`
}

// ValidationError is a sentinel error for validation failures. Fields lists every
// failing field when more than one is reported at once.
type ValidationError struct {
	Field   string
	Message string
	Fields  []FieldError
}

// NewValidationError creates a new ValidationError with a custom message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewFieldsValidationError creates a ValidationError listing all failing fields.
func NewFieldsValidationError(message string, fields []FieldError) *ValidationError {
	return &ValidationError{
		Message: message,
		Fields:  fields,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if len(e.Fields) > 0 {
		ids := make([]string, len(e.Fields))
		for i, f := range e.Fields {
			ids[i] = f.FieldID
		}

		return "validation failed for fields: " + strings.Join(ids, ", ")
	}

	if e.Field != "" {
		return "validation failed for field: " + e.Field
	}

	return "validation error"
}

// Is implements the error interface for error comparison.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)

	return ok
}

// ErrLimitExceeded is the sentinel for limit-exceeded errors (e.g. session registry full).
// Use when an operation is rejected because a configured limit was reached.
var ErrLimitExceeded = &LimitExceededError{}

// LimitExceededError is a sentinel error for limit-exceeded conditions.
type LimitExceededError struct {
	Message string
}

// NewLimitExceededError creates a LimitExceededError with a custom message.
func NewLimitExceededError(message string) *LimitExceededError {
	return &LimitExceededError{Message: message}
}

// Error implements the error interface.
func (e *LimitExceededError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "limit exceeded"
}

// Is implements the error interface for error comparison.
func (e *LimitExceededError) Is(target error) bool {
	_, ok := target.(*LimitExceededError)

	return ok
}

// ErrConflict is the sentinel for conflict errors (e.g. stale template version on update).
var ErrConflict = &ConflictError{}

// ConflictError is a sentinel error for resource conflicts.
type ConflictError struct {
	Message string
}

// NewConflictError creates a ConflictError with a custom message.
func NewConflictError(message string) *ConflictError {
	return &ConflictError{Message: message}
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "conflict"
}

// Is implements the error interface for error comparison.
func (e *ConflictError) Is(target error) bool {
	_, ok := target.(*ConflictError)

	return ok
}

// ErrNavigation is the sentinel for illegal navigation attempts.
var ErrNavigation = &NavigationError{}

// NavigationError reports an illegal navigation (back navigation disabled, jump to a
// hidden or unknown section). The session is left unchanged.
type NavigationError struct {
	SectionID string
	Message   string
}

// NewNavigationError creates a NavigationError for the given section.
func NewNavigationError(sectionID, message string) *NavigationError {
	return &NavigationError{SectionID: sectionID, Message: message}
}

// Error implements the error interface.
func (e *NavigationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.SectionID != "" {
		return "cannot navigate to section: " + e.SectionID
	}

	return "illegal navigation"
}

// Is implements the error interface for error comparison.
func (e *NavigationError) Is(target error) bool {
	_, ok := target.(*NavigationError)

	return ok
}

// ErrAlreadySubmitted is the sentinel for mutations on a submitted response.
var ErrAlreadySubmitted = &AlreadySubmittedError{}

// AlreadySubmittedError is returned when a submitted (terminal) response is mutated.
type AlreadySubmittedError struct {
	Message string
}

// NewAlreadySubmittedError creates an AlreadySubmittedError with a custom message.
func NewAlreadySubmittedError(message string) *AlreadySubmittedError {
	return &AlreadySubmittedError{Message: message}
}

// Error implements the error interface.
func (e *AlreadySubmittedError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "response already submitted"
}

// Is implements the error interface for error comparison.
func (e *AlreadySubmittedError) Is(target error) bool {
	_, ok := target.(*AlreadySubmittedError)

	return ok
}
