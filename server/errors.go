package server

import (
	"errors"
	"fmt"
	"strings"
)

// Violation is one rejected input field.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError rejects client input. It carries every violated field.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Violations: []Violation{{Field: field, Message: message}}}
}

// NotFoundError reports a missing resource, or one the caller may not see.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ForbiddenError rejects an authenticated caller lacking the required standing.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	return "forbidden: " + e.Reason
}

// PersistenceError wraps a store failure. Its detail is never sent to clients.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// isServiceError reports whether err already carries an API error type.
func isServiceError(err error) bool {
	var (
		ve *ValidationError
		nf *NotFoundError
		fe *ForbiddenError
		pe *PersistenceError
	)
	return errors.As(err, &ve) || errors.As(err, &nf) || errors.As(err, &fe) || errors.As(err, &pe)
}
