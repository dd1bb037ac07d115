// Package apperrors holds the domain errors raised by the account services and
// translated to HTTP statuses at the handler boundary.
package apperrors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUserNotFound is returned when no account matches the requested username.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserNotAuthorized is returned when the caller may not act on the target account.
	ErrUserNotAuthorized = errors.New("user not authorized")
)

// FieldError describes why a single field of a patch was rejected.
type FieldError struct {
	DeveloperMessage string `json:"developer_message"`
	UserMessage      string `json:"user_message"`
}

// AccountValidationError carries every rejected field of a patch, keyed by
// the field's JSON name.
type AccountValidationError struct {
	FieldErrors map[string]FieldError
}

func NewAccountValidationError() *AccountValidationError {
	return &AccountValidationError{FieldErrors: map[string]FieldError{}}
}

// Add records a field error. The first error recorded for a field wins.
func (e *AccountValidationError) Add(field, developerMessage, userMessage string) {
	if _, exists := e.FieldErrors[field]; exists {
		return
	}
	e.FieldErrors[field] = FieldError{DeveloperMessage: developerMessage, UserMessage: userMessage}
}

// AddMessage records a field error whose developer and user messages match.
func (e *AccountValidationError) AddMessage(field, message string) {
	e.Add(field, message, message)
}

func (e *AccountValidationError) HasErrors() bool {
	return len(e.FieldErrors) > 0
}

func (e *AccountValidationError) Error() string {
	fields := make([]string, 0, len(e.FieldErrors))
	for field := range e.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "account validation failed: " + strings.Join(fields, ", ")
}

// AccountUpdateError reports a failure detected while persisting an otherwise
// valid update. UserMessage is safe to display.
type AccountUpdateError struct {
	DeveloperMessage string
	UserMessage      string
}

func (e *AccountUpdateError) Error() string {
	return fmt.Sprintf("account update failed: %s", e.DeveloperMessage)
}
