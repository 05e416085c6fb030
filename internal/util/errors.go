// Package util provides shared utility types for the sheet service.
//
// # Error Conventions
//
// This project follows a standardized error pattern across all packages:
//
//   - Sentinel errors (errors.New) for well-known, stable conditions
//     that callers check with errors.Is(). Example: ErrNotFound.
//   - Structured error types for context-rich errors that carry
//     additional fields (e.g., ValidationError, AccessError). Each type
//     implements Error(), Unwrap() (if wrapping), and Is().
//   - fmt.Errorf with %w for ad-hoc wrapping that adds context to an
//     existing error without introducing a new type.
//
// All custom error types must implement:
//
//	Error() string           – human-readable message
//	Unwrap() error           – if the type wraps another error
//	Is(target error) bool    – for errors.Is() compatibility
package util

import (
	"errors"
	"fmt"
)

// Common sentinel errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError represents a missing or malformed request field.
type ValidationError struct {
	Fields  map[string]string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error: %s (fields: %v)", e.Message, e.Fields)
}

// Is checks if the error matches the target.
func (e *ValidationError) Is(target error) bool {
	if target == ErrInvalidInput {
		return true
	}
	_, ok := target.(*ValidationError)
	return ok
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message, Fields: make(map[string]string)}
}

// AddField adds a field error.
func (e *ValidationError) AddField(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = message
}

// AuthError represents a missing, invalid, or expired credential.
type AuthError struct {
	Reason string
	Cause  error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// Unwrap returns the underlying error.
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *AuthError) Is(target error) bool {
	if target == ErrUnauthorized {
		return true
	}
	_, ok := target.(*AuthError)
	return ok || errors.Is(e.Cause, target)
}

// NewAuthError creates a new AuthError.
func NewAuthError(reason string) *AuthError {
	return &AuthError{Reason: reason}
}

// NewAuthErrorWithCause creates a new AuthError wrapping a cause.
func NewAuthErrorWithCause(reason string, cause error) *AuthError {
	return &AuthError{Reason: reason, Cause: cause}
}

// AccessError represents a permission denial for a (user, document) pair.
type AccessError struct {
	UserID     string
	DocumentID string
	Required   string
	Message    string
}

// Error implements the error interface.
func (e *AccessError) Error() string {
	if e.Required != "" {
		return fmt.Sprintf("access denied for user %s on document %s: requires %s", e.UserID, e.DocumentID, e.Required)
	}
	return fmt.Sprintf("access denied for user %s on document %s: %s", e.UserID, e.DocumentID, e.Message)
}

// Is checks if the error matches the target.
func (e *AccessError) Is(target error) bool {
	if target == ErrForbidden {
		return true
	}
	_, ok := target.(*AccessError)
	return ok
}

// NewAccessError creates a new AccessError.
func NewAccessError(userID, documentID, message string) *AccessError {
	return &AccessError{UserID: userID, DocumentID: documentID, Message: message}
}

// NewAccessErrorRequired creates an AccessError naming the required level.
func NewAccessErrorRequired(userID, documentID, required string) *AccessError {
	return &AccessError{UserID: userID, DocumentID: documentID, Required: required}
}

// ConflictError represents a duplicate grant or resource.
type ConflictError struct {
	Resource string
	Key      string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Resource, e.Key)
}

// Is checks if the error matches the target.
func (e *ConflictError) Is(target error) bool {
	if target == ErrConflict {
		return true
	}
	_, ok := target.(*ConflictError)
	return ok
}

// NewConflictError creates a new ConflictError.
func NewConflictError(resource, key string) *ConflictError {
	return &ConflictError{Resource: resource, Key: key}
}

// StoreError represents a persistence failure. The full detail is logged
// internally; callers surface it as a generic server error.
type StoreError struct {
	Op    string
	Cause error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *StoreError) Is(target error) bool {
	_, ok := target.(*StoreError)
	return ok || errors.Is(e.Cause, target)
}

// NewStoreError creates a new StoreError.
func NewStoreError(op string, cause error) *StoreError {
	return &StoreError{Op: op, Cause: cause}
}

// IsClientError returns true if the error maps to a 4xx outcome.
func IsClientError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidInput)
}
