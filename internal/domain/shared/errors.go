// Package shared contains common domain types, errors and events used across
// the domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// ErrValidation marks input that was rejected before any write.
	ErrValidation = errors.New("validation error")

	// ErrStorage marks a failed read or write against the store.
	ErrStorage = errors.New("storage error")

	// ErrConflict marks a uniqueness violation. Callers treat it as an
	// idempotent no-op.
	ErrConflict = errors.New("conflict")

	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrConcurrentModification is returned when a transaction lost a race
	// and may be replayed.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrServiceUnavailable is returned by optional collaborators (cache, pub/sub).
	ErrServiceUnavailable = errors.New("service unavailable")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "streak", "xp", "achievement"
	Op      string // Operation that failed, e.g., "Advance", "Award"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Validation builds an ErrValidation-kind error.
func Validation(domain, op, format string, args ...any) *DomainError {
	return NewDomainError(domain, op, ErrValidation, fmt.Sprintf(format, args...))
}

// Storage wraps a store failure as an ErrStorage-kind error. A nil err stays nil.
func Storage(domain, op, message string, err error) error {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) && (errors.Is(de.Kind, ErrStorage) || errors.Is(de.Kind, ErrConflict)) {
		return err
	}
	return WrapError(domain, op, ErrStorage, message, err)
}

// Progression domain errors.
var (
	ErrInvalidUserID       = NewDomainError("progression", "Validate", ErrValidation, "user id is required")
	ErrUnknownActivityType = NewDomainError("activity", "Validate", ErrValidation, "unknown activity type")
	ErrUnknownEventType    = NewDomainError("xp", "Validate", ErrValidation, "unknown xp event type")
	ErrUnknownTriggerKind  = NewDomainError("achievement", "Validate", ErrValidation, "unknown trigger type")
	ErrAchievementUnlocked = NewDomainError("achievement", "Insert", ErrConflict, "achievement already unlocked")
	ErrAchievementNotFound = NewDomainError("achievement", "Find", ErrNotFound, "achievement not found")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsStorage checks if the error came from the store.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}

// IsConflict checks if the error is a uniqueness conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrServiceUnavailable)
}
