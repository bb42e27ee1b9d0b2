// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// Store errors
	ErrStoreFailure       = errors.New("store failure")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "xp", "promotion", "backpack"
	Op      string // Operation that failed, e.g., "AddXP", "CanPromote"
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

// XP ledger errors
var (
	ErrUnknownSkill    = NewDomainError("xp", "Validate", ErrInvalidInput, "unknown skill")
	ErrUnknownSource   = NewDomainError("xp", "Validate", ErrInvalidInput, "unknown XP source")
	ErrNegativeWindow  = NewDomainError("xp", "Validate", ErrNegativeValue, "window days cannot be negative")
	ErrEmptyStudentID  = NewDomainError("xp", "Validate", ErrInvalidID, "student ID is required")
	ErrInvalidXPAmount = NewDomainError("xp", "Validate", ErrInvalidInput, "XP amount must be a finite number")
)

// Promotion errors
var (
	ErrLevelConfigNotFound    = NewDomainError("promotion", "FindLevelConfig", ErrNotFound, "level config not found")
	ErrCriterionNotFound      = NewDomainError("promotion", "FindCriterion", ErrNotFound, "level criterion not found")
	ErrStudentNotFound        = NewDomainError("promotion", "FindStudent", ErrNotFound, "student not found")
	ErrInvalidLevel           = NewDomainError("promotion", "Validate", ErrValueOutOfRange, "level must be >= 1")
	ErrPromotionNotAllowed    = NewDomainError("promotion", "PromoteLevel", ErrStateTransition, "promotion requirements not met")
	ErrCriterionNotToggleable = NewDomainError("promotion", "ToggleCriterion", ErrInvalidInput, "only PROF criteria can be toggled")
	ErrDuplicateAdjustment    = NewDomainError("promotion", "Validate", ErrInvalidInput, "skill adjusted more than once")
	ErrMissingReason          = NewDomainError("promotion", "PromoteLevel", ErrInvalidInput, "level change reason is required")
)

// Backpack errors
var (
	ErrEmptyPracticeKey = NewDomainError("backpack", "Validate", ErrInvalidInput, "practice key is required")
	ErrInvalidStatus    = NewDomainError("backpack", "Validate", ErrInvalidInput, "unknown backpack status")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsStoreFailure checks if the error originated in the backing store.
func IsStoreFailure(err error) bool {
	return errors.Is(err, ErrStoreFailure) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}

// IsConcurrentModification reports a lost compare-and-swap race.
func IsConcurrentModification(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}
