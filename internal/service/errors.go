package service

import (
	"errors"
	"fmt"

	"github.com/stemsi/exam-portal/internal/repository"
)

// ErrNotFound is returned when a referenced exam, credential, admin or file does not exist.
var ErrNotFound = repository.ErrNotFound

// AuthReason identifies why an authentication or authorization check failed.
type AuthReason string

const (
	ReasonInvalidCredentials AuthReason = "invalid_credentials"
	ReasonAlreadyUsed        AuthReason = "already_used"
	ReasonExamInactive       AuthReason = "exam_inactive"
	ReasonForbidden          AuthReason = "forbidden"
)

// Sentinel auth errors usable with errors.Is.
var (
	ErrInvalidCredentials = &AuthError{Reason: ReasonInvalidCredentials}
	ErrAlreadyUsed        = &AuthError{Reason: ReasonAlreadyUsed}
	ErrExamInactive       = &AuthError{Reason: ReasonExamInactive}
	ErrForbidden          = &AuthError{Reason: ReasonForbidden}
)

// ValidationError reports malformed or out-of-range input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// ConflictError reports a uniqueness violation.
type ConflictError struct {
	Resource string
}

func (e *ConflictError) Error() string {
	return e.Resource + " already exists"
}

// RateLimitedError is returned while a client key is locked out.
type RateLimitedError struct {
	RetryAfterMinutes int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many failed attempts, retry in %d minute(s)", e.RetryAfterMinutes)
}

// AuthError is an authentication or authorization rejection.
type AuthError struct {
	Reason AuthReason
}

func (e *AuthError) Error() string {
	return "auth rejected: " + string(e.Reason)
}

// Is matches any AuthError with the same reason.
func (e *AuthError) Is(target error) bool {
	var t *AuthError
	if !errors.As(target, &t) {
		return false
	}
	return t.Reason == e.Reason
}

// PersistenceError wraps a storage failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// storeErr maps repository errors onto service errors.
// ErrNotFound passes through, duplicates become ConflictError and anything
// else is wrapped as a PersistenceError.
func storeErr(op, resource string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrDuplicate):
		return &ConflictError{Resource: resource}
	default:
		return &PersistenceError{Op: op, Err: err}
	}
}
