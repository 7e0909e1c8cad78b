package apperrors

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates that a requested resource could not be found.
var ErrNotFound = errors.New("resource not found")

// ErrValidation indicates that input data failed validation checks.
var ErrValidation = errors.New("validation error")

// ErrDuplicate indicates that an attempt was made to create a resource that already exists.
var ErrDuplicate = errors.New("resource already exists")

// ErrForbidden indicates the acting user is not allowed to perform the operation.
var ErrForbidden = errors.New("forbidden")

// ErrInvalidTransition indicates an expense lifecycle operation was attempted
// from a status other than the one the transition requires.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrExtractionFailed indicates the document-understanding provider or the
// receipt parsing step failed. It is recorded on the extraction job and never
// propagated past the extraction queue.
var ErrExtractionFailed = errors.New("receipt extraction failed")

// ErrClassificationUnavailable indicates the remote classifier could not be
// reached in time. The categorizer absorbs it by falling back to rule-based
// scoring; it never reaches a handler.
var ErrClassificationUnavailable = errors.New("remote classifier unavailable")

// NewInvalidTransitionError builds an ErrInvalidTransition naming the status
// the transition requires and the status actually found.
func NewInvalidTransitionError(action, expected, actual string) error {
	return fmt.Errorf("%w: %s requires status %s, got %s", ErrInvalidTransition, action, expected, actual)
}

// AppError carries a status code and message alongside the wrapped cause.
// Used mainly by the persistence layer for failures that have no sentinel.
type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates an AppError wrapping the underlying error.
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}
