// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Input errors.
	ErrMissingInput = errors.New("missing input")
	ErrInvalidInput = errors.New("invalid input")

	// Pipeline errors.
	ErrNoTransactions   = errors.New("no attributable transactions")
	ErrInsufficientRows = errors.New("insufficient rows")
	ErrSchemaMismatch   = errors.New("schema mismatch")

	// Database errors.
	ErrNotFound = errors.New("not found")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// MissingInputError reports an absent input file at its expected location.
func MissingInputError(path string) error {
	return NewUserError(
		fmt.Sprintf("dataset not found at %s; place the Online Retail transaction export there", path),
		fmt.Errorf("%w: %s", ErrMissingInput, path),
	)
}
