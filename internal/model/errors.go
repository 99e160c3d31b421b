package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound unknown user, node, job or block
	ErrNotFound = errors.New("not found")

	// ErrInsufficientBalance balance lower than the requested debit
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrValidation malformed input, rejected before any side effect
	ErrValidation = errors.New("validation failed")

	// ErrExecution failure inside the execution loop
	ErrExecution = errors.New("execution failed")

	// ErrLedgerWriteConflict two blocks built on the same head
	ErrLedgerWriteConflict = errors.New("ledger write conflict")

	// ErrInvalidTransition job status did not match the expected source status
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrAlreadyDispatched job is (or was) already being executed
	ErrAlreadyDispatched = errors.New("job already dispatched")
)

// Validationf returns an ErrValidation wrapping a formatted reason.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf returns an ErrNotFound wrapping a formatted reason.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
