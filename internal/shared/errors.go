package shared

import (
	"errors"
	"fmt"
)

// Error taxonomy sentinels. Domain packages wrap these so handlers can map
// any failure to a transport status without knowing which package it came from.
var (
	// ErrValidation marks malformed or incomplete input, rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a concurrent claim collision or duplicate processing attempt.
	ErrConflict = errors.New("conflict")
	// ErrConsistency marks an invariant violation detected at read time.
	// Operations hitting it must halt and flag for manual audit, never self-heal.
	ErrConsistency = errors.New("consistency violation")
	// ErrNotFound indicates the referenced resource does not exist.
	ErrNotFound = errors.New("not found")
)

// Validationf wraps ErrValidation with a formatted detail message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// Conflictf wraps ErrConflict with a formatted detail message.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConflict}, args...)...)
}

// Consistencyf wraps ErrConsistency with a formatted detail message.
func Consistencyf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConsistency}, args...)...)
}
