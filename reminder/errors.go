package reminder

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation occurs when reminder input violates its invariants
	ErrValidation = errors.New("invalid reminder")
	// ErrPersistence occurs when the reminder store cannot be read or written
	ErrPersistence = errors.New("reminder persistence failed")
	// ErrNotFound occurs when no reminder has the requested id
	ErrNotFound = errors.New("reminder not found")
)

// ValidationError describes a rejected reminder field
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid reminder %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) match
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field string, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
