package db

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadySignedUp = errors.New("already signed up for this opportunity")
	ErrFull            = errors.New("this opportunity is already full")
	ErrNoProfile       = errors.New("volunteer profile not found")
	ErrUnauthenticated = errors.New("you must be logged in")
	ErrForbidden       = errors.New("insufficient permission")
	ErrNotAMember      = errors.New("not a member of this chat room")
	ErrEmptyMessage    = errors.New("message is empty")
	ErrNotSender       = errors.New("only the sender can delete this message")
)

// ValidationError lists the fields that failed client-side validation.
// It is always produced before any store call.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError creates a ValidationError for a single field
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s %s", name, e.Fields[name]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// IsValidation reports whether err is (or wraps) a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
