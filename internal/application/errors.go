package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnknownCategory is returned when a trigger names an unsupported reminder category.
	ErrUnknownCategory = errors.New("application: unknown reminder category")
	// ErrInvalidTokenKind is returned for action kinds other than cancel and modify.
	ErrInvalidTokenKind = errors.New("application: invalid action token kind")
	// ErrUnauthorized is returned when a trigger secret does not verify.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrTokenExpired is returned when an action token is redeemed after its expiry.
	ErrTokenExpired = errors.New("application: action token expired")
	// ErrTokenConsumed is returned when an action token was already redeemed.
	ErrTokenConsumed = errors.New("application: action token already used")
	// ErrInvalidTransition is returned when the booking status forbids the requested action.
	ErrInvalidTransition = errors.New("application: booking status does not allow this action")
	// ErrConflict is returned when a guarded update lost a race with another writer.
	ErrConflict = errors.New("application: conflicting update")
	// ErrMissingActionTokens is returned when a next_day reminder is rendered without links.
	ErrMissingActionTokens = errors.New("application: action tokens required for this reminder")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fmt.Sprintf("validation failed: %s", strings.Join(fields, ", "))
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// Add records a field level validation error.
func (v *ValidationError) Add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}
