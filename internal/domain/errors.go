package domain

import (
	"errors"
	"fmt"
)

// NotFoundError is returned when a record does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ValidationError is returned when input fails validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// InvalidTransitionError is returned when a status change is not allowed.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
	// Hint names the operation that performs the change instead, if any.
	Hint string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("invalid %s transition from %s to %s", e.Entity, e.From, e.To)
	if e.Hint != "" {
		msg += ": " + e.Hint
	}
	return msg
}

// IneligibleError is returned when an item cannot be returned. Reason is
// meant to be shown to the customer.
type IneligibleError struct {
	Reason string
}

func (e *IneligibleError) Error() string {
	return "not eligible for return: " + e.Reason
}

// ConflictError is returned when a write collides with existing state.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "conflict"
}

// NewNotFound creates a NotFoundError.
func NewNotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// NewValidation creates a ValidationError.
func NewValidation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// IsIneligible reports whether err is an IneligibleError.
func IsIneligible(err error) bool {
	var target *IneligibleError
	return errors.As(err, &target)
}
