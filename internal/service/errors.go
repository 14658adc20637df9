package service

import (
	"errors"
	"fmt"

	"ridehail/internal/domain"
)

// ErrNoDriverAvailable is returned when no driver can be matched. Book treats
// it as a normal outcome and stores the ride as requested.
var ErrNoDriverAvailable = errors.New("no driver available")

// ValidationError reports a malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports an unknown entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// AuthorizationError reports a caller lacking the right to act.
type AuthorizationError struct {
	Action string
}

func (e *AuthorizationError) Error() string {
	return "not allowed to " + e.Action
}

// InvalidStateTransition reports an operation the ride's status forbids.
type InvalidStateTransition struct {
	RideID string
	From   domain.RideStatus
	Action string
}

func (e *InvalidStateTransition) Error() string {
	return fmt.Sprintf("cannot %s ride %s in status %s", e.Action, e.RideID, e.From)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func notFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func forbidden(action string) error {
	return &AuthorizationError{Action: action}
}
