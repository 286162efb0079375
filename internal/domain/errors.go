package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrTenantInactive      = errors.New("tenant is not active")
	ErrInvitationNotFound  = errors.New("invitation not found")
	ErrInvitationNotUsable = errors.New("invitation is expired or no longer pending")
	ErrRegistryUnavailable = errors.New("registry store unavailable")
)

// ValidationError is returned when caller input is malformed. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError is returned when a uniqueness rule is violated; the caller
// must choose a different value.
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q is already in use", e.Field, e.Value)
}

// ConnectionError is returned when a physical store cannot be reached within
// its timeout. Transient; safe to retry with backoff.
type ConnectionError struct {
	StoreName string
	Err       error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connecting to store %q: %v", e.StoreName, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProvisioningError is returned when physical provisioning failed after the
// registry write and compensation ran. Retrying the whole createTenant call
// is safe: no partial state survives.
type ProvisioningError struct {
	TenantID string
	Err      error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning tenant %s: %v", e.TenantID, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// TransitionError is returned when a state transition is not allowed.
type TransitionError struct {
	Event   Event
	Current Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q is not valid from state %q", e.Event, e.Current)
}
