package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the coordination core. Components return these,
// optionally wrapped, and callers match them with errors.Is.
var (
	ErrPermissionDenied           = errors.New("location permission denied")
	ErrPreconditionFailed         = errors.New("precondition failed")
	ErrConnectionFailed           = errors.New("connection failed")
	ErrGeofenceRegistrationFailed = errors.New("geofence registration failed")
	ErrSendFailed                 = errors.New("pending handle send failed")
	ErrInvalidSpec                = errors.New("invalid geofence spec")
)

type ConnectionError struct {
	Code        int
	Recoverable bool
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failed: code %d (recoverable: %t)", e.Code, e.Recoverable)
}

func (e *ConnectionError) Unwrap() error {
	return ErrConnectionFailed
}

type RegistrationError struct {
	ID     string
	Reason string
	Err    error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("geofence %s: registration failed: %s", e.ID, e.Reason)
}

// Unwrap exposes both the registration sentinel and the underlying cause,
// so a send failure matches ErrSendFailed as well.
func (e *RegistrationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrGeofenceRegistrationFailed}
	}
	return []error{ErrGeofenceRegistrationFailed, e.Err}
}
