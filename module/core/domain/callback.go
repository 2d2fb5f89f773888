package domain

import "time"

// CallbackKind tags a backend callback delivered to the session queue.
type CallbackKind int

const (
	CallbackConnected CallbackKind = iota
	CallbackSuspended
	CallbackConnectionFailed
	CallbackLocationChanged
	CallbackRegistrationResult
	CallbackPermissionResult
	CallbackTransition
	CallbackSendFailed
)

func (k CallbackKind) String() string {
	switch k {
	case CallbackConnected:
		return "connected"
	case CallbackSuspended:
		return "suspended"
	case CallbackConnectionFailed:
		return "connection_failed"
	case CallbackLocationChanged:
		return "location_changed"
	case CallbackRegistrationResult:
		return "registration_result"
	case CallbackPermissionResult:
		return "permission_result"
	case CallbackTransition:
		return "transition"
	case CallbackSendFailed:
		return "send_failed"
	}
	return "unknown"
}

// Callback is the single event value every backend uses to report back.
type Callback struct {
	Kind CallbackKind

	// CallbackSuspended
	SuspendReason SuspendReason

	// CallbackConnectionFailed
	Code          int
	HasResolution bool

	// CallbackLocationChanged
	Listener  string
	Point     GeoPoint
	Timestamp time.Time

	// CallbackRegistrationResult, CallbackTransition, CallbackSendFailed
	SubmissionID string
	GeofenceIDs  []string
	Handle       PendingHandle
	Err          error
	Transition   *GeofenceTransition

	// CallbackPermissionResult
	Granted bool
}
