package domain

// EventType classifies events the core emits to its consumers.
type EventType int

const (
	EventLocationUpdate EventType = iota
	EventGeofenceRegistered
	EventGeofenceFailed
	EventGeofenceRemoved
	EventGeofenceTransition
	EventConnected
	EventConnectionSuspended
	EventConnectionFailed
	EventPermissionChanged
)

var eventTypeNames = map[EventType]string{
	EventLocationUpdate:      "location_update",
	EventGeofenceRegistered:  "geofence_registered",
	EventGeofenceFailed:      "geofence_failed",
	EventGeofenceRemoved:     "geofence_removed",
	EventGeofenceTransition:  "geofence_transition",
	EventConnected:           "connected",
	EventConnectionSuspended: "connection_suspended",
	EventConnectionFailed:    "connection_failed",
	EventPermissionChanged:   "permission_changed",
}

func (t EventType) String() string {
	if s, ok := eventTypeNames[t]; ok {
		return s
	}
	return "unknown"
}

func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Event carries one notification to consumers. Only the fields relevant to
// Type are set.
type Event struct {
	Type       EventType           `json:"type"`
	Location   *LocationUpdate     `json:"location,omitempty"`
	Geofence   *GeofenceSpec       `json:"geofence,omitempty"`
	GeofenceID string              `json:"geofence_id,omitempty"`
	Reason     string              `json:"reason,omitempty"`
	Connection *ConnectionState    `json:"connection,omitempty"`
	Permission PermissionState     `json:"permission,omitempty"`
	Transition *GeofenceTransition `json:"transition,omitempty"`
}
