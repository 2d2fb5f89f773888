package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type GeoPoint struct {
	Lat float64 `json:"latitude" yaml:"latitude"`
	Lon float64 `json:"longitude" yaml:"longitude"`
}

func (p GeoPoint) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Trigger is a bitmask of geofence transitions. Values match the platform
// transition codes so they can be passed through unchanged.
type Trigger uint8

const (
	TriggerEnter Trigger = 1 << iota
	TriggerExit
	TriggerDwell

	allTriggers = TriggerEnter | TriggerExit | TriggerDwell
)

var triggerNames = []struct {
	t    Trigger
	name string
}{
	{TriggerEnter, "enter"},
	{TriggerExit, "exit"},
	{TriggerDwell, "dwell"},
}

func (t Trigger) Has(other Trigger) bool {
	return t&other == other
}

func (t Trigger) String() string {
	var parts []string
	for _, n := range triggerNames {
		if t.Has(n.t) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ParseTriggers turns names such as "enter" or "exit" into a Trigger mask.
func ParseTriggers(names []string) (Trigger, error) {
	var t Trigger
	for _, name := range names {
		found := false
		for _, n := range triggerNames {
			if strings.EqualFold(name, n.name) {
				t |= n.t
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("%w: unknown trigger %q", ErrInvalidSpec, name)
		}
	}
	return t, nil
}

func (t Trigger) Names() []string {
	names := make([]string, 0, 3)
	for _, n := range triggerNames {
		if t.Has(n.t) {
			names = append(names, n.name)
		}
	}
	return names
}

func (t Trigger) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Names())
}

func (t *Trigger) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	parsed, err := ParseTriggers(names)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// GeofenceSpec describes one circular geofence. An Expiration of zero means
// the geofence never expires.
type GeofenceSpec struct {
	ID           string        `json:"id"`
	Center       GeoPoint      `json:"center"`
	RadiusMeters float64       `json:"radius_meters"`
	Expiration   time.Duration `json:"expiration,omitempty"`
	Triggers     Trigger       `json:"triggers"`
	DwellDelay   time.Duration `json:"dwell_delay,omitempty"`
}

func (s GeofenceSpec) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: id: required", ErrInvalidSpec)
	}
	if !s.Center.Valid() {
		return fmt.Errorf("%w: center: out of range", ErrInvalidSpec)
	}
	if s.RadiusMeters <= 0 {
		return fmt.Errorf("%w: radius: must be positive", ErrInvalidSpec)
	}
	if s.Triggers == 0 || s.Triggers&^allTriggers != 0 {
		return fmt.Errorf("%w: triggers: must be a non-empty set of enter, exit, dwell", ErrInvalidSpec)
	}
	if s.Expiration < 0 {
		return fmt.Errorf("%w: expiration: must not be negative", ErrInvalidSpec)
	}
	if s.Triggers.Has(TriggerDwell) && s.DwellDelay <= 0 {
		return fmt.Errorf("%w: dwell_delay: required with dwell trigger", ErrInvalidSpec)
	}
	if !s.Triggers.Has(TriggerDwell) && s.DwellDelay != 0 {
		return fmt.Errorf("%w: dwell_delay: only valid with dwell trigger", ErrInvalidSpec)
	}
	return nil
}

type RegistrationStatus int

const (
	RegistrationPending RegistrationStatus = iota
	RegistrationActive
	RegistrationFailed
)

func (s RegistrationStatus) String() string {
	switch s {
	case RegistrationPending:
		return "pending"
	case RegistrationActive:
		return "active"
	case RegistrationFailed:
		return "failed"
	}
	return "unknown"
}

func (s RegistrationStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type GeofenceRegistration struct {
	Spec   GeofenceSpec       `json:"spec"`
	Status RegistrationStatus `json:"status"`
	Reason string             `json:"reason,omitempty"`
}

// PendingHandle is the opaque target the geofencing backend invokes when a
// transition happens. One handle exists per registration id.
type PendingHandle struct {
	ID             string `json:"id"`
	RegistrationID string `json:"registration_id"`
	Target         string `json:"target"`
}

type GeofencingRequest struct {
	SubmissionID   string
	Geofences      []GeofenceSpec
	InitialTrigger Trigger
}

type GeofenceTransition struct {
	GeofenceID string    `json:"geofence_id"`
	Transition Trigger   `json:"transition"`
	Point      GeoPoint  `json:"point"`
	Timestamp  time.Time `json:"timestamp"`
}
