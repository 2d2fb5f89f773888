package service

import (
	"github.com/nandanugg/geotrack/module/core/domain"
)

// CurrentLocationMarker is the marker id ViewSync uses for the device.
const CurrentLocationMarker = "current-location"

// Surface is the map view ViewSync draws on.
type Surface interface {
	MoveCamera(p domain.GeoPoint)
	DrawCircle(id string, center domain.GeoPoint, radiusMeters float64)
	RemoveCircle(id string)
	PlaceMarker(id string, p domain.GeoPoint, title string)
	RemoveMarker(id string)
}

type circle struct {
	center domain.GeoPoint
	radius float64
}

// ViewSync turns core events into camera moves, circles and markers. It
// keeps at most one circle per geofence id and skips redundant draws.
type ViewSync struct {
	surface Surface
	titles  map[string]string

	camera    *domain.GeoPoint
	circles   map[string]circle
	lastPoint *domain.GeoPoint
}

// NewViewSync creates a ViewSync. titles maps geofence ids to the label of
// the marker placed at their center.
func NewViewSync(surface Surface, titles map[string]string) *ViewSync {
	return &ViewSync{
		surface: surface,
		titles:  titles,
		circles: make(map[string]circle),
	}
}

func (v *ViewSync) Emit(e domain.Event) {
	switch e.Type {
	case domain.EventLocationUpdate:
		if e.Location != nil {
			v.onLocation(e.Location.Point)
		}
	case domain.EventGeofenceRegistered:
		if e.Geofence != nil {
			v.onRegistered(*e.Geofence)
		}
	case domain.EventGeofenceRemoved, domain.EventGeofenceFailed:
		v.removeCircle(e.GeofenceID)
	}
}

func (v *ViewSync) onLocation(p domain.GeoPoint) {
	if v.lastPoint == nil || *v.lastPoint != p {
		v.surface.PlaceMarker(CurrentLocationMarker, p, "Current location")
		v.lastPoint = &p
	}
	v.moveCamera(p)
}

func (v *ViewSync) onRegistered(spec domain.GeofenceSpec) {
	next := circle{center: spec.Center, radius: spec.RadiusMeters}
	if cur, ok := v.circles[spec.ID]; ok {
		if cur == next {
			return
		}
		v.removeCircle(spec.ID)
	}

	v.surface.DrawCircle(spec.ID, spec.Center, spec.RadiusMeters)
	v.circles[spec.ID] = next

	title := v.titles[spec.ID]
	if title == "" {
		title = spec.ID
	}
	v.surface.PlaceMarker(markerID(spec.ID), spec.Center, title)
	if v.lastPoint == nil {
		v.moveCamera(spec.Center)
	}
}

func (v *ViewSync) removeCircle(id string) {
	if _, ok := v.circles[id]; !ok {
		return
	}
	v.surface.RemoveCircle(id)
	v.surface.RemoveMarker(markerID(id))
	delete(v.circles, id)
}

func (v *ViewSync) moveCamera(p domain.GeoPoint) {
	if v.camera != nil && *v.camera == p {
		return
	}
	v.surface.MoveCamera(p)
	v.camera = &p
}

// CircleCount reports how many geofence circles are drawn.
func (v *ViewSync) CircleCount() int {
	return len(v.circles)
}

func markerID(geofenceID string) string {
	return "geofence:" + geofenceID
}
