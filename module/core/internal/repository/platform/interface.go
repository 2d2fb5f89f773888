package platform

import (
	"context"

	"github.com/nandanugg/geotrack/module/core/domain"
)

// LocationBackend is the connection to the location-services provider.
// Connect, RequestLocationUpdates and the location stream resolve later
// through the Dispatcher.
type LocationBackend interface {
	Connect() error
	Disconnect()
	IsConnected() bool
	LastLocation(ctx context.Context) (domain.GeoPoint, bool, error)
	RequestLocationUpdates(cfg domain.LocationUpdateConfig, listener string) error
	RemoveLocationUpdates(listener string) error
}

// GeofencingBackend registers geofences. The outcome of AddGeofences arrives
// as a CallbackRegistrationResult carrying req.SubmissionID.
type GeofencingBackend interface {
	AddGeofences(ctx context.Context, req domain.GeofencingRequest, handle domain.PendingHandle) error
	RemoveGeofences(ctx context.Context, ids []string) error
}

type PermissionSubsystem interface {
	CheckPermission(capability string) bool
	RequestPermission(capability string) error
}

// Dispatcher receives backend callbacks. Implementations must not block.
type Dispatcher interface {
	Dispatch(cb domain.Callback)
}

type DispatcherFunc func(cb domain.Callback)

func (f DispatcherFunc) Dispatch(cb domain.Callback) { f(cb) }
