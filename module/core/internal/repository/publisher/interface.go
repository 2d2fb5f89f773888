package publisher

import (
	"context"

	"github.com/nandanugg/geotrack/module/core/domain"
)

type EventPublisher interface {
	PublishEvent(ctx context.Context, e domain.Event) error
}

// TransitionPublisher delivers a geofence transition to the target of a
// pending handle.
type TransitionPublisher interface {
	PublishTransition(ctx context.Context, handle domain.PendingHandle, tr domain.GeofenceTransition) error
}
