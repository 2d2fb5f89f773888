package database

import (
	"context"
	"errors"
	"time"

	"github.com/nandanugg/geotrack/module/core/domain"
)

var ErrNotFound = errors.New("not found")

type LocationRepository interface {
	Insert(ctx context.Context, fix *domain.Fix) error
	GetLatest(ctx context.Context, deviceID string) (*domain.Fix, error)
	GetHistory(ctx context.Context, query *domain.HistoryQuery) ([]domain.Fix, error)
}

// StoredGeofence is a geofence as the geofencing engine persists it.
type StoredGeofence struct {
	Spec    domain.GeofenceSpec
	Handle  domain.PendingHandle
	AddedAt time.Time
}

type GeofenceRepository interface {
	Upsert(ctx context.Context, g *StoredGeofence) error
	Delete(ctx context.Context, ids []string) error
	List(ctx context.Context) ([]StoredGeofence, error)
}
