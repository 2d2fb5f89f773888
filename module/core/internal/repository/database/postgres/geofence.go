package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/nandanugg/geotrack/module/core/domain"
	"github.com/nandanugg/geotrack/module/core/internal/repository/database"
)

var _ database.GeofenceRepository = (*GeofenceRepo)(nil)

type GeofenceRepo struct {
	db *sql.DB
}

func NewGeofenceRepo(db *sql.DB) *GeofenceRepo {
	return &GeofenceRepo{db: db}
}

func (r *GeofenceRepo) Upsert(ctx context.Context, g *database.StoredGeofence) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO geofences (id, latitude, longitude, radius_meters, expiration_ms, triggers, dwell_delay_ms, handle_id, handle_target, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude,
			radius_meters = EXCLUDED.radius_meters, expiration_ms = EXCLUDED.expiration_ms, triggers = EXCLUDED.triggers,
			dwell_delay_ms = EXCLUDED.dwell_delay_ms, handle_id = EXCLUDED.handle_id, handle_target = EXCLUDED.handle_target,
			added_at = EXCLUDED.added_at`,
		g.Spec.ID, g.Spec.Center.Lat, g.Spec.Center.Lon, g.Spec.RadiusMeters,
		g.Spec.Expiration.Milliseconds(), int(g.Spec.Triggers), g.Spec.DwellDelay.Milliseconds(),
		g.Handle.ID, g.Handle.Target, g.AddedAt,
	)
	return err
}

func (r *GeofenceRepo) Delete(ctx context.Context, ids []string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM geofences WHERE id = ANY($1)`, pq.Array(ids))
	return err
}

func (r *GeofenceRepo) List(ctx context.Context) ([]database.StoredGeofence, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, latitude, longitude, radius_meters, expiration_ms, triggers, dwell_delay_ms, handle_id, handle_target, added_at FROM geofences ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []database.StoredGeofence
	for rows.Next() {
		var (
			g                     database.StoredGeofence
			expirationMs, dwellMs int64
			triggers              int
		)
		if err := rows.Scan(&g.Spec.ID, &g.Spec.Center.Lat, &g.Spec.Center.Lon, &g.Spec.RadiusMeters,
			&expirationMs, &triggers, &dwellMs, &g.Handle.ID, &g.Handle.Target, &g.AddedAt); err != nil {
			return nil, err
		}
		g.Spec.Expiration = time.Duration(expirationMs) * time.Millisecond
		g.Spec.DwellDelay = time.Duration(dwellMs) * time.Millisecond
		g.Spec.Triggers = domain.Trigger(triggers)
		g.Handle.RegistrationID = g.Spec.ID
		results = append(results, g)
	}
	return results, rows.Err()
}
