package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/nandanugg/geotrack/module/core/domain"
	"github.com/nandanugg/geotrack/module/core/internal/repository/database"
)

var _ database.LocationRepository = (*LocationRepo)(nil)

type LocationRepo struct {
	db *sql.DB
}

func NewLocationRepo(db *sql.DB) *LocationRepo {
	return &LocationRepo{db: db}
}

func (r *LocationRepo) Insert(ctx context.Context, fix *domain.Fix) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO device_locations (device_id, latitude, longitude, timestamp) VALUES ($1, $2, $3, $4)`,
		fix.DeviceID, fix.Point.Lat, fix.Point.Lon, fix.Timestamp,
	)
	return err
}

func (r *LocationRepo) GetLatest(ctx context.Context, deviceID string) (*domain.Fix, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT device_id, latitude, longitude, timestamp FROM device_locations WHERE device_id = $1 ORDER BY timestamp DESC LIMIT 1`,
		deviceID,
	)

	var fix domain.Fix
	if err := row.Scan(&fix.DeviceID, &fix.Point.Lat, &fix.Point.Lon, &fix.Timestamp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, err
	}
	return &fix, nil
}

func (r *LocationRepo) GetHistory(ctx context.Context, query *domain.HistoryQuery) ([]domain.Fix, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT device_id, latitude, longitude, timestamp FROM device_locations WHERE device_id = $1 AND timestamp >= $2 AND timestamp <= $3 ORDER BY timestamp ASC`,
		query.DeviceID, query.Start, query.End,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []domain.Fix
	for rows.Next() {
		var fix domain.Fix
		if err := rows.Scan(&fix.DeviceID, &fix.Point.Lat, &fix.Point.Lon, &fix.Timestamp); err != nil {
			return nil, err
		}
		results = append(results, fix)
	}
	return results, rows.Err()
}
