package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/nandanugg/geotrack/module/core/domain"
	"github.com/nandanugg/geotrack/module/core/internal/repository/database"
)

func TestGeofenceUpsert_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	added := time.Unix(1715003456, 0)
	mock.ExpectExec(`INSERT INTO geofences (.+) ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("campus", 36.987336, -86.451221, 50.0, int64(3600000), 7, int64(30000), "h-1", "geofence.transitions", added).
		WillReturnResult(sqlmock.NewResult(1, 1))

	repo := NewGeofenceRepo(db)
	err = repo.Upsert(context.Background(), &database.StoredGeofence{
		Spec: domain.GeofenceSpec{
			ID:           "campus",
			Center:       domain.GeoPoint{Lat: 36.987336, Lon: -86.451221},
			RadiusMeters: 50,
			Expiration:   time.Hour,
			Triggers:     domain.TriggerEnter | domain.TriggerExit | domain.TriggerDwell,
			DwellDelay:   30 * time.Second,
		},
		Handle:  domain.PendingHandle{ID: "h-1", RegistrationID: "campus", Target: "geofence.transitions"},
		AddedAt: added,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGeofenceDelete_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec(`DELETE FROM geofences WHERE id = ANY`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	repo := NewGeofenceRepo(db)
	if err := repo.Delete(context.Background(), []string{"campus", "library"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGeofenceList_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	added := time.Unix(1715003456, 0)
	rows := sqlmock.NewRows([]string{"id", "latitude", "longitude", "radius_meters", "expiration_ms", "triggers", "dwell_delay_ms", "handle_id", "handle_target", "added_at"}).
		AddRow("campus", 36.987336, -86.451221, 50.0, int64(0), 3, int64(0), "h-1", "geofence.transitions", added)

	mock.ExpectQuery(`SELECT id, latitude, longitude, radius_meters, expiration_ms, triggers, dwell_delay_ms, handle_id, handle_target, added_at FROM geofences`).
		WillReturnRows(rows)

	repo := NewGeofenceRepo(db)
	results, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 geofence, got %d", len(results))
	}
	g := results[0]
	if g.Spec.Triggers != domain.TriggerEnter|domain.TriggerExit {
		t.Errorf("expected enter|exit, got %s", g.Spec.Triggers)
	}
	if g.Spec.Expiration != 0 {
		t.Errorf("expected no expiration, got %v", g.Spec.Expiration)
	}
	if g.Handle.RegistrationID != "campus" {
		t.Errorf("expected handle for campus, got %s", g.Handle.RegistrationID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGeofenceList_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`SELECT (.+) FROM geofences`).WillReturnError(sqlmock.ErrCancelled)

	repo := NewGeofenceRepo(db)
	if _, err := repo.List(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
