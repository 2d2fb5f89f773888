package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nandanugg/geotrack/module/core/domain"
)

func campusSpec(radius float64) domain.GeofenceSpec {
	return domain.GeofenceSpec{
		ID:           "wku-main-campus",
		Center:       campusCenter,
		RadiusMeters: radius,
		Triggers:     domain.TriggerEnter | domain.TriggerExit,
	}
}

func newTestCoordinator(connected bool, perm domain.PermissionState) (*GeofenceCoordinator, *mockGeofencingBackend, *eventRecorder) {
	backend := &mockGeofencingBackend{}
	events := &eventRecorder{}
	c := NewGeofenceCoordinator(backend, &stubConn{connected: connected}, &stubPerm{state: perm}, "geotrack.app", events, nil)
	return c, backend, events
}

func TestGeofence_CampusScenario(t *testing.T) {
	c, backend, events := newTestCoordinator(true, domain.PermissionGranted)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx, campusSpec(50)))

	reg, ok := c.Registration("wku-main-campus")
	require.True(t, ok)
	assert.Equal(t, domain.RegistrationPending, reg.Status)
	require.Len(t, backend.requests, 1)
	assert.Equal(t, domain.TriggerEnter, backend.requests[0].InitialTrigger)

	c.OnRegistrationResult(backend.lastSubmission(), []string{"wku-main-campus"}, nil)

	reg, _ = c.Registration("wku-main-campus")
	assert.Equal(t, domain.RegistrationActive, reg.Status)

	registered := events.ofType(domain.EventGeofenceRegistered)
	require.Len(t, registered, 1)
	assert.Equal(t, 50.0, registered[0].Geofence.RadiusMeters)
	assert.Equal(t, domain.TriggerEnter|domain.TriggerExit, registered[0].Geofence.Triggers)
	assert.True(t, registered[0].Geofence.Triggers.Has(domain.TriggerExit))
}

func TestGeofence_PermissionCheckedFirst(t *testing.T) {
	c, backend, _ := newTestCoordinator(false, domain.PermissionDenied)

	err := c.Start(context.Background(), campusSpec(50))
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Empty(t, backend.requests)
}

func TestGeofence_PreconditionFailed(t *testing.T) {
	c, backend, _ := newTestCoordinator(false, domain.PermissionGranted)

	err := c.Start(context.Background(), campusSpec(50))
	assert.ErrorIs(t, err, domain.ErrPreconditionFailed)
	assert.Empty(t, backend.requests)
	_, ok := c.Registration("wku-main-campus")
	assert.False(t, ok)
}

func TestGeofence_InvalidSpec(t *testing.T) {
	c, backend, _ := newTestCoordinator(true, domain.PermissionGranted)

	err := c.Start(context.Background(), campusSpec(0))
	assert.ErrorIs(t, err, domain.ErrInvalidSpec)
	assert.Empty(t, backend.requests)
}

func TestGeofence_SupersededResultIgnored(t *testing.T) {
	c, backend, events := newTestCoordinator(true, domain.PermissionGranted)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx, campusSpec(50)))
	first := backend.lastSubmission()
	require.NoError(t, c.Start(ctx, campusSpec(75)))
	second := backend.lastSubmission()

	c.OnRegistrationResult(first, []string{"wku-main-campus"}, errors.New("late failure"))
	reg, _ := c.Registration("wku-main-campus")
	assert.Equal(t, domain.RegistrationPending, reg.Status)
	assert.Empty(t, events.ofType(domain.EventGeofenceFailed))

	c.OnRegistrationResult(second, []string{"wku-main-campus"}, nil)
	reg, _ = c.Registration("wku-main-campus")
	assert.Equal(t, domain.RegistrationActive, reg.Status)
	assert.Equal(t, 75.0, reg.Spec.RadiusMeters)
	assert.Len(t, c.Registrations(), 1)
}

func TestGeofence_ReplaceActiveReemits(t *testing.T) {
	c, backend, events := newTestCoordinator(true, domain.PermissionGranted)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx, campusSpec(50)))
	c.OnRegistrationResult(backend.lastSubmission(), []string{"wku-main-campus"}, nil)
	require.NoError(t, c.Start(ctx, campusSpec(120)))
	c.OnRegistrationResult(backend.lastSubmission(), []string{"wku-main-campus"}, nil)

	registered := events.ofType(domain.EventGeofenceRegistered)
	require.Len(t, registered, 2)
	assert.Equal(t, 120.0, registered[1].Geofence.RadiusMeters)

	reg, _ := c.Registration("wku-main-campus")
	assert.Equal(t, 120.0, reg.Spec.RadiusMeters)

	// both submissions share the cached handle
	require.Len(t, backend.handles, 2)
	assert.Equal(t, backend.handles[0], backend.handles[1])
}

func TestGeofence_BackendFailure(t *testing.T) {
	c, backend, events := newTestCoordinator(true, domain.PermissionGranted)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx, campusSpec(50)))
	c.OnRegistrationResult(backend.lastSubmission(), []string{"wku-main-campus"}, errors.New("too many geofences"))

	reg, _ := c.Registration("wku-main-campus")
	assert.Equal(t, domain.RegistrationFailed, reg.Status)
	assert.Contains(t, reg.Reason, "too many geofences")
	require.Len(t, events.ofType(domain.EventGeofenceFailed), 1)
}

func TestGeofence_SyncSubmitError(t *testing.T) {
	c, backend, events := newTestCoordinator(true, domain.PermissionGranted)
	backend.addFn = func(context.Context, domain.GeofencingRequest, domain.PendingHandle) error {
		return errors.New("binder died")
	}

	err := c.Start(context.Background(), campusSpec(50))

	var regErr *domain.RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "wku-main-campus", regErr.ID)
	assert.ErrorIs(t, err, domain.ErrGeofenceRegistrationFailed)
	reg, _ := c.Registration("wku-main-campus")
	assert.Equal(t, domain.RegistrationFailed, reg.Status)
	assert.Len(t, events.ofType(domain.EventGeofenceFailed), 1)
}

func TestGeofence_StopIdleIsNoop(t *testing.T) {
	c, backend, events := newTestCoordinator(true, domain.PermissionGranted)

	require.NoError(t, c.Stop(context.Background(), "never-started"))
	assert.Empty(t, backend.removed)
	assert.Empty(t, events.events)
}

func TestGeofence_StopKeepsHandle(t *testing.T) {
	c, backend, events := newTestCoordinator(true, domain.PermissionGranted)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx, campusSpec(50)))
	handle, ok := c.Handle("wku-main-campus")
	require.True(t, ok)

	require.NoError(t, c.Stop(ctx, "wku-main-campus"))
	assert.Equal(t, [][]string{{"wku-main-campus"}}, backend.removed)
	require.Len(t, events.ofType(domain.EventGeofenceRemoved), 1)
	_, ok = c.Registration("wku-main-campus")
	assert.False(t, ok)

	// a late result for the stopped submission is ignored
	c.OnRegistrationResult(backend.lastSubmission(), []string{"wku-main-campus"}, nil)
	assert.Empty(t, events.ofType(domain.EventGeofenceRegistered))

	require.NoError(t, c.Start(ctx, campusSpec(50)))
	again, _ := c.Handle("wku-main-campus")
	assert.Equal(t, handle, again)
}

func TestGeofence_StopPendingIgnoresLateResults(t *testing.T) {
	c, backend, events := newTestCoordinator(true, domain.PermissionGranted)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx, campusSpec(50)))
	reg, ok := c.Registration("wku-main-campus")
	require.True(t, ok)
	require.Equal(t, domain.RegistrationPending, reg.Status)
	submission := backend.lastSubmission()

	require.NoError(t, c.Stop(ctx, "wku-main-campus"))
	assert.Equal(t, [][]string{{"wku-main-campus"}}, backend.removed)

	c.OnRegistrationResult(submission, []string{"wku-main-campus"}, nil)
	c.OnRegistrationResult(submission, []string{"wku-main-campus"}, errors.New("late failure"))

	_, ok = c.Registration("wku-main-campus")
	assert.False(t, ok)
	assert.Empty(t, c.Registrations())
	assert.Empty(t, events.ofType(domain.EventGeofenceRegistered))
	assert.Empty(t, events.ofType(domain.EventGeofenceFailed))
	assert.Equal(t, []domain.EventType{domain.EventGeofenceRemoved}, events.types())
}

func TestGeofence_StopBackendError(t *testing.T) {
	c, backend, _ := newTestCoordinator(true, domain.PermissionGranted)
	backend.removeFn = func(context.Context, []string) error { return errors.New("store down") }
	ctx := context.Background()

	require.NoError(t, c.Start(ctx, campusSpec(50)))
	require.Error(t, c.Stop(ctx, "wku-main-campus"))

	_, ok := c.Registration("wku-main-campus")
	assert.False(t, ok)
}

func TestGeofence_Transition(t *testing.T) {
	c, backend, events := newTestCoordinator(true, domain.PermissionGranted)
	ctx := context.Background()
	tr := domain.GeofenceTransition{
		GeofenceID: "wku-main-campus",
		Transition: domain.TriggerEnter,
		Point:      campusCenter,
		Timestamp:  time.Unix(1715003456, 0),
	}

	require.NoError(t, c.Start(ctx, campusSpec(50)))
	handle, _ := c.Handle("wku-main-campus")

	// pending registrations do not notify
	c.OnTransition(handle, tr)
	assert.Empty(t, events.ofType(domain.EventGeofenceTransition))

	c.OnRegistrationResult(backend.lastSubmission(), []string{"wku-main-campus"}, nil)

	c.OnTransition(domain.PendingHandle{ID: "foreign", RegistrationID: "wku-main-campus"}, tr)
	assert.Empty(t, events.ofType(domain.EventGeofenceTransition))

	c.OnTransition(handle, tr)
	got := events.ofType(domain.EventGeofenceTransition)
	require.Len(t, got, 1)
	assert.Equal(t, domain.TriggerEnter, got[0].Transition.Transition)
	assert.Equal(t, "wku-main-campus", got[0].GeofenceID)
}

func TestGeofence_SendFailed(t *testing.T) {
	c, backend, events := newTestCoordinator(true, domain.PermissionGranted)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx, campusSpec(50)))
	c.OnRegistrationResult(backend.lastSubmission(), []string{"wku-main-campus"}, nil)
	handle, _ := c.Handle("wku-main-campus")

	c.OnSendFailed(handle, errors.New("exchange missing"))

	reg, _ := c.Registration("wku-main-campus")
	assert.Equal(t, domain.RegistrationFailed, reg.Status)
	assert.Contains(t, reg.Reason, domain.ErrSendFailed.Error())
	assert.Len(t, events.ofType(domain.EventGeofenceFailed), 1)
}
