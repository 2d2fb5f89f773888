package service

import (
	"context"
	"fmt"
	"time"

	"github.com/nandanugg/geotrack/module/core/domain"
)

var (
	campusCenter = domain.GeoPoint{Lat: 36.987336, Lon: -86.451221}
	testUpdates  = domain.LocationUpdateConfig{
		Priority:        domain.PriorityBalanced,
		Interval:        10 * time.Second,
		FastestInterval: 5 * time.Second,
	}
)

// callLog records backend calls across mocks so tests can assert ordering.
type callLog struct {
	calls []string
}

func (l *callLog) add(format string, args ...any) {
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) count(name string) int {
	n := 0
	for _, c := range l.calls {
		if c == name {
			n++
		}
	}
	return n
}

type mockLocationBackend struct {
	log       *callLog
	connectFn func() error
	lastFn    func(ctx context.Context) (domain.GeoPoint, bool, error)
	requestFn func(cfg domain.LocationUpdateConfig, listener string) error
	removeFn  func(listener string) error
	connected bool
	listeners []string
}

func newMockLocationBackend() *mockLocationBackend {
	return &mockLocationBackend{log: &callLog{}}
}

func (m *mockLocationBackend) Connect() error {
	m.log.add("connect")
	if m.connectFn != nil {
		return m.connectFn()
	}
	return nil
}

func (m *mockLocationBackend) Disconnect() {
	m.log.add("disconnect")
	m.connected = false
}

func (m *mockLocationBackend) IsConnected() bool { return m.connected }

func (m *mockLocationBackend) LastLocation(ctx context.Context) (domain.GeoPoint, bool, error) {
	m.log.add("last")
	if m.lastFn != nil {
		return m.lastFn(ctx)
	}
	return domain.GeoPoint{}, false, nil
}

func (m *mockLocationBackend) RequestLocationUpdates(cfg domain.LocationUpdateConfig, listener string) error {
	m.log.add("request")
	m.listeners = append(m.listeners, listener)
	if m.requestFn != nil {
		return m.requestFn(cfg, listener)
	}
	return nil
}

func (m *mockLocationBackend) RemoveLocationUpdates(listener string) error {
	m.log.add("remove")
	if m.removeFn != nil {
		return m.removeFn(listener)
	}
	return nil
}

type mockGeofencingBackend struct {
	addFn    func(ctx context.Context, req domain.GeofencingRequest, handle domain.PendingHandle) error
	removeFn func(ctx context.Context, ids []string) error
	requests []domain.GeofencingRequest
	handles  []domain.PendingHandle
	removed  [][]string
}

func (m *mockGeofencingBackend) AddGeofences(ctx context.Context, req domain.GeofencingRequest, handle domain.PendingHandle) error {
	m.requests = append(m.requests, req)
	m.handles = append(m.handles, handle)
	if m.addFn != nil {
		return m.addFn(ctx, req, handle)
	}
	return nil
}

func (m *mockGeofencingBackend) RemoveGeofences(ctx context.Context, ids []string) error {
	m.removed = append(m.removed, ids)
	if m.removeFn != nil {
		return m.removeFn(ctx, ids)
	}
	return nil
}

func (m *mockGeofencingBackend) lastSubmission() string {
	return m.requests[len(m.requests)-1].SubmissionID
}

type mockPermissions struct {
	granted   bool
	requestFn func(capability string) error
	requests  int
}

func (m *mockPermissions) CheckPermission(_ string) bool { return m.granted }

func (m *mockPermissions) RequestPermission(capability string) error {
	m.requests++
	if m.requestFn != nil {
		return m.requestFn(capability)
	}
	return nil
}

type stubConn struct {
	connected bool
}

func (s *stubConn) Connected() bool { return s.connected }

type stubPerm struct {
	state domain.PermissionState
}

func (s *stubPerm) Check() domain.PermissionState { return s.state }

type eventRecorder struct {
	events []domain.Event
}

func (r *eventRecorder) Emit(e domain.Event) {
	r.events = append(r.events, e)
}

func (r *eventRecorder) ofType(t domain.EventType) []domain.Event {
	var out []domain.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *eventRecorder) types() []domain.EventType {
	out := make([]domain.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
