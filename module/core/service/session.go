package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nandanugg/geotrack/module/core/domain"
	"github.com/nandanugg/geotrack/module/core/internal/repository/platform"
)

var ErrSessionClosed = errors.New("session closed")

const queueSize = 256

type SessionConfig struct {
	Capability   string
	HandleTarget string
	Updates      domain.LocationUpdateConfig
	// Geofences are started every time the connection becomes ready, unless
	// a registration for the id is already pending or active.
	Geofences []domain.GeofenceSpec
}

type Snapshot struct {
	Connection    domain.ConnectionState        `json:"connection"`
	Permission    domain.PermissionState        `json:"permission"`
	Subscribed    bool                          `json:"subscribed"`
	Registrations []domain.GeofenceRegistration `json:"registrations"`
}

// Session runs every component on a single queue goroutine. Backend callbacks
// and caller commands are both posted to that queue, so component state is
// only ever touched from Run.
type Session struct {
	Permission *PermissionGate
	Connection *ConnectionManager
	Tracker    *LocationTracker
	Geofences  *GeofenceCoordinator

	initial []domain.GeofenceSpec
	logger  *slog.Logger

	ctx   context.Context
	queue chan func()
	done  chan struct{}
}

func NewSession(location platform.LocationBackend, geofencing platform.GeofencingBackend,
	perms platform.PermissionSubsystem, cfg SessionConfig, sink EventSink, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	sink = sinkOrDiscard(sink)

	gate := NewPermissionGate(perms, cfg.Capability, sink, logger.With("component", "permission"))
	conn := NewConnectionManager(location, sink, logger.With("component", "connection"))
	tracker := NewLocationTracker(location, conn, gate, cfg.Updates, sink, logger.With("component", "tracker"))
	conn.SetTracker(tracker)
	geofences := NewGeofenceCoordinator(geofencing, conn, gate, cfg.HandleTarget, sink, logger.With("component", "geofence"))

	return &Session{
		Permission: gate,
		Connection: conn,
		Tracker:    tracker,
		Geofences:  geofences,
		initial:    cfg.Geofences,
		logger:     logger,
		ctx:        context.Background(),
		queue:      make(chan func(), queueSize),
		done:       make(chan struct{}),
	}
}

// Run processes the queue until ctx is cancelled, then disconnects.
func (s *Session) Run(ctx context.Context) error {
	s.ctx = ctx
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			s.drain()
			s.Connection.Disconnect()
			return nil
		case fn := <-s.queue:
			fn()
		}
	}
}

func (s *Session) drain() {
	for {
		select {
		case fn := <-s.queue:
			fn()
		default:
			return
		}
	}
}

// Dispatch delivers a backend callback. It implements platform.Dispatcher
// and never blocks: a callback arriving after close or while the queue is
// full is dropped.
func (s *Session) Dispatch(cb domain.Callback) {
	select {
	case <-s.done:
		s.logger.Debug("dropping callback after close", "kind", cb.Kind.String())
		return
	default:
	}

	select {
	case s.queue <- func() { s.handle(cb) }:
	default:
		s.logger.Warn("dropping callback, queue full", "kind", cb.Kind.String(), "size", queueSize)
	}
}

func (s *Session) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case s.queue <- func() { errc <- fn() }:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	}
}

func (s *Session) handle(cb domain.Callback) {
	switch cb.Kind {
	case domain.CallbackConnected:
		if s.Connection.OnConnected() {
			s.onConnected()
		}
	case domain.CallbackSuspended:
		s.Connection.OnSuspended(cb.SuspendReason)
	case domain.CallbackConnectionFailed:
		s.Connection.OnConnectionFailed(cb.Code, cb.HasResolution)
	case domain.CallbackLocationChanged:
		s.Tracker.OnLocationChanged(cb.Listener, cb.Point, cb.Timestamp)
	case domain.CallbackRegistrationResult:
		s.Geofences.OnRegistrationResult(cb.SubmissionID, cb.GeofenceIDs, cb.Err)
	case domain.CallbackPermissionResult:
		s.Permission.OnResult(cb.Granted)
	case domain.CallbackTransition:
		if cb.Transition != nil {
			s.Geofences.OnTransition(cb.Handle, *cb.Transition)
		}
	case domain.CallbackSendFailed:
		s.Geofences.OnSendFailed(cb.Handle, cb.Err)
	default:
		s.logger.Warn("unknown callback", "kind", int(cb.Kind))
	}
}

// onConnected starts the work that waits for the connection. Permission is
// never prompted from here; without a grant the work is skipped.
func (s *Session) onConnected() {
	if s.Permission.Check() != domain.PermissionGranted {
		s.logger.Warn("connected without location permission, skipping location work")
		return
	}
	if err := s.Tracker.OnConnected(s.ctx); err != nil {
		s.logger.Error("location tracker connect policy", "error", err)
	}
	for _, spec := range s.initial {
		if reg, ok := s.Geofences.Registration(spec.ID); ok && reg.Status != domain.RegistrationFailed {
			continue
		}
		if err := s.Geofences.Start(s.ctx, spec); err != nil {
			s.logger.Error("start configured geofence", "id", spec.ID, "error", err)
		}
	}
}

// Connect acquires the location permission if needed and then connects.
func (s *Session) Connect(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.Permission.Request(func(state domain.PermissionState) {
			if state != domain.PermissionGranted {
				s.logger.Warn("not connecting, location permission denied")
				return
			}
			s.Connection.Connect()
		})
		return nil
	})
}

func (s *Session) Disconnect(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.Connection.Disconnect()
		return nil
	})
}

func (s *Session) StartGeofence(ctx context.Context, spec domain.GeofenceSpec) error {
	return s.do(ctx, func() error {
		return s.Geofences.Start(s.ctx, spec)
	})
}

func (s *Session) StopGeofence(ctx context.Context, id string) error {
	return s.do(ctx, func() error {
		return s.Geofences.Stop(s.ctx, id)
	})
}

func (s *Session) StartUpdates(ctx context.Context, cfg domain.LocationUpdateConfig) error {
	return s.do(ctx, func() error {
		return s.Tracker.StartUpdates(cfg)
	})
}

func (s *Session) StopUpdates(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.Tracker.StopUpdates()
		return nil
	})
}

// RequestPermission prompts for the location permission and waits for the
// answer.
func (s *Session) RequestPermission(ctx context.Context) (domain.PermissionState, error) {
	result := make(chan domain.PermissionState, 1)
	err := s.do(ctx, func() error {
		s.Permission.Request(func(state domain.PermissionState) { result <- state })
		return nil
	})
	if err != nil {
		return domain.PermissionUnknown, err
	}
	select {
	case state := <-result:
		return state, nil
	case <-ctx.Done():
		return domain.PermissionUnknown, ctx.Err()
	case <-s.done:
		return domain.PermissionUnknown, ErrSessionClosed
	}
}

func (s *Session) LastKnown(ctx context.Context) (domain.GeoPoint, bool, error) {
	var (
		p  domain.GeoPoint
		ok bool
	)
	err := s.do(ctx, func() error {
		var err error
		p, ok, err = s.Tracker.LastKnown(s.ctx)
		return err
	})
	return p, ok, err
}

func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.do(ctx, func() error {
		snap = Snapshot{
			Connection:    s.Connection.State(),
			Permission:    s.Permission.Check(),
			Subscribed:    s.Tracker.Subscribed(),
			Registrations: s.Geofences.Registrations(),
		}
		return nil
	})
	return snap, err
}

func (s *Session) Registration(ctx context.Context, id string) (domain.GeofenceRegistration, bool, error) {
	var (
		reg domain.GeofenceRegistration
		ok  bool
	)
	err := s.do(ctx, func() error {
		reg, ok = s.Geofences.Registration(id)
		return nil
	})
	return reg, ok, err
}
