package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nandanugg/geotrack/module/core/domain"
	"github.com/nandanugg/geotrack/module/core/internal/repository/platform"
)

type connectionStater interface {
	Connected() bool
}

type permissionChecker interface {
	Check() domain.PermissionState
}

// LocationTracker owns the single location subscription.
type LocationTracker struct {
	backend platform.LocationBackend
	conn    connectionStater
	perm    permissionChecker
	cfg     domain.LocationUpdateConfig
	sink    EventSink
	logger  *slog.Logger
	now     func() time.Time

	listener    string
	listenerCfg domain.LocationUpdateConfig
}

func NewLocationTracker(backend platform.LocationBackend, conn connectionStater, perm permissionChecker,
	cfg domain.LocationUpdateConfig, sink EventSink, logger *slog.Logger) *LocationTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocationTracker{
		backend: backend,
		conn:    conn,
		perm:    perm,
		cfg:     cfg,
		sink:    sinkOrDiscard(sink),
		logger:  logger,
		now:     time.Now,
	}
}

func (t *LocationTracker) Subscribed() bool {
	return t.listener != ""
}

func (t *LocationTracker) gate(op string) error {
	if t.perm.Check() != domain.PermissionGranted {
		return fmt.Errorf("%s: %w", op, domain.ErrPermissionDenied)
	}
	if !t.conn.Connected() {
		return fmt.Errorf("%s: %w: not connected", op, domain.ErrPreconditionFailed)
	}
	return nil
}

// LastKnown returns the backend's cached position, if it has one.
func (t *LocationTracker) LastKnown(ctx context.Context) (domain.GeoPoint, bool, error) {
	if err := t.gate("last known location"); err != nil {
		return domain.GeoPoint{}, false, err
	}
	p, ok, err := t.backend.LastLocation(ctx)
	if err != nil {
		return domain.GeoPoint{}, false, fmt.Errorf("last known location: %w", err)
	}
	return p, ok, nil
}

func (t *LocationTracker) StartUpdates(cfg domain.LocationUpdateConfig) error {
	if err := t.gate("start updates"); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("start updates: %w", err)
	}
	if t.listener != "" {
		if t.listenerCfg == cfg {
			return nil
		}
		t.StopUpdates()
	}

	listener := uuid.NewString()
	if err := t.backend.RequestLocationUpdates(cfg, listener); err != nil {
		return fmt.Errorf("start updates: %w", err)
	}
	t.listener = listener
	t.listenerCfg = cfg
	t.logger.Info("location updates started", "listener", listener,
		"priority", cfg.Priority.String(), "interval", cfg.Interval)
	return nil
}

func (t *LocationTracker) StopUpdates() {
	if t.listener == "" {
		return
	}
	listener := t.listener
	t.listener = ""
	if err := t.backend.RemoveLocationUpdates(listener); err != nil {
		t.logger.Warn("remove location updates", "listener", listener, "error", err)
		return
	}
	t.logger.Info("location updates stopped", "listener", listener)
}

// OnConnected applies the connect policy: emit the cached fix when there is
// one, otherwise subscribe so a first fix eventually arrives.
func (t *LocationTracker) OnConnected(ctx context.Context) error {
	if t.listener != "" {
		return nil
	}
	p, ok, err := t.LastKnown(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return t.StartUpdates(t.cfg)
	}
	t.sink.Emit(domain.Event{
		Type:     domain.EventLocationUpdate,
		Location: &domain.LocationUpdate{Point: p, Timestamp: t.now(), Source: domain.SourceCached},
	})
	return nil
}

func (t *LocationTracker) OnLocationChanged(listener string, p domain.GeoPoint, ts time.Time) {
	if listener == "" || listener != t.listener {
		t.logger.Debug("dropping update for stale listener", "listener", listener)
		return
	}
	if ts.IsZero() {
		ts = t.now()
	}
	t.sink.Emit(domain.Event{
		Type:     domain.EventLocationUpdate,
		Location: &domain.LocationUpdate{Point: p, Timestamp: ts, Source: domain.SourceFresh},
	})
}
