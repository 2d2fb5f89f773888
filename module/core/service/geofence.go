package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/nandanugg/geotrack/module/core/domain"
	"github.com/nandanugg/geotrack/module/core/internal/repository/platform"
)

type registration struct {
	spec       domain.GeofenceSpec
	status     domain.RegistrationStatus
	reason     string
	submission string
}

// GeofenceCoordinator submits geofences and tracks one registration per id.
type GeofenceCoordinator struct {
	backend platform.GeofencingBackend
	conn    connectionStater
	perm    permissionChecker
	target  string
	sink    EventSink
	logger  *slog.Logger

	registrations map[string]*registration
	handles       map[string]domain.PendingHandle
}

// NewGeofenceCoordinator creates a coordinator whose pending handles route
// transitions to target.
func NewGeofenceCoordinator(backend platform.GeofencingBackend, conn connectionStater, perm permissionChecker,
	target string, sink EventSink, logger *slog.Logger) *GeofenceCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &GeofenceCoordinator{
		backend:       backend,
		conn:          conn,
		perm:          perm,
		target:        target,
		sink:          sinkOrDiscard(sink),
		logger:        logger,
		registrations: make(map[string]*registration),
		handles:       make(map[string]domain.PendingHandle),
	}
}

// handleFor returns the cached handle for id, creating it on first use.
func (c *GeofenceCoordinator) handleFor(id string) domain.PendingHandle {
	if h, ok := c.handles[id]; ok {
		return h
	}
	h := domain.PendingHandle{ID: uuid.NewString(), RegistrationID: id, Target: c.target}
	c.handles[id] = h
	return h
}

// Start submits spec, replacing any registration with the same id. The
// outcome of a replaced submission is ignored when it arrives.
func (c *GeofenceCoordinator) Start(ctx context.Context, spec domain.GeofenceSpec) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("start geofence: %w", err)
	}
	if c.perm.Check() != domain.PermissionGranted {
		return fmt.Errorf("start geofence %s: %w", spec.ID, domain.ErrPermissionDenied)
	}
	if !c.conn.Connected() {
		return fmt.Errorf("start geofence %s: %w: not connected", spec.ID, domain.ErrPreconditionFailed)
	}

	if prev, ok := c.registrations[spec.ID]; ok && prev.status == domain.RegistrationPending {
		c.logger.Info("superseding pending geofence submission", "id", spec.ID, "submission", prev.submission)
	}

	reg := &registration{
		spec:       spec,
		status:     domain.RegistrationPending,
		submission: uuid.NewString(),
	}
	c.registrations[spec.ID] = reg

	req := domain.GeofencingRequest{
		SubmissionID:   reg.submission,
		Geofences:      []domain.GeofenceSpec{spec},
		InitialTrigger: domain.TriggerEnter,
	}
	if err := c.backend.AddGeofences(ctx, req, c.handleFor(spec.ID)); err != nil {
		return c.failRegistration(reg, err)
	}

	c.logger.Info("geofence submitted", "id", spec.ID, "submission", reg.submission,
		"radius", spec.RadiusMeters, "triggers", spec.Triggers.String())
	return nil
}

func (c *GeofenceCoordinator) OnRegistrationResult(submission string, ids []string, err error) {
	for _, id := range ids {
		reg, ok := c.registrations[id]
		if !ok || reg.submission != submission {
			c.logger.Debug("ignoring stale registration result", "id", id, "submission", submission)
			continue
		}
		if reg.status != domain.RegistrationPending {
			continue
		}
		if err != nil {
			_ = c.failRegistration(reg, err)
			continue
		}

		reg.status = domain.RegistrationActive
		reg.reason = ""
		spec := reg.spec
		c.logger.Info("geofence active", "id", id)
		c.sink.Emit(domain.Event{Type: domain.EventGeofenceRegistered, Geofence: &spec, GeofenceID: id})
	}
}

// OnTransition forwards a transition delivered through a pending handle.
// Transitions for unknown handles or inactive registrations are dropped.
func (c *GeofenceCoordinator) OnTransition(handle domain.PendingHandle, tr domain.GeofenceTransition) {
	cached, ok := c.handles[tr.GeofenceID]
	if !ok || cached.ID != handle.ID {
		c.logger.Warn("dropping transition for unknown handle", "id", tr.GeofenceID, "handle", handle.ID)
		return
	}
	reg, ok := c.registrations[tr.GeofenceID]
	if !ok || reg.status != domain.RegistrationActive {
		c.logger.Debug("dropping transition for inactive geofence", "id", tr.GeofenceID)
		return
	}
	c.sink.Emit(domain.Event{
		Type:       domain.EventGeofenceTransition,
		GeofenceID: tr.GeofenceID,
		Transition: &tr,
	})
}

// OnSendFailed fails the registration whose handle could not be dispatched.
func (c *GeofenceCoordinator) OnSendFailed(handle domain.PendingHandle, cause error) {
	id := handle.RegistrationID
	cached, ok := c.handles[id]
	if !ok || cached.ID != handle.ID {
		return
	}
	reg, ok := c.registrations[id]
	if !ok {
		return
	}
	if cause == nil {
		cause = domain.ErrSendFailed
	} else if !errors.Is(cause, domain.ErrSendFailed) {
		cause = fmt.Errorf("%w: %w", domain.ErrSendFailed, cause)
	}
	_ = c.failRegistration(reg, cause)
}

func (c *GeofenceCoordinator) failRegistration(reg *registration, cause error) error {
	reg.status = domain.RegistrationFailed
	reg.reason = cause.Error()
	regErr := &domain.RegistrationError{ID: reg.spec.ID, Reason: reg.reason, Err: cause}
	c.logger.Warn("geofence registration failed", "id", reg.spec.ID, "submission", reg.submission, "reason", reg.reason)
	c.sink.Emit(domain.Event{Type: domain.EventGeofenceFailed, GeofenceID: reg.spec.ID, Reason: reg.reason})
	return regErr
}

// Stop removes the registration regardless of its status. Unknown ids are a
// no-op.
func (c *GeofenceCoordinator) Stop(ctx context.Context, id string) error {
	if _, ok := c.registrations[id]; !ok {
		return nil
	}
	delete(c.registrations, id)
	c.sink.Emit(domain.Event{Type: domain.EventGeofenceRemoved, GeofenceID: id})

	if err := c.backend.RemoveGeofences(ctx, []string{id}); err != nil {
		return fmt.Errorf("stop geofence %s: %w", id, err)
	}
	c.logger.Info("geofence removed", "id", id)
	return nil
}

func (c *GeofenceCoordinator) Registration(id string) (domain.GeofenceRegistration, bool) {
	reg, ok := c.registrations[id]
	if !ok {
		return domain.GeofenceRegistration{}, false
	}
	return domain.GeofenceRegistration{Spec: reg.spec, Status: reg.status, Reason: reg.reason}, true
}

func (c *GeofenceCoordinator) Registrations() []domain.GeofenceRegistration {
	out := make([]domain.GeofenceRegistration, 0, len(c.registrations))
	for _, reg := range c.registrations {
		out = append(out, domain.GeofenceRegistration{Spec: reg.spec, Status: reg.status, Reason: reg.reason})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Spec.ID < out[j].Spec.ID })
	return out
}

// Handle reports the cached pending handle for id.
func (c *GeofenceCoordinator) Handle(id string) (domain.PendingHandle, bool) {
	h, ok := c.handles[id]
	return h, ok
}
