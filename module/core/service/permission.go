package service

import (
	"log/slog"

	"github.com/nandanugg/geotrack/module/core/domain"
	"github.com/nandanugg/geotrack/module/core/internal/repository/platform"
)

// PermissionGate tracks whether the location capability is granted and
// coalesces concurrent permission prompts into one.
type PermissionGate struct {
	subsystem  platform.PermissionSubsystem
	capability string
	sink       EventSink
	logger     *slog.Logger

	state   domain.PermissionState
	waiters []func(domain.PermissionState)
}

func NewPermissionGate(subsystem platform.PermissionSubsystem, capability string, sink EventSink, logger *slog.Logger) *PermissionGate {
	if capability == "" {
		capability = domain.CapabilityFineLocation
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionGate{
		subsystem:  subsystem,
		capability: capability,
		sink:       sinkOrDiscard(sink),
		logger:     logger,
	}
}

// Check refreshes the cached state from the OS-level grant. A missing grant
// after a previous grant means the user revoked it. A change is emitted as
// EventPermissionChanged.
func (g *PermissionGate) Check() domain.PermissionState {
	next := g.state
	if g.subsystem.CheckPermission(g.capability) {
		next = domain.PermissionGranted
	} else if g.state == domain.PermissionGranted {
		next = domain.PermissionDenied
	}
	if next != g.state {
		g.state = next
		g.sink.Emit(domain.Event{Type: domain.EventPermissionChanged, Permission: next})
	}
	return g.state
}

func (g *PermissionGate) State() domain.PermissionState {
	return g.state
}

func (g *PermissionGate) Pending() bool {
	return len(g.waiters) > 0
}

// Request resolves fn exactly once with the outcome of the permission prompt.
// Requests made while a prompt is outstanding share its result.
func (g *PermissionGate) Request(fn func(domain.PermissionState)) {
	if g.Check() == domain.PermissionGranted {
		fn(domain.PermissionGranted)
		return
	}

	g.waiters = append(g.waiters, fn)
	if len(g.waiters) > 1 {
		return
	}

	if err := g.subsystem.RequestPermission(g.capability); err != nil {
		g.logger.Warn("permission request failed", "capability", g.capability, "error", err)
		g.resolve(domain.PermissionDenied)
	}
}

// OnResult handles the permission-result callback.
func (g *PermissionGate) OnResult(granted bool) {
	state := domain.PermissionDenied
	if granted {
		state = domain.PermissionGranted
	}
	g.resolve(state)
}

func (g *PermissionGate) resolve(state domain.PermissionState) {
	changed := g.state != state
	g.state = state

	waiters := g.waiters
	g.waiters = nil
	for _, fn := range waiters {
		fn(state)
	}

	if changed {
		g.sink.Emit(domain.Event{Type: domain.EventPermissionChanged, Permission: state})
	}
}
