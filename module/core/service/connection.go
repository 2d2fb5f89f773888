package service

import (
	"log/slog"

	"github.com/nandanugg/geotrack/module/core/domain"
	"github.com/nandanugg/geotrack/module/core/internal/repository/platform"
)

type updateStopper interface {
	Subscribed() bool
	StopUpdates()
}

var connectionEdges = map[domain.ConnectionStatus][]domain.ConnectionStatus{
	domain.Disconnected: {domain.Connecting},
	domain.Connecting:   {domain.Connected, domain.Failed, domain.Disconnected},
	domain.Connected:    {domain.Suspended, domain.Failed, domain.Disconnected},
	domain.Suspended:    {domain.Connecting, domain.Connected, domain.Failed, domain.Disconnected},
	domain.Failed:       {domain.Connecting, domain.Disconnected},
}

func canTransition(from, to domain.ConnectionStatus) bool {
	for _, s := range connectionEdges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ConnectionManager owns the lifecycle of the location-services connection.
type ConnectionManager struct {
	backend platform.LocationBackend
	sink    EventSink
	logger  *slog.Logger
	tracker updateStopper

	state domain.ConnectionState
}

func NewConnectionManager(backend platform.LocationBackend, sink EventSink, logger *slog.Logger) *ConnectionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionManager{
		backend: backend,
		sink:    sinkOrDiscard(sink),
		logger:  logger,
	}
}

// SetTracker installs the subscription owner whose updates are released
// before every disconnect.
func (m *ConnectionManager) SetTracker(t updateStopper) {
	m.tracker = t
}

func (m *ConnectionManager) State() domain.ConnectionState {
	return m.state
}

func (m *ConnectionManager) Connected() bool {
	return m.state.Status == domain.Connected
}

func (m *ConnectionManager) Connect() {
	switch m.state.Status {
	case domain.Connecting, domain.Connected:
		return
	}

	m.set(domain.ConnectionState{Status: domain.Connecting})
	if err := m.backend.Connect(); err != nil {
		m.logger.Error("backend connect failed", "error", err)
		m.fail(domain.CodeInternalError, false)
	}
}

// Disconnect releases the location subscription before the backend
// disconnect so no subscription outlives the connection.
func (m *ConnectionManager) Disconnect() {
	if m.state.Status == domain.Disconnected {
		return
	}
	m.releaseUpdates()

	m.backend.Disconnect()
	m.set(domain.ConnectionState{Status: domain.Disconnected})
}

func (m *ConnectionManager) OnConnected() bool {
	if !m.set(domain.ConnectionState{Status: domain.Connected}) {
		return false
	}
	state := m.state
	m.sink.Emit(domain.Event{Type: domain.EventConnected, Connection: &state})
	return true
}

func (m *ConnectionManager) OnSuspended(reason domain.SuspendReason) {
	if !m.set(domain.ConnectionState{Status: domain.Suspended, SuspendReason: reason}) {
		return
	}
	state := m.state
	m.sink.Emit(domain.Event{Type: domain.EventConnectionSuspended, Connection: &state, Reason: reason.String()})
}

// OnConnectionFailed records the failure. Recoverable failures are surfaced
// with a resolution request; nothing is retried automatically.
func (m *ConnectionManager) OnConnectionFailed(code int, hasResolution bool) {
	m.fail(code, hasResolution)
}

func (m *ConnectionManager) fail(code int, recoverable bool) {
	if !m.set(domain.ConnectionState{Status: domain.Failed, Code: code, Recoverable: recoverable}) {
		return
	}
	// a listener token does not survive the failed connection
	m.releaseUpdates()
	state := m.state
	err := &domain.ConnectionError{Code: code, Recoverable: recoverable}
	m.sink.Emit(domain.Event{Type: domain.EventConnectionFailed, Connection: &state, Reason: err.Error()})
}

func (m *ConnectionManager) releaseUpdates() {
	if m.tracker != nil && m.tracker.Subscribed() {
		m.tracker.StopUpdates()
	}
}

func (m *ConnectionManager) set(next domain.ConnectionState) bool {
	if !canTransition(m.state.Status, next.Status) {
		m.logger.Warn("dropping illegal connection transition",
			"from", m.state.Status.String(), "to", next.Status.String())
		return false
	}
	m.logger.Debug("connection state", "from", m.state.Status.String(), "to", next.Status.String())
	m.state = next
	return true
}
