package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nandanugg/geotrack/module/core/domain"
)

var connectionStatuses = []domain.ConnectionStatus{
	domain.Disconnected,
	domain.Connecting,
	domain.Connected,
	domain.Suspended,
	domain.Failed,
}

// Metrics tracks the events emitted by a location session. It is an event
// sink and must only be fed from the session queue.
type Metrics struct {
	Events            *prometheus.CounterVec
	Transitions       *prometheus.CounterVec
	ConnectionStatus  *prometheus.GaugeVec
	GeofencesActive   prometheus.Gauge
	PermissionGranted prometheus.Gauge

	gatherer prometheus.Gatherer
	active   map[string]struct{}
}

// New registers the session metrics with reg. A nil reg uses a fresh
// registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	m := &Metrics{
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "geotrack_events_total",
			Help: "Total number of core events emitted, by type",
		}, []string{"type"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "geotrack_geofence_transitions_total",
			Help: "Total number of geofence transitions delivered, by transition",
		}, []string{"transition"}),
		ConnectionStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "geotrack_connection_status",
			Help: "1 for the current connection status, 0 otherwise",
		}, []string{"status"}),
		GeofencesActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "geotrack_geofences_active",
			Help: "Number of geofences currently registered",
		}),
		PermissionGranted: factory.NewGauge(prometheus.GaugeOpts{
			Name: "geotrack_permission_granted",
			Help: "1 when the location capability is granted",
		}),
		gatherer: reg,
		active:   make(map[string]struct{}),
	}
	m.setStatus(domain.Disconnected)
	return m
}

func (m *Metrics) Emit(e domain.Event) {
	m.Events.WithLabelValues(e.Type.String()).Inc()

	if e.Connection != nil {
		m.setStatus(e.Connection.Status)
	}

	switch e.Type {
	case domain.EventPermissionChanged:
		if e.Permission == domain.PermissionGranted {
			m.PermissionGranted.Set(1)
		} else {
			m.PermissionGranted.Set(0)
		}
	case domain.EventGeofenceRegistered:
		if e.Geofence != nil {
			m.active[e.Geofence.ID] = struct{}{}
		}
	case domain.EventGeofenceRemoved, domain.EventGeofenceFailed:
		delete(m.active, e.GeofenceID)
	case domain.EventGeofenceTransition:
		if e.Transition != nil {
			m.Transitions.WithLabelValues(e.Transition.Transition.String()).Inc()
		}
	}
	m.GeofencesActive.Set(float64(len(m.active)))
}

func (m *Metrics) setStatus(current domain.ConnectionStatus) {
	for _, s := range connectionStatuses {
		v := 0.0
		if s == current {
			v = 1
		}
		m.ConnectionStatus.WithLabelValues(s.String()).Set(v)
	}
}

// Register mounts GET /metrics.
func (m *Metrics) Register(r *gin.RouterGroup) {
	h := promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
	r.GET("/metrics", gin.WrapH(h))
}

