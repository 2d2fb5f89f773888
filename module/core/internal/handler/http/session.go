package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nandanugg/geotrack/module/core/domain"
	"github.com/nandanugg/geotrack/module/core/service"
)

type sessionService interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Snapshot(ctx context.Context) (service.Snapshot, error)
	RequestPermission(ctx context.Context) (domain.PermissionState, error)
	LastKnown(ctx context.Context) (domain.GeoPoint, bool, error)
	StartUpdates(ctx context.Context, cfg domain.LocationUpdateConfig) error
	StopUpdates(ctx context.Context) error
	StartGeofence(ctx context.Context, spec domain.GeofenceSpec) error
	StopGeofence(ctx context.Context, id string) error
	Registration(ctx context.Context, id string) (domain.GeofenceRegistration, bool, error)
}

type geofenceRequest struct {
	ID           string   `json:"id" binding:"required"`
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	RadiusMeters float64  `json:"radius_meters"`
	Triggers     []string `json:"triggers" binding:"required"`
	DwellDelayMs int64    `json:"dwell_delay_ms"`
	ExpirationMs int64    `json:"expiration_ms"`
}

type updatesRequest struct {
	Priority          string `json:"priority"`
	IntervalMs        int64  `json:"interval_ms" binding:"required"`
	FastestIntervalMs int64  `json:"fastest_interval_ms"`
}

type geofenceResponse struct {
	ID           string   `json:"id"`
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	RadiusMeters float64  `json:"radius_meters"`
	Triggers     []string `json:"triggers"`
	DwellDelayMs int64    `json:"dwell_delay_ms,omitempty"`
	ExpirationMs int64    `json:"expiration_ms,omitempty"`
	Status       string   `json:"status"`
	Reason       string   `json:"reason,omitempty"`
}

type connectionResponse struct {
	Status        string `json:"status"`
	SuspendReason string `json:"suspend_reason,omitempty"`
	Code          int    `json:"code,omitempty"`
	Recoverable   bool   `json:"recoverable,omitempty"`
	Permission    string `json:"permission"`
	Subscribed    bool   `json:"subscribed"`
}

// SessionHandler exposes the location session over HTTP.
type SessionHandler struct {
	session sessionService
}

func NewSessionHandler(session sessionService) *SessionHandler {
	return &SessionHandler{session: session}
}

func (h *SessionHandler) Register(r *gin.RouterGroup) {
	r.GET("/connection", h.GetConnection)
	r.POST("/connection", h.Connect)
	r.DELETE("/connection", h.Disconnect)
	r.POST("/permission", h.RequestPermission)
	r.GET("/location", h.GetLastKnown)
	r.POST("/location/updates", h.StartUpdates)
	r.DELETE("/location/updates", h.StopUpdates)
	r.GET("/geofences", h.ListGeofences)
	r.POST("/geofences", h.StartGeofence)
	r.GET("/geofences/:id", h.GetGeofence)
	r.DELETE("/geofences/:id", h.StopGeofence)
}

func (h *SessionHandler) GetConnection(c *gin.Context) {
	snap, err := h.session.Snapshot(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toConnectionResponse(snap))
}

func (h *SessionHandler) Connect(c *gin.Context) {
	if err := h.session.Connect(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "connecting"})
}

func (h *SessionHandler) Disconnect(c *gin.Context) {
	if err := h.session.Disconnect(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) RequestPermission(c *gin.Context) {
	state, err := h.session.RequestPermission(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"permission": state.String()})
}

func (h *SessionHandler) GetLastKnown(c *gin.Context) {
	p, ok, err := h.session.LastKnown(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no known location"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"latitude": p.Lat, "longitude": p.Lon})
}

func (h *SessionHandler) StartUpdates(c *gin.Context) {
	var req updatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := domain.LocationUpdateConfig{
		Interval:        time.Duration(req.IntervalMs) * time.Millisecond,
		FastestInterval: time.Duration(req.FastestIntervalMs) * time.Millisecond,
	}
	if cfg.FastestInterval == 0 {
		cfg.FastestInterval = cfg.Interval
	}
	if req.Priority != "" {
		p, err := domain.ParsePriority(req.Priority)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cfg.Priority = p
	}
	if err := cfg.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.session.StartUpdates(c.Request.Context(), cfg); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) StopUpdates(c *gin.Context) {
	if err := h.session.StopUpdates(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) ListGeofences(c *gin.Context) {
	snap, err := h.session.Snapshot(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	results := make([]geofenceResponse, len(snap.Registrations))
	for i, reg := range snap.Registrations {
		results[i] = toGeofenceResponse(reg)
	}
	c.JSON(http.StatusOK, results)
}

func (h *SessionHandler) GetGeofence(c *gin.Context) {
	reg, ok, err := h.session.Registration(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "geofence not found"})
		return
	}
	c.JSON(http.StatusOK, toGeofenceResponse(reg))
}

func (h *SessionHandler) StartGeofence(c *gin.Context) {
	var req geofenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	triggers, err := domain.ParseTriggers(req.Triggers)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	spec := domain.GeofenceSpec{
		ID:           req.ID,
		Center:       domain.GeoPoint{Lat: req.Latitude, Lon: req.Longitude},
		RadiusMeters: req.RadiusMeters,
		Triggers:     triggers,
		DwellDelay:   time.Duration(req.DwellDelayMs) * time.Millisecond,
		Expiration:   time.Duration(req.ExpirationMs) * time.Millisecond,
	}

	if err := h.session.StartGeofence(c.Request.Context(), spec); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, toGeofenceResponse(domain.GeofenceRegistration{
		Spec:   spec,
		Status: domain.RegistrationPending,
	}))
}

func (h *SessionHandler) StopGeofence(c *gin.Context) {
	if err := h.session.StopGeofence(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidSpec):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrPreconditionFailed):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrGeofenceRegistrationFailed):
		status = http.StatusBadGateway
	case errors.Is(err, service.ErrSessionClosed),
		errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func toGeofenceResponse(reg domain.GeofenceRegistration) geofenceResponse {
	return geofenceResponse{
		ID:           reg.Spec.ID,
		Latitude:     reg.Spec.Center.Lat,
		Longitude:    reg.Spec.Center.Lon,
		RadiusMeters: reg.Spec.RadiusMeters,
		Triggers:     reg.Spec.Triggers.Names(),
		DwellDelayMs: reg.Spec.DwellDelay.Milliseconds(),
		ExpirationMs: reg.Spec.Expiration.Milliseconds(),
		Status:       reg.Status.String(),
		Reason:       reg.Reason,
	}
}

func toConnectionResponse(snap service.Snapshot) connectionResponse {
	resp := connectionResponse{
		Status:      snap.Connection.Status.String(),
		Code:        snap.Connection.Code,
		Recoverable: snap.Connection.Recoverable,
		Permission:  snap.Permission.String(),
		Subscribed:  snap.Subscribed,
	}
	if snap.Connection.Status == domain.Suspended {
		resp.SuspendReason = snap.Connection.SuspendReason.String()
	}
	return resp
}
