package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nandanugg/geotrack/module/core/domain"
	"github.com/nandanugg/geotrack/module/core/internal/repository/database"
)

type locationService interface {
	GetLatest(ctx context.Context, deviceID string) (*domain.Fix, error)
	GetHistory(ctx context.Context, query *domain.HistoryQuery) ([]domain.Fix, error)
}

type locationResponse struct {
	DeviceID  string  `json:"device_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"`
}

// LocationHandler serves the stored fixes of a device.
type LocationHandler struct {
	locationSvc locationService
}

func NewLocationHandler(locationSvc locationService) *LocationHandler {
	return &LocationHandler{locationSvc: locationSvc}
}

func (h *LocationHandler) Register(r *gin.RouterGroup) {
	r.GET("/devices/:device_id/location", h.GetLatestLocation)
	r.GET("/devices/:device_id/history", h.GetHistory)
}

func (h *LocationHandler) GetLatestLocation(c *gin.Context) {
	deviceID := c.Param("device_id")

	fix, err := h.locationSvc.GetLatest(c.Request.Context(), deviceID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch location"})
		return
	}

	c.JSON(http.StatusOK, toLocationResponse(fix))
}

func (h *LocationHandler) GetHistory(c *gin.Context) {
	deviceID := c.Param("device_id")

	start, err := strconv.ParseInt(c.Query("start"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start parameter"})
		return
	}

	end, err := strconv.ParseInt(c.Query("end"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end parameter"})
		return
	}

	query := &domain.HistoryQuery{
		DeviceID: deviceID,
		Start:    time.Unix(start, 0),
		End:      time.Unix(end, 0),
	}

	fixes, err := h.locationSvc.GetHistory(c.Request.Context(), query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch history"})
		return
	}

	results := make([]locationResponse, len(fixes))
	for i := range fixes {
		results[i] = toLocationResponse(&fixes[i])
	}
	c.JSON(http.StatusOK, results)
}

func toLocationResponse(fix *domain.Fix) locationResponse {
	return locationResponse{
		DeviceID:  fix.DeviceID,
		Latitude:  fix.Point.Lat,
		Longitude: fix.Point.Lon,
		Timestamp: fix.Timestamp.Unix(),
	}
}
