package subscriber

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nandanugg/geotrack/module/core/domain"
	platformmqtt "github.com/nandanugg/geotrack/module/core/internal/repository/platform/mqtt"
)

const handleTimeout = 5 * time.Second

type router interface {
	AddRoute(topic string, handler mqtt.MessageHandler)
}

type locationService interface {
	SaveLocation(ctx context.Context, fix *domain.Fix) error
}

type fixDeliverer interface {
	Deliver(fix *domain.Fix)
}

type geofenceEngine interface {
	Observe(ctx context.Context, fix *domain.Fix) error
}

type locationMessage struct {
	DeviceID  string  `json:"device_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"`
}

// LocationSubscriber consumes the fixes a device publishes. Each fix goes to
// the location backend, the history store and the geofencing engine.
type LocationSubscriber struct {
	locationSvc locationService
	backend     fixDeliverer
	engine      geofenceEngine
	logger      *slog.Logger
}

func NewLocationSubscriber(locationSvc locationService, backend fixDeliverer, engine geofenceEngine, logger *slog.Logger) *LocationSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocationSubscriber{
		locationSvc: locationSvc,
		backend:     backend,
		engine:      engine,
		logger:      logger,
	}
}

// Register subscribes to the location topic of deviceID on every connect.
func (s *LocationSubscriber) Register(r router, deviceID string) {
	r.AddRoute(platformmqtt.LocationTopic(deviceID), s.handleMessage)
}

func (s *LocationSubscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var raw locationMessage
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		s.logger.Error("invalid location message", "topic", msg.Topic(), "error", err)
		return
	}

	if err := validateLocationMessage(&raw); err != nil {
		s.logger.Error("validation error", "topic", msg.Topic(), "error", err)
		return
	}

	fix := &domain.Fix{
		DeviceID:  raw.DeviceID,
		Point:     domain.GeoPoint{Lat: raw.Latitude, Lon: raw.Longitude},
		Timestamp: time.Unix(raw.Timestamp, 0),
	}

	s.backend.Deliver(fix)

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	if err := s.locationSvc.SaveLocation(ctx, fix); err != nil {
		s.logger.Error("save location error", "device_id", fix.DeviceID, "error", err)
		return
	}

	if err := s.engine.Observe(ctx, fix); err != nil {
		s.logger.Error("geofence check error", "device_id", fix.DeviceID, "error", err)
	}
}

func validateLocationMessage(msg *locationMessage) error {
	if msg.DeviceID == "" {
		return fmt.Errorf("device_id: required")
	}
	if msg.Latitude < -90 || msg.Latitude > 90 {
		return fmt.Errorf("latitude: must be between -90 and 90")
	}
	if msg.Longitude < -180 || msg.Longitude > 180 {
		return fmt.Errorf("longitude: must be between -180 and 180")
	}
	if msg.Timestamp <= 0 {
		return fmt.Errorf("timestamp: must be positive")
	}
	return nil
}
