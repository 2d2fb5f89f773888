package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/nandanugg/geotrack/module/core/domain"
	"github.com/nandanugg/geotrack/module/core/internal/repository/cache"
	"github.com/nandanugg/geotrack/module/core/internal/repository/database"
	"github.com/nandanugg/geotrack/module/core/internal/repository/platform"
)

var _ platform.LocationBackend = (*LocationBackend)(nil)

type lastFixSource interface {
	GetLatest(ctx context.Context, deviceID string) (*domain.Fix, error)
}

type route struct {
	topic   string
	handler paho.MessageHandler
}

type updateConfigMessage struct {
	Enabled           bool   `json:"enabled"`
	Priority          string `json:"priority,omitempty"`
	IntervalMs        int64  `json:"interval_ms,omitempty"`
	FastestIntervalMs int64  `json:"fastest_interval_ms,omitempty"`
}

// LocationBackend talks to one device over MQTT. The device publishes fixes
// on its location topic and reads its reporting config from a retained
// config topic.
type LocationBackend struct {
	client     client
	deviceID   string
	dispatcher platform.Dispatcher
	fixes      lastFixSource
	logger     *slog.Logger

	mu       sync.Mutex
	routes   []route
	last     *domain.Fix
	listener string
}

func NewLocationBackend(opts *paho.ClientOptions, deviceID string, dispatcher platform.Dispatcher,
	fixes lastFixSource, logger *slog.Logger) *LocationBackend {
	if logger == nil {
		logger = slog.Default()
	}
	b := &LocationBackend{
		deviceID:   deviceID,
		dispatcher: dispatcher,
		fixes:      fixes,
		logger:     logger,
	}
	opts.SetAutoReconnect(true).
		SetConnectRetry(false).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(b.onConnectionLost)
	b.client = newClient(opts)
	return b
}

// AddRoute subscribes handler to topic on every (re)connect.
func (b *LocationBackend) AddRoute(topic string, handler paho.MessageHandler) {
	b.mu.Lock()
	b.routes = append(b.routes, route{topic: topic, handler: handler})
	b.mu.Unlock()
}

func (b *LocationBackend) onConnect(_ paho.Client) {
	b.mu.Lock()
	routes := append([]route(nil), b.routes...)
	b.mu.Unlock()

	for _, r := range routes {
		if err := wait(b.client.Subscribe(r.topic, qos, r.handler)); err != nil {
			b.logger.Error("subscribe failed", "topic", r.topic, "error", err)
			b.dispatcher.Dispatch(domain.Callback{
				Kind:          domain.CallbackSuspended,
				SuspendReason: domain.ServiceDisconnected,
			})
			return
		}
	}
	b.dispatcher.Dispatch(domain.Callback{Kind: domain.CallbackConnected})
}

func (b *LocationBackend) onConnectionLost(_ paho.Client, err error) {
	b.logger.Warn("mqtt connection lost", "error", err)
	b.dispatcher.Dispatch(domain.Callback{Kind: domain.CallbackSuspended, SuspendReason: domain.NetworkLost})
}

// Connect starts the broker connection. Success is reported by the
// on-connect handler, failure by a CallbackConnectionFailed.
func (b *LocationBackend) Connect() error {
	token := b.client.Connect()
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			code, hasResolution := connectFailure(err)
			b.logger.Error("mqtt connect failed", "error", err, "code", code)
			b.dispatcher.Dispatch(domain.Callback{
				Kind:          domain.CallbackConnectionFailed,
				Code:          code,
				HasResolution: hasResolution,
			})
		}
	}()
	return nil
}

func (b *LocationBackend) Disconnect() {
	b.client.Disconnect(quiesceMillis)
}

func (b *LocationBackend) IsConnected() bool {
	return b.client.IsConnected()
}

func (b *LocationBackend) LastLocation(ctx context.Context) (domain.GeoPoint, bool, error) {
	b.mu.Lock()
	last := b.last
	b.mu.Unlock()
	if last != nil {
		return last.Point, true, nil
	}
	if b.fixes == nil {
		return domain.GeoPoint{}, false, nil
	}

	fix, err := b.fixes.GetLatest(ctx, b.deviceID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) || errors.Is(err, cache.ErrMiss) {
			return domain.GeoPoint{}, false, nil
		}
		return domain.GeoPoint{}, false, err
	}
	return fix.Point, true, nil
}

func (b *LocationBackend) RequestLocationUpdates(cfg domain.LocationUpdateConfig, listener string) error {
	msg := updateConfigMessage{
		Enabled:           true,
		Priority:          cfg.Priority.String(),
		IntervalMs:        cfg.Interval.Milliseconds(),
		FastestIntervalMs: cfg.FastestInterval.Milliseconds(),
	}
	if err := publishJSON(b.client, locationConfigTopic(b.deviceID), true, msg); err != nil {
		return fmt.Errorf("request location updates: %w", err)
	}

	b.mu.Lock()
	b.listener = listener
	b.mu.Unlock()
	return nil
}

func (b *LocationBackend) RemoveLocationUpdates(listener string) error {
	b.mu.Lock()
	if b.listener != listener {
		b.mu.Unlock()
		return nil
	}
	b.listener = ""
	b.mu.Unlock()

	if err := publishJSON(b.client, locationConfigTopic(b.deviceID), true, updateConfigMessage{Enabled: false}); err != nil {
		return fmt.Errorf("remove location updates: %w", err)
	}
	return nil
}

// Deliver records fix as the last known location and forwards it to the
// active listener, if any.
func (b *LocationBackend) Deliver(fix *domain.Fix) {
	if fix.DeviceID != b.deviceID {
		return
	}

	b.mu.Lock()
	b.last = fix
	listener := b.listener
	b.mu.Unlock()

	if listener == "" {
		return
	}
	b.dispatcher.Dispatch(domain.Callback{
		Kind:      domain.CallbackLocationChanged,
		Listener:  listener,
		Point:     fix.Point,
		Timestamp: fix.Timestamp,
	})
}
