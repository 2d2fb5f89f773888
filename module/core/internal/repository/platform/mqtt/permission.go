package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nandanugg/geotrack/module/core/domain"
	"github.com/nandanugg/geotrack/module/core/internal/repository/platform"
)

var _ platform.PermissionSubsystem = (*PermissionSubsystem)(nil)

type permissionRequest struct {
	RequestID  string `json:"request_id"`
	Capability string `json:"capability"`
}

type permissionMessage struct {
	RequestID  string `json:"request_id,omitempty"`
	Capability string `json:"capability"`
	Granted    bool   `json:"granted"`
}

// PermissionSubsystem mirrors the device's permission grants. The device
// publishes its current grants (retained) and answers prompts on the
// permission topic.
type PermissionSubsystem struct {
	client     client
	deviceID   string
	dispatcher platform.Dispatcher
	logger     *slog.Logger

	mu      sync.Mutex
	granted map[string]bool
	pending map[string]string
}

// NewPermissionSubsystem shares the client of a LocationBackend so both
// ride the same broker session.
func NewPermissionSubsystem(b *LocationBackend, dispatcher platform.Dispatcher, logger *slog.Logger) *PermissionSubsystem {
	if logger == nil {
		logger = slog.Default()
	}
	p := &PermissionSubsystem{
		client:     b.client,
		deviceID:   b.deviceID,
		dispatcher: dispatcher,
		logger:     logger,
		granted:    make(map[string]bool),
		pending:    make(map[string]string),
	}
	b.AddRoute(PermissionTopic(b.deviceID), p.HandleMessage)
	return p
}

func (p *PermissionSubsystem) CheckPermission(capability string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.granted[capability]
}

// RequestPermission prompts the device. The answer arrives as a
// CallbackPermissionResult.
func (p *PermissionSubsystem) RequestPermission(capability string) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("request permission %s: broker not connected", capability)
	}
	req := permissionRequest{RequestID: uuid.NewString(), Capability: capability}

	p.mu.Lock()
	p.pending[req.RequestID] = capability
	p.mu.Unlock()

	if err := publishJSON(p.client, PermissionRequestTopic(p.deviceID), false, req); err != nil {
		p.mu.Lock()
		delete(p.pending, req.RequestID)
		p.mu.Unlock()
		return fmt.Errorf("request permission %s: %w", capability, err)
	}
	p.logger.Info("permission prompt sent", "capability", capability, "request_id", req.RequestID)
	return nil
}

// HandleMessage is the paho handler for the permission topic.
func (p *PermissionSubsystem) HandleMessage(_ paho.Client, msg paho.Message) {
	var m permissionMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		p.logger.Error("invalid permission message", "topic", msg.Topic(), "error", err)
		return
	}
	if m.Capability == "" {
		p.logger.Error("permission message without capability", "topic", msg.Topic())
		return
	}

	p.mu.Lock()
	p.granted[m.Capability] = m.Granted
	_, answered := p.pending[m.RequestID]
	if answered {
		delete(p.pending, m.RequestID)
	}
	p.mu.Unlock()

	if answered {
		p.dispatcher.Dispatch(domain.Callback{Kind: domain.CallbackPermissionResult, Granted: m.Granted})
	}
}
