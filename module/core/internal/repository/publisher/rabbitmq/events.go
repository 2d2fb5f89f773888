package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nandanugg/geotrack/module/core/domain"
	"github.com/nandanugg/geotrack/module/core/internal/repository/publisher"
)

var (
	_ publisher.EventPublisher      = (*Publisher)(nil)
	_ publisher.TransitionPublisher = (*Publisher)(nil)
)

const (
	EventsExchange      = "geotrack.events"
	EventsQueue         = "geotrack_events"
	TransitionsExchange = "geotrack.transitions"
)

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher sends core events to a fanout exchange and geofence transitions
// to a direct exchange keyed by the pending handle target.
type Publisher struct {
	ch  channel
	now func() time.Time
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(EventsExchange, "fanout", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(EventsQueue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(EventsQueue, "", EventsExchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue: %w", err)
	}
	if err := ch.ExchangeDeclare(TransitionsExchange, "direct", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &Publisher{ch: ch, now: time.Now}, nil
}

type eventMessage struct {
	Event     domain.Event `json:"event"`
	Timestamp int64        `json:"timestamp"`
}

type transitionMessage struct {
	HandleID   string          `json:"handle_id"`
	GeofenceID string          `json:"geofence_id"`
	Transition domain.Trigger  `json:"transition"`
	Location   domain.GeoPoint `json:"location"`
	Timestamp  int64           `json:"timestamp"`
}

func (p *Publisher) PublishEvent(ctx context.Context, e domain.Event) error {
	body, err := json.Marshal(eventMessage{Event: e, Timestamp: p.now().Unix()})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	return p.ch.PublishWithContext(ctx, EventsExchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Type:        e.Type.String(),
		Body:        body,
	})
}

func (p *Publisher) PublishTransition(ctx context.Context, handle domain.PendingHandle, tr domain.GeofenceTransition) error {
	body, err := json.Marshal(transitionMessage{
		HandleID:   handle.ID,
		GeofenceID: tr.GeofenceID,
		Transition: tr.Transition,
		Location:   tr.Point,
		Timestamp:  tr.Timestamp.Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal transition: %w", err)
	}

	if err := p.ch.PublishWithContext(ctx, TransitionsExchange, handle.Target, true, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: handle.ID,
		Body:          body,
	}); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSendFailed, err)
	}
	return nil
}
