package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nandanugg/geotrack/module/core/domain"
)

type publishCall struct {
	exchange  string
	key       string
	mandatory bool
	msg       amqp.Publishing
}

type fakeChannel struct {
	calls []publishCall
	err   error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, mandatory, _ bool, msg amqp.Publishing) error {
	f.calls = append(f.calls, publishCall{exchange: exchange, key: key, mandatory: mandatory, msg: msg})
	return f.err
}

func newTestPublisher(ch channel) *Publisher {
	return &Publisher{ch: ch, now: func() time.Time { return time.Unix(1715003456, 0) }}
}

func TestPublishEvent_Success(t *testing.T) {
	ch := &fakeChannel{}
	p := newTestPublisher(ch)

	spec := domain.GeofenceSpec{
		ID:           "campus",
		Center:       domain.GeoPoint{Lat: 36.987336, Lon: -86.451221},
		RadiusMeters: 50,
		Triggers:     domain.TriggerEnter | domain.TriggerExit,
	}
	err := p.PublishEvent(context.Background(), domain.Event{
		Type:       domain.EventGeofenceRegistered,
		Geofence:   &spec,
		GeofenceID: "campus",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ch.calls) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(ch.calls))
	}
	call := ch.calls[0]
	if call.exchange != EventsExchange {
		t.Errorf("expected exchange %s, got %s", EventsExchange, call.exchange)
	}
	if call.msg.Type != "geofence_registered" {
		t.Errorf("expected type geofence_registered, got %s", call.msg.Type)
	}

	var decoded struct {
		Event struct {
			Type     string `json:"type"`
			Geofence struct {
				RadiusMeters float64  `json:"radius_meters"`
				Triggers     []string `json:"triggers"`
			} `json:"geofence"`
		} `json:"event"`
		Timestamp int64 `json:"timestamp"`
	}
	if err := json.Unmarshal(call.msg.Body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Event.Type != "geofence_registered" {
		t.Errorf("expected geofence_registered, got %s", decoded.Event.Type)
	}
	if decoded.Event.Geofence.RadiusMeters != 50 {
		t.Errorf("expected radius 50, got %f", decoded.Event.Geofence.RadiusMeters)
	}
	if len(decoded.Event.Geofence.Triggers) != 2 {
		t.Errorf("expected 2 triggers, got %v", decoded.Event.Geofence.Triggers)
	}
	if decoded.Timestamp != 1715003456 {
		t.Errorf("expected 1715003456, got %d", decoded.Timestamp)
	}
}

func TestPublishTransition_RoutesByHandleTarget(t *testing.T) {
	ch := &fakeChannel{}
	p := newTestPublisher(ch)

	handle := domain.PendingHandle{ID: "h-1", RegistrationID: "campus", Target: "device.pixel-7"}
	err := p.PublishTransition(context.Background(), handle, domain.GeofenceTransition{
		GeofenceID: "campus",
		Transition: domain.TriggerEnter,
		Point:      domain.GeoPoint{Lat: 36.98734, Lon: -86.45122},
		Timestamp:  time.Unix(1715003456, 0),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	call := ch.calls[0]
	if call.exchange != TransitionsExchange || call.key != "device.pixel-7" {
		t.Errorf("unexpected route %s/%s", call.exchange, call.key)
	}
	if !call.mandatory {
		t.Error("expected mandatory publish")
	}
	if call.msg.CorrelationId != "h-1" {
		t.Errorf("expected correlation id h-1, got %s", call.msg.CorrelationId)
	}
}

func TestPublishTransition_WrapsSendFailed(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := newTestPublisher(ch)

	err := p.PublishTransition(context.Background(), domain.PendingHandle{ID: "h-1", Target: "t"}, domain.GeofenceTransition{GeofenceID: "campus"})
	if !errors.Is(err, domain.ErrSendFailed) {
		t.Fatalf("expected ErrSendFailed, got %v", err)
	}
}
