package service

import "github.com/nandanugg/geotrack/module/core/domain"

// EventSink consumes events emitted by the core. Emit is called on the
// session queue and must not call back into the session.
type EventSink interface {
	Emit(e domain.Event)
}

type EventSinkFunc func(e domain.Event)

func (f EventSinkFunc) Emit(e domain.Event) { f(e) }

// Fanout delivers every event to each sink in order.
type Fanout []EventSink

func (f Fanout) Emit(e domain.Event) {
	for _, s := range f {
		s.Emit(e)
	}
}

type discardSink struct{}

func (discardSink) Emit(domain.Event) {}

func sinkOrDiscard(s EventSink) EventSink {
	if s == nil {
		return discardSink{}
	}
	return s
}
