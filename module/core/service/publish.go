package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/nandanugg/geotrack/module/core/domain"
	"github.com/nandanugg/geotrack/module/core/internal/repository/publisher"
)

const publishTimeout = 2 * time.Second

// PublishingSink forwards every event to a publisher. Publish errors are
// logged and dropped.
type PublishingSink struct {
	pub    publisher.EventPublisher
	logger *slog.Logger
}

func NewPublishingSink(pub publisher.EventPublisher, logger *slog.Logger) *PublishingSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublishingSink{pub: pub, logger: logger}
}

func (s *PublishingSink) Emit(e domain.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.pub.PublishEvent(ctx, e); err != nil {
		s.logger.Error("publish event", "type", e.Type.String(), "error", err)
	}
}
