package events

import (
	"context"
	"log/slog"
)

// LoggingPublisher writes events to the structured log. It stands in for a
// broker client; the outbox worker only depends on ports.EventPublisher, so
// swapping in a real transport is a constructor change.
type LoggingPublisher struct {
	logger *slog.Logger
}

func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) Publish(ctx context.Context, eventType string, payload []byte) error {
	p.logger.InfoContext(ctx, "event published",
		"module", "events",
		"operation", "publish_event",
		"outcome", "success",
		"event_type", eventType,
		"payload", string(payload),
	)
	return nil
}
