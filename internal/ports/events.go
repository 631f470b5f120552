package ports

import "context"

// EventPublisher delivers outbox records to the downstream consumer.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte) error
}
