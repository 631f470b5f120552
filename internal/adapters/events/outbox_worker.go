package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shopworks/commerce-api/internal/ports"
)

// OutboxWorker drains the durable outbox and hands each record to the
// publisher. Records are claimed with a token and TTL so a crashed worker's
// batch becomes claimable again; records that exhaust their retries are
// dead-lettered instead of blocking the queue.
type OutboxWorker struct {
	logger     *slog.Logger
	outbox     ports.OutboxRepository
	publisher  ports.EventPublisher
	interval   time.Duration
	batchSize  int
	claimTTL   time.Duration
	maxRetries int
}

func NewOutboxWorker(
	logger *slog.Logger,
	outbox ports.OutboxRepository,
	publisher ports.EventPublisher,
	interval time.Duration,
	batchSize int,
	claimTTL time.Duration,
	maxRetries int,
) *OutboxWorker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if claimTTL <= 0 {
		claimTTL = 30 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &OutboxWorker{
		logger:     logger,
		outbox:     outbox,
		publisher:  publisher,
		interval:   interval,
		batchSize:  batchSize,
		claimTTL:   claimTTL,
		maxRetries: maxRetries,
	}
}

// Run drains the outbox on a fixed interval until the context is cancelled.
func (w *OutboxWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if stats, err := w.drainBatch(ctx); err != nil {
			w.logger.ErrorContext(ctx, "outbox drain failed",
				"module", "events",
				"operation", "drain_outbox",
				"outcome", "failure",
				"error", err,
			)
		} else if stats.claimed > 0 {
			w.logger.InfoContext(ctx, "outbox batch drained",
				"module", "events",
				"operation", "drain_outbox",
				"outcome", "success",
				"claimed", stats.claimed,
				"published", stats.published,
				"retried", stats.retried,
				"dead_lettered", stats.deadLettered,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

type drainStats struct {
	claimed      int
	published    int
	retried      int
	deadLettered int
}

func (s *drainStats) merge(other drainStats) {
	s.published += other.published
	s.retried += other.retried
	s.deadLettered += other.deadLettered
}

func (w *OutboxWorker) drainBatch(ctx context.Context) (drainStats, error) {
	claimToken := uuid.NewString()
	records, err := w.outbox.ClaimUnpublished(ctx, w.batchSize, claimToken, time.Now().UTC().Add(w.claimTTL))
	if err != nil {
		return drainStats{}, err
	}

	stats := drainStats{claimed: len(records)}
	now := time.Now().UTC()
	for _, rec := range records {
		stats.merge(w.deliver(ctx, rec, claimToken, now))
	}
	return stats, nil
}

// deliver publishes one record and records the outcome. Mark failures are not
// propagated; an unmarked record is re-claimed after its TTL and delivered
// again, which downstream consumers must already tolerate.
func (w *OutboxWorker) deliver(ctx context.Context, rec ports.OutboxRecord, claimToken string, now time.Time) drainStats {
	if rec.RetryCount >= w.maxRetries {
		_ = w.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, "retry budget exhausted", now)
		return drainStats{deadLettered: 1}
	}

	err := w.publisher.Publish(ctx, rec.EventType, rec.Payload)
	if err == nil {
		_ = w.outbox.MarkPublished(ctx, rec.OutboxID, claimToken, now)
		return drainStats{published: 1}
	}

	retries := rec.RetryCount + 1
	if retries >= w.maxRetries {
		w.logger.ErrorContext(ctx, "event dead-lettered",
			"module", "events",
			"operation", "publish_event",
			"outcome", "failure",
			"outbox_id", rec.OutboxID,
			"event_type", rec.EventType,
			"partition_key", rec.PartitionKey,
			"retry_count", retries,
			"error", err,
		)
		_ = w.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, err.Error(), now)
		return drainStats{deadLettered: 1}
	}

	w.logger.WarnContext(ctx, "event publish failed, will retry",
		"module", "events",
		"operation", "publish_event",
		"outcome", "failure",
		"outbox_id", rec.OutboxID,
		"event_type", rec.EventType,
		"partition_key", rec.PartitionKey,
		"retry_count", retries,
		"error", err,
	)
	_ = w.outbox.MarkFailed(ctx, rec.OutboxID, claimToken, err.Error(), now)
	return drainStats{retried: 1}
}
