package events

import (
	"context"
	"log"
	"time"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/metrics"
)

type OutboxStore interface {
	FetchPendingEvents(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	MarkEventsPublished(ctx context.Context, ids []string, at time.Time) error
}

// Relay moves committed outbox rows to the publisher. Delivery is at least
// once: a crash between Publish and MarkEventsPublished re-sends the batch,
// and consumers dedupe on event_id.
type Relay struct {
	store     OutboxStore
	publisher Publisher
	batchSize int
	metrics   *metrics.Metrics
}

func NewRelay(store OutboxStore, publisher Publisher, batchSize int, m *metrics.Metrics) *Relay {
	if publisher == nil {
		publisher = LogPublisher{}
	}
	if batchSize < 1 {
		batchSize = 100
	}
	return &Relay{store: store, publisher: publisher, batchSize: batchSize, metrics: m}
}

// RunOnce publishes a single batch and returns how many events were sent.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	pending, err := r.store.FetchPendingEvents(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}
	if err := r.publisher.Publish(ctx, pending); err != nil {
		r.metrics.ObserveOutbox("failed", len(pending))
		return 0, err
	}

	ids := make([]string, 0, len(pending))
	for _, ev := range pending {
		ids = append(ids, ev.ID)
	}
	if err := r.store.MarkEventsPublished(ctx, ids, time.Now().UTC()); err != nil {
		return 0, err
	}
	r.metrics.ObserveOutbox("published", len(ids))
	return len(ids), nil
}

// Drain runs batches until the outbox is empty or an error occurs.
func (r *Relay) Drain(ctx context.Context) {
	for {
		n, err := r.RunOnce(ctx)
		if err != nil {
			log.Printf("[outbox] WARN: relay failed: %v", err)
			return
		}
		if n < r.batchSize {
			return
		}
	}
}
