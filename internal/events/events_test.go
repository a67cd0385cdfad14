package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"restopos/backend/internal/domain"
)

type fakeOutbox struct {
	pending   []domain.OutboxEvent
	published []string
}

func (f *fakeOutbox) FetchPendingEvents(_ context.Context, limit int) ([]domain.OutboxEvent, error) {
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeOutbox) MarkEventsPublished(_ context.Context, ids []string, _ time.Time) error {
	f.published = append(f.published, ids...)
	f.pending = f.pending[len(ids):]
	return nil
}

type capturePublisher struct {
	sent []domain.OutboxEvent
	err  error
}

func (c *capturePublisher) Publish(_ context.Context, events []domain.OutboxEvent) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, events...)
	return nil
}

func (c *capturePublisher) Close() error { return nil }

func TestForOrderBuildsEnvelope(t *testing.T) {
	at := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	ev, err := ForOrder(OrderCompleted, domain.Order{
		ID:          "ord-1",
		OrderNo:     "ORD-20261016-0001",
		Status:      domain.OrderStatusCompleted,
		TotalAmount: decimal.NewFromInt(150),
	}, "cashier", at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Topic != TopicOrders || ev.Key != "ord-1" {
		t.Fatalf("unexpected routing topic=%s key=%s", ev.Topic, ev.Key)
	}

	var envelope Envelope
	if err := json.Unmarshal(ev.Payload, &envelope); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if envelope.EventID != ev.ID || envelope.Type != OrderCompleted {
		t.Fatalf("unexpected envelope %+v", envelope)
	}
	var data OrderData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		t.Fatalf("data is not json: %v", err)
	}
	if !data.TotalAmount.Equal(decimal.NewFromInt(150)) || data.Actor != "cashier" {
		t.Fatalf("unexpected data %+v", data)
	}
}

func TestRelayPublishesAndMarksBatches(t *testing.T) {
	outbox := &fakeOutbox{}
	for i := 0; i < 3; i++ {
		ev, err := ForDrawer(DrawerCashIn, "drawer-1", DrawerData{Amount: decimal.NewFromInt(10)}, time.Now())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		outbox.pending = append(outbox.pending, ev)
	}
	pub := &capturePublisher{}
	relay := NewRelay(outbox, pub, 2, nil)

	relay.Drain(context.Background())

	if len(pub.sent) != 3 || len(outbox.published) != 3 {
		t.Fatalf("expected 3 events relayed, got sent=%d marked=%d", len(pub.sent), len(outbox.published))
	}
	if len(outbox.pending) != 0 {
		t.Fatalf("expected outbox drained, %d left", len(outbox.pending))
	}
}

func TestRelayKeepsEventsPendingWhenPublishFails(t *testing.T) {
	ev, _ := ForDrawer(DrawerOpened, "drawer-1", DrawerData{}, time.Now())
	outbox := &fakeOutbox{pending: []domain.OutboxEvent{ev}}
	relay := NewRelay(outbox, &capturePublisher{err: errors.New("broker down")}, 10, nil)

	if _, err := relay.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected publish error")
	}
	if len(outbox.pending) != 1 || len(outbox.published) != 0 {
		t.Fatalf("expected event to stay pending")
	}
}
