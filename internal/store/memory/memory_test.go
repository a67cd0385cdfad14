package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
)

func TestWithinTxRollsBackOnError(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, _, err := tx.AdjustStock(ctx, "ing-beras", decimal.NewFromInt(-5)); err != nil {
			return err
		}
		if err := tx.CreateOrder(ctx, domain.Order{ID: "ord-1", OrderNo: "ORD-20261016-0001", Status: domain.OrderStatusCompleted}); err != nil {
			return err
		}
		if err := tx.CreateDrawer(ctx, domain.CashDrawer{ID: "drawer-1", Status: domain.DrawerStatusOpen}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	ingredients, _ := s.GetIngredients(ctx, []string{"ing-beras"})
	if !ingredients["ing-beras"].CurrentStock.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("expected stock restored to 25, got %s", ingredients["ing-beras"].CurrentStock)
	}
	if _, err := s.GetOrder(ctx, "ord-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected order rolled back, got %v", err)
	}
	if _, err := s.GetOpenDrawer(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected open drawer slot released, got %v", err)
	}
	if movements, _ := s.ListMovements(ctx, "", 0); len(movements) != 0 {
		t.Fatalf("expected no movements, got %d", len(movements))
	}
}

func TestCreateDrawerRejectsSecondOpenDrawer(t *testing.T) {
	s := New()
	ctx := context.Background()
	open := func(id string) error {
		return s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.CreateDrawer(ctx, domain.CashDrawer{ID: id, Status: domain.DrawerStatusOpen, OpenedAt: time.Now()})
		})
	}
	if err := open("drawer-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := open("drawer-2"); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreateOrderReportsTakenOrderNumberAsRetryable(t *testing.T) {
	s := New()
	ctx := context.Background()
	create := func(id string) error {
		return s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.CreateOrder(ctx, domain.Order{ID: id, OrderNo: "PARK-20261016-0001", Status: domain.OrderStatusParked})
		})
	}
	if err := create("ord-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := create("ord-2"); !errors.Is(err, store.ErrRetryable) {
		t.Fatalf("expected retryable, got %v", err)
	}
}

func TestOutboxPendingUntilMarked(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.EnqueueEvent(ctx, domain.OutboxEvent{ID: "evt-1", Topic: "t"})
	})

	pending, _ := s.FetchPendingEvents(ctx, 10)
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending event, got %d", len(pending))
	}
	if err := s.MarkEventsPublished(ctx, []string{"evt-1"}, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pending, _ = s.FetchPendingEvents(ctx, 10); len(pending) != 0 {
		t.Fatalf("expected no pending events, got %d", len(pending))
	}
}
