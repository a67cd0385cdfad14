package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
)

// memTx operates on the store maps directly; WithinTx holds the write lock
// for its whole lifetime.
type memTx struct {
	s    *Store
	undo []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func remember[K comparable, V any](t *memTx, m map[K]V, key K) {
	prev, existed := m[key]
	t.undo = append(t.undo, func() {
		if existed {
			m[key] = prev
		} else {
			delete(m, key)
		}
	})
}

func (t *memTx) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	product, ok := t.s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (t *memTx) GetProducts(_ context.Context, ids []string) (map[string]domain.Product, error) {
	return t.s.productsByID(ids), nil
}

func (t *memTx) ListRecipe(_ context.Context, productID string) ([]domain.RecipeLine, error) {
	return t.s.recipeLines(productID, true), nil
}

func (t *memTx) GetIngredients(_ context.Context, ids []string) (map[string]domain.Ingredient, error) {
	return t.s.ingredientsByID(ids), nil
}

func (t *memTx) AdjustStock(_ context.Context, ingredientID string, delta decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	ingredient, ok := t.s.ingredients[ingredientID]
	if !ok {
		return decimal.Zero, decimal.Zero, fmt.Errorf("ingredient %s: %w", ingredientID, store.ErrNotFound)
	}
	remember(t, t.s.ingredients, ingredientID)

	previous := ingredient.CurrentStock
	ingredient.CurrentStock = previous.Add(delta)
	ingredient.UpdatedAt = time.Now().UTC()
	t.s.ingredients[ingredientID] = ingredient
	return previous, ingredient.CurrentStock, nil
}

func (t *memTx) CreateMovement(_ context.Context, movement domain.IngredientMovement) error {
	n := len(t.s.movements)
	t.undo = append(t.undo, func() { t.s.movements = t.s.movements[:n] })
	t.s.movements = append(t.s.movements, movement)
	return nil
}

func (t *memTx) CountOrdersByPrefix(_ context.Context, prefix string) (int, error) {
	count := 0
	for orderNo := range t.s.orderNos {
		if strings.HasPrefix(orderNo, prefix) {
			count++
		}
	}
	return count, nil
}

func (t *memTx) GetOrderForUpdate(_ context.Context, id string) (*domain.Order, error) {
	order, ok := t.s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneOrder(order)
	return &out, nil
}

func (t *memTx) CreateOrder(_ context.Context, order domain.Order) error {
	if _, exists := t.s.orders[order.ID]; exists {
		return fmt.Errorf("%w: order %s already exists", store.ErrConflict, order.ID)
	}
	if _, taken := t.s.orderNos[order.OrderNo]; taken {
		return fmt.Errorf("%w: order number %s taken", store.ErrRetryable, order.OrderNo)
	}
	remember(t, t.s.orders, order.ID)
	remember(t, t.s.orderNos, order.OrderNo)
	t.s.orders[order.ID] = cloneOrder(order)
	t.s.orderNos[order.OrderNo] = order.ID
	return nil
}

func (t *memTx) UpdateOrder(_ context.Context, order domain.Order) error {
	stored, ok := t.s.orders[order.ID]
	if !ok {
		return store.ErrNotFound
	}
	if stored.OrderNo != order.OrderNo {
		return fmt.Errorf("%w: order number is immutable", store.ErrValidation)
	}
	remember(t, t.s.orders, order.ID)
	t.s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (t *memTx) GetDrawer(_ context.Context, id string) (*domain.CashDrawer, error) {
	drawer, ok := t.s.drawers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneDrawer(drawer)
	return &out, nil
}

func (t *memTx) GetOpenDrawerForUpdate(_ context.Context) (*domain.CashDrawer, error) {
	if t.s.openDrawerID == "" {
		return nil, store.ErrNotFound
	}
	out := cloneDrawer(t.s.drawers[t.s.openDrawerID])
	return &out, nil
}

// CreateDrawer claims the open-drawer slot. It fails with ErrConflict when
// another drawer holds it.
func (t *memTx) CreateDrawer(_ context.Context, drawer domain.CashDrawer) error {
	if t.s.openDrawerID != "" {
		return fmt.Errorf("%w: drawer %s is already open", store.ErrConflict, t.s.openDrawerID)
	}
	prevOpen := t.s.openDrawerID
	remember(t, t.s.drawers, drawer.ID)
	t.undo = append(t.undo, func() { t.s.openDrawerID = prevOpen })

	t.s.drawers[drawer.ID] = cloneDrawer(drawer)
	t.s.openDrawerID = drawer.ID
	return nil
}

func (t *memTx) CloseDrawer(_ context.Context, drawer domain.CashDrawer) error {
	stored, ok := t.s.drawers[drawer.ID]
	if !ok {
		return store.ErrNotFound
	}
	if stored.Status != domain.DrawerStatusOpen || t.s.openDrawerID != drawer.ID {
		return fmt.Errorf("%w: drawer %s is not open", store.ErrConflict, drawer.ID)
	}
	prevOpen := t.s.openDrawerID
	remember(t, t.s.drawers, drawer.ID)
	t.undo = append(t.undo, func() { t.s.openDrawerID = prevOpen })

	stored.Status = domain.DrawerStatusClosed
	stored.ClosedBy = drawer.ClosedBy
	stored.ClosedAt = drawer.ClosedAt
	stored.ClosingBalance = drawer.ClosingBalance
	stored.ExpectedBalance = drawer.ExpectedBalance
	t.s.drawers[drawer.ID] = cloneDrawer(stored)
	t.s.openDrawerID = ""
	return nil
}

func (t *memTx) AppendCashTransaction(_ context.Context, txn domain.CashTransaction) error {
	drawer, ok := t.s.drawers[txn.DrawerID]
	if !ok {
		return fmt.Errorf("drawer %s: %w", txn.DrawerID, store.ErrNotFound)
	}
	if drawer.Status != domain.DrawerStatusOpen {
		return fmt.Errorf("%w: drawer %s is closed", store.ErrInvalidState, txn.DrawerID)
	}
	if txn.Seq != len(drawer.Transactions)+1 {
		return fmt.Errorf("%w: drawer %s sequence moved", store.ErrRetryable, txn.DrawerID)
	}
	remember(t, t.s.drawers, drawer.ID)
	drawer = cloneDrawer(drawer)
	drawer.Transactions = append(drawer.Transactions, txn)
	t.s.drawers[drawer.ID] = drawer
	return nil
}

func (t *memTx) FindIdempotency(_ context.Context, key string) (*domain.IdempotencyRecord, error) {
	record, ok := t.s.idempotency[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &record, nil
}

func (t *memTx) SaveIdempotency(_ context.Context, record domain.IdempotencyRecord) error {
	if _, exists := t.s.idempotency[record.Key]; exists {
		return fmt.Errorf("%w: idempotency key %s recorded concurrently", store.ErrRetryable, record.Key)
	}
	remember(t, t.s.idempotency, record.Key)
	t.s.idempotency[record.Key] = record
	return nil
}

func (t *memTx) EnqueueEvent(_ context.Context, event domain.OutboxEvent) error {
	n := len(t.s.outbox)
	t.undo = append(t.undo, func() { t.s.outbox = t.s.outbox[:n] })
	t.s.outbox = append(t.s.outbox, event)
	return nil
}
