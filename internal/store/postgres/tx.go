package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
)

type pgTx struct {
	q querier
}

func (t *pgTx) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	products, err := getProducts(ctx, t.q, []string{id})
	if err != nil {
		return nil, err
	}
	product, ok := products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (t *pgTx) GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	return getProducts(ctx, t.q, ids)
}

func (t *pgTx) ListRecipe(ctx context.Context, productID string) ([]domain.RecipeLine, error) {
	return listRecipe(ctx, t.q, productID, true)
}

func (t *pgTx) GetIngredients(ctx context.Context, ids []string) (map[string]domain.Ingredient, error) {
	return getIngredients(ctx, t.q, ids)
}

func (t *pgTx) AdjustStock(ctx context.Context, ingredientID string, delta decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	var previous, current decimal.Decimal
	err := t.q.QueryRowContext(ctx, `
		UPDATE ingredients
		SET current_stock = current_stock + $2::numeric, updated_at = now()
		WHERE id = $1
		RETURNING current_stock - $2::numeric, current_stock
	`, ingredientID, delta).Scan(&previous, &current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, decimal.Zero, fmt.Errorf("ingredient %s: %w", ingredientID, store.ErrNotFound)
		}
		return decimal.Zero, decimal.Zero, err
	}
	return previous, current, nil
}

func (t *pgTx) CreateMovement(ctx context.Context, m domain.IngredientMovement) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO ingredient_movements (id, ingredient_id, delta, previous, current, reason, order_id, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, m.ID, m.IngredientID, m.Delta, m.Previous, m.Current, m.Reason, nullIfEmpty(m.OrderID), nullIfEmpty(m.Note), m.CreatedAt)
	return err
}

func (t *pgTx) CountOrdersByPrefix(ctx context.Context, prefix string) (int, error) {
	var count int
	err := t.q.QueryRowContext(ctx, `
		SELECT count(*)
		FROM orders
		WHERE order_no LIKE $1 || '%'
	`, prefix).Scan(&count)
	return count, err
}

func (t *pgTx) GetOrderForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	return loadOrder(ctx, t.q, id, true)
}

func (t *pgTx) CreateOrder(ctx context.Context, order domain.Order) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO orders (
			id, order_no, status, total_amount, cost_of_goods, gross_profit, order_type, table_number,
			cashier_id, payment_method, void_reason, is_deleted, created_at, updated_at, completed_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, order.ID, order.OrderNo, order.Status, order.TotalAmount, order.CostOfGoods, order.GrossProfit, order.OrderType,
		nullIfEmpty(order.TableNumber), order.CashierID, nullIfEmpty(order.PaymentMethod), nullIfEmpty(order.VoidReason),
		order.IsDeleted, order.CreatedAt, order.UpdatedAt, nullTime(order.CompletedAt))
	if err != nil {
		switch violatedConstraint(err) {
		case "orders_order_no_key":
			return fmt.Errorf("%w: order number %s taken", store.ErrRetryable, order.OrderNo)
		case "orders_pkey":
			return fmt.Errorf("%w: order %s already exists", store.ErrConflict, order.ID)
		}
		return err
	}
	return t.insertLines(ctx, order)
}

func (t *pgTx) UpdateOrder(ctx context.Context, order domain.Order) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE orders
		SET status = $3, total_amount = $4, cost_of_goods = $5, gross_profit = $6, order_type = $7,
			table_number = $8, payment_method = $9, void_reason = $10, is_deleted = $11,
			updated_at = $12, completed_at = $13
		WHERE id = $1 AND order_no = $2
	`, order.ID, order.OrderNo, order.Status, order.TotalAmount, order.CostOfGoods, order.GrossProfit, order.OrderType,
		nullIfEmpty(order.TableNumber), nullIfEmpty(order.PaymentMethod), nullIfEmpty(order.VoidReason), order.IsDeleted,
		order.UpdatedAt, nullTime(order.CompletedAt))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	if _, err := t.q.ExecContext(ctx, `DELETE FROM order_lines WHERE order_id = $1`, order.ID); err != nil {
		return err
	}
	return t.insertLines(ctx, order)
}

func (t *pgTx) insertLines(ctx context.Context, order domain.Order) error {
	for i, line := range order.Lines {
		recipe := line.Recipe
		if recipe == nil {
			recipe = []domain.RecipeComponent{}
		}
		raw, err := json.Marshal(recipe)
		if err != nil {
			return err
		}
		if _, err := t.q.ExecContext(ctx, `
			INSERT INTO order_lines (
				id, order_id, position, product_id, quantity, price_at_sale, quantity_printed, cost_at_sale, recipe
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, line.ID, order.ID, i, line.ProductID, line.Quantity, line.PriceAtSale, line.QuantityPrinted, line.CostAtSale, string(raw)); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) GetDrawer(ctx context.Context, id string) (*domain.CashDrawer, error) {
	row := t.q.QueryRowContext(ctx, `SELECT `+drawerColumns+` FROM cash_drawers WHERE id = $1`, id)
	return loadDrawer(ctx, t.q, row)
}

func (t *pgTx) GetOpenDrawerForUpdate(ctx context.Context) (*domain.CashDrawer, error) {
	row := t.q.QueryRowContext(ctx, `SELECT `+drawerColumns+` FROM cash_drawers WHERE status = 'OPEN' FOR UPDATE`)
	return loadDrawer(ctx, t.q, row)
}

// CreateDrawer relies on the cash_drawers_one_open partial index to refuse a
// second OPEN drawer.
func (t *pgTx) CreateDrawer(ctx context.Context, drawer domain.CashDrawer) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO cash_drawers (id, status, opened_by, opening_balance, opened_at)
		VALUES ($1,$2,$3,$4,$5)
	`, drawer.ID, drawer.Status, drawer.OpenedBy, drawer.OpeningBalance, drawer.OpenedAt)
	if err != nil {
		if violatedConstraint(err) == "cash_drawers_one_open" {
			return fmt.Errorf("%w: a drawer is already open", store.ErrConflict)
		}
		return err
	}
	return nil
}

func (t *pgTx) CloseDrawer(ctx context.Context, drawer domain.CashDrawer) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE cash_drawers
		SET status = 'CLOSED', closed_by = $2, closing_balance = $3, expected_balance = $4, closed_at = $5
		WHERE id = $1 AND status = 'OPEN'
	`, drawer.ID, nullIfEmpty(drawer.ClosedBy), nullDecimal(drawer.ClosingBalance), nullDecimal(drawer.ExpectedBalance), nullTime(drawer.ClosedAt))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: drawer %s is not open", store.ErrConflict, drawer.ID)
	}
	return nil
}

func (t *pgTx) AppendCashTransaction(ctx context.Context, txn domain.CashTransaction) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO cash_transactions (
			id, drawer_id, seq, type, amount, description, sale_id, payment_method, created_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, txn.ID, txn.DrawerID, txn.Seq, txn.Type, txn.Amount, nullIfEmpty(txn.Description), nullIfEmpty(txn.SaleID),
		nullIfEmpty(txn.PaymentMethod), txn.CreatedBy, txn.CreatedAt)
	if err != nil {
		if violatedConstraint(err) == "cash_transactions_drawer_seq_key" {
			return fmt.Errorf("%w: drawer %s sequence moved", store.ErrRetryable, txn.DrawerID)
		}
		return err
	}
	return nil
}

func (t *pgTx) FindIdempotency(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	var record domain.IdempotencyRecord
	err := t.q.QueryRowContext(ctx, `
		SELECT key, operation, entity_id, created_at
		FROM idempotency_keys
		WHERE key = $1
	`, key).Scan(&record.Key, &record.Operation, &record.EntityID, &record.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	record.CreatedAt = record.CreatedAt.UTC()
	return &record, nil
}

func (t *pgTx) SaveIdempotency(ctx context.Context, record domain.IdempotencyRecord) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO idempotency_keys (key, operation, entity_id, created_at)
		VALUES ($1,$2,$3,$4)
	`, record.Key, record.Operation, record.EntityID, record.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: idempotency key %s recorded concurrently", store.ErrRetryable, record.Key)
		}
		return err
	}
	return nil
}

func (t *pgTx) EnqueueEvent(ctx context.Context, event domain.OutboxEvent) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO outbox_events (id, topic, key, payload, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, event.ID, event.Topic, event.Key, string(event.Payload), event.CreatedAt)
	return err
}
