package inventory

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
	"restopos/backend/internal/xid"
)

// Tx is the slice of store.Tx the ledger needs.
type Tx interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListRecipe(ctx context.Context, productID string) ([]domain.RecipeLine, error)
	GetIngredients(ctx context.Context, ids []string) (map[string]domain.Ingredient, error)
	AdjustStock(ctx context.Context, ingredientID string, delta decimal.Decimal) (decimal.Decimal, decimal.Decimal, error)
	CreateMovement(ctx context.Context, movement domain.IngredientMovement) error
}

// Ref ties a stock adjustment to the order and reason that caused it.
type Ref struct {
	OrderID string
	Reason  string
}

type Ledger struct {
	now func() time.Time
}

func New(now func() time.Time) *Ledger {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Ledger{now: now}
}

// Snapshot resolves the live recipe of a product into the components that
// would be deducted for one unit. Recipe lines whose ingredient no longer
// exists are skipped and returned in missing.
func (l *Ledger) Snapshot(ctx context.Context, tx Tx, productID string) ([]domain.RecipeComponent, []string, error) {
	if _, err := tx.GetProduct(ctx, productID); err != nil {
		return nil, nil, fmt.Errorf("product %s: %w", productID, err)
	}
	recipe, err := tx.ListRecipe(ctx, productID)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]string, 0, len(recipe))
	for _, line := range recipe {
		ids = append(ids, line.IngredientID)
	}
	ingredients, err := tx.GetIngredients(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	components := make([]domain.RecipeComponent, 0, len(recipe))
	var missing []string
	for _, line := range recipe {
		if !line.Active {
			continue
		}
		ingredient, ok := ingredients[line.IngredientID]
		if !ok {
			missing = append(missing, line.IngredientID)
			continue
		}
		components = append(components, domain.RecipeComponent{
			IngredientID: line.IngredientID,
			QuantityUsed: line.QuantityUsed,
			PricePerUnit: ingredient.PricePerUnit,
		})
	}
	return components, missing, nil
}

// Cost prices quantity units of a product against its current recipe. The
// cost is partial when some ingredients no longer resolve.
func (l *Ledger) Cost(ctx context.Context, tx Tx, productID string, quantity int) (decimal.Decimal, []string, error) {
	components, missing, err := l.Snapshot(ctx, tx, productID)
	if err != nil {
		return decimal.Zero, nil, err
	}
	if len(missing) > 0 {
		log.Printf("[inventory] WARN: product %s cost is partial, missing ingredients %v", productID, missing)
	}
	return SnapshotCost(components, quantity), missing, nil
}

// Deduct consumes quantity units of a product from stock and returns the
// recipe snapshot that was applied. Stock may go negative.
func (l *Ledger) Deduct(ctx context.Context, tx Tx, productID string, quantity int, ref Ref) ([]domain.RecipeComponent, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be positive", store.ErrValidation)
	}
	components, missing, err := l.Snapshot(ctx, tx, productID)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		log.Printf("[inventory] WARN: product %s deducted without missing ingredients %v", productID, missing)
	}
	if err := l.apply(ctx, tx, components, quantity, -1, ref); err != nil {
		return nil, err
	}
	return components, nil
}

// Restore replays a snapshot in reverse. It never consults the live recipe,
// so Deduct followed by Restore leaves stock unchanged.
func (l *Ledger) Restore(ctx context.Context, tx Tx, snapshot []domain.RecipeComponent, quantity int, ref Ref) error {
	if quantity < 1 || len(snapshot) == 0 {
		return nil
	}
	return l.apply(ctx, tx, snapshot, quantity, 1, ref)
}

// Receive books an incoming stock delivery.
func (l *Ledger) Receive(ctx context.Context, tx Tx, ingredientID string, quantity decimal.Decimal, note string) (domain.IngredientMovement, error) {
	if !quantity.IsPositive() {
		return domain.IngredientMovement{}, fmt.Errorf("%w: received quantity must be positive", store.ErrValidation)
	}
	previous, current, err := tx.AdjustStock(ctx, ingredientID, quantity)
	if err != nil {
		return domain.IngredientMovement{}, err
	}
	movement := domain.IngredientMovement{
		ID:           xid.New("mov"),
		IngredientID: ingredientID,
		Delta:        quantity,
		Previous:     previous,
		Current:      current,
		Reason:       domain.MovementReceive,
		Note:         note,
		CreatedAt:    l.now(),
	}
	if err := tx.CreateMovement(ctx, movement); err != nil {
		return domain.IngredientMovement{}, err
	}
	return movement, nil
}

func (l *Ledger) apply(ctx context.Context, tx Tx, components []domain.RecipeComponent, quantity int, sign int64, ref Ref) error {
	units := decimal.NewFromInt(int64(quantity) * sign)
	at := l.now()
	for _, component := range components {
		delta := component.QuantityUsed.Mul(units)
		if delta.IsZero() {
			continue
		}
		previous, current, err := tx.AdjustStock(ctx, component.IngredientID, delta)
		if err != nil {
			return fmt.Errorf("adjust stock %s: %w", component.IngredientID, err)
		}
		if err := tx.CreateMovement(ctx, domain.IngredientMovement{
			ID:           xid.New("mov"),
			IngredientID: component.IngredientID,
			Delta:        delta,
			Previous:     previous,
			Current:      current,
			Reason:       ref.Reason,
			OrderID:      ref.OrderID,
			CreatedAt:    at,
		}); err != nil {
			return err
		}
	}
	return nil
}

// SnapshotCost prices quantity units using the per-unit prices frozen in the
// snapshot.
func SnapshotCost(components []domain.RecipeComponent, quantity int) decimal.Decimal {
	units := decimal.NewFromInt(int64(quantity))
	total := decimal.Zero
	for _, component := range components {
		total = total.Add(component.PricePerUnit.Mul(component.QuantityUsed).Mul(units))
	}
	return total
}
