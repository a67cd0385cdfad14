package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
)

type fakeTx struct {
	products    map[string]domain.Product
	recipes     map[string][]domain.RecipeLine
	ingredients map[string]domain.Ingredient
	movements   []domain.IngredientMovement
}

func newFakeTx() *fakeTx {
	return &fakeTx{
		products: map[string]domain.Product{
			"prod-nasgor": {ID: "prod-nasgor", Name: "Nasi Goreng", Price: decimal.NewFromInt(25000), Active: true},
		},
		recipes: map[string][]domain.RecipeLine{
			"prod-nasgor": {
				{ProductID: "prod-nasgor", IngredientID: "ing-rice", QuantityUsed: decimal.RequireFromString("0.2"), Active: true},
				{ProductID: "prod-nasgor", IngredientID: "ing-egg", QuantityUsed: decimal.NewFromInt(1), Active: true},
				{ProductID: "prod-nasgor", IngredientID: "ing-chili", QuantityUsed: decimal.NewFromInt(2), Active: false},
			},
		},
		ingredients: map[string]domain.Ingredient{
			"ing-rice":  {ID: "ing-rice", PricePerUnit: decimal.NewFromInt(15000), CurrentStock: decimal.NewFromInt(10)},
			"ing-egg":   {ID: "ing-egg", PricePerUnit: decimal.NewFromInt(2000), CurrentStock: decimal.NewFromInt(1)},
			"ing-chili": {ID: "ing-chili", PricePerUnit: decimal.NewFromInt(500), CurrentStock: decimal.NewFromInt(50)},
		},
	}
}

func (f *fakeTx) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (f *fakeTx) ListRecipe(_ context.Context, productID string) ([]domain.RecipeLine, error) {
	return f.recipes[productID], nil
}

func (f *fakeTx) GetIngredients(_ context.Context, ids []string) (map[string]domain.Ingredient, error) {
	out := make(map[string]domain.Ingredient, len(ids))
	for _, id := range ids {
		if i, ok := f.ingredients[id]; ok {
			out[id] = i
		}
	}
	return out, nil
}

func (f *fakeTx) AdjustStock(_ context.Context, ingredientID string, delta decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	i, ok := f.ingredients[ingredientID]
	if !ok {
		return decimal.Zero, decimal.Zero, store.ErrNotFound
	}
	previous := i.CurrentStock
	i.CurrentStock = previous.Add(delta)
	f.ingredients[ingredientID] = i
	return previous, i.CurrentStock, nil
}

func (f *fakeTx) CreateMovement(_ context.Context, movement domain.IngredientMovement) error {
	f.movements = append(f.movements, movement)
	return nil
}

func (f *fakeTx) stock(id string) decimal.Decimal {
	return f.ingredients[id].CurrentStock
}

var fixedNow = func() time.Time { return time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC) }

func TestDeductSnapshotsActiveRecipeAndAllowsNegativeStock(t *testing.T) {
	tx := newFakeTx()
	l := New(fixedNow)

	snapshot, err := l.Deduct(context.Background(), tx, "prod-nasgor", 3, Ref{OrderID: "ord-1", Reason: domain.MovementSale})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snapshot) != 2 {
		t.Fatalf("expected inactive line to be skipped, got %d components", len(snapshot))
	}
	if !tx.stock("ing-rice").Equal(decimal.RequireFromString("9.4")) {
		t.Fatalf("expected rice 9.4, got %s", tx.stock("ing-rice"))
	}
	if !tx.stock("ing-egg").Equal(decimal.NewFromInt(-2)) {
		t.Fatalf("expected egg stock -2, got %s", tx.stock("ing-egg"))
	}
	if !tx.stock("ing-chili").Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected chili untouched, got %s", tx.stock("ing-chili"))
	}
	if len(tx.movements) != 2 || tx.movements[0].OrderID != "ord-1" || tx.movements[0].Reason != domain.MovementSale {
		t.Fatalf("unexpected movements %+v", tx.movements)
	}
	if !SnapshotCost(snapshot, 3).Equal(decimal.NewFromInt(15000)) {
		t.Fatalf("expected cost 15000, got %s", SnapshotCost(snapshot, 3))
	}
}

func TestRestoreUsesSnapshotNotLiveRecipe(t *testing.T) {
	tx := newFakeTx()
	l := New(fixedNow)
	ctx := context.Background()

	snapshot, err := l.Deduct(ctx, tx, "prod-nasgor", 2, Ref{OrderID: "ord-1", Reason: domain.MovementPark})
	if err != nil {
		t.Fatalf("deduct: %v", err)
	}
	tx.recipes["prod-nasgor"][0].QuantityUsed = decimal.NewFromInt(5)

	if err := l.Restore(ctx, tx, snapshot, 2, Ref{OrderID: "ord-1", Reason: domain.MovementVoid}); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !tx.stock("ing-rice").Equal(decimal.NewFromInt(10)) || !tx.stock("ing-egg").Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected stock back to start, got rice=%s egg=%s", tx.stock("ing-rice"), tx.stock("ing-egg"))
	}
}

func TestDeductRejectsUnknownProductAndBadQuantity(t *testing.T) {
	tx := newFakeTx()
	l := New(fixedNow)

	if _, err := l.Deduct(context.Background(), tx, "prod-missing", 1, Ref{}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := l.Deduct(context.Background(), tx, "prod-nasgor", 0, Ref{}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(tx.movements) != 0 {
		t.Fatalf("expected no movements, got %d", len(tx.movements))
	}
}

func TestCostReportsMissingIngredients(t *testing.T) {
	tx := newFakeTx()
	delete(tx.ingredients, "ing-egg")

	cost, missing, err := New(fixedNow).Cost(context.Background(), tx, "prod-nasgor", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(missing) != 1 || missing[0] != "ing-egg" {
		t.Fatalf("expected ing-egg missing, got %v", missing)
	}
	if !cost.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("expected partial cost 3000, got %s", cost)
	}
}

func TestReceiveBooksMovement(t *testing.T) {
	tx := newFakeTx()
	l := New(fixedNow)

	movement, err := l.Receive(context.Background(), tx, "ing-egg", decimal.NewFromInt(30), "supplier")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !movement.Previous.Equal(decimal.NewFromInt(1)) || !movement.Current.Equal(decimal.NewFromInt(31)) {
		t.Fatalf("unexpected movement %+v", movement)
	}
	if movement.Reason != domain.MovementReceive || !movement.CreatedAt.Equal(fixedNow()) {
		t.Fatalf("unexpected movement metadata %+v", movement)
	}
	if _, err := l.Receive(context.Background(), tx, "ing-egg", decimal.Zero, ""); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for zero quantity, got %v", err)
	}
}
