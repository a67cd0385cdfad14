package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/policy"
	"restopos/backend/internal/store"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if !policyFromContext(ctx).Can(policy.OpCatalogWrite) {
		return domain.Product{}, store.ErrPermissionDenied
	}

	req.ID = strings.TrimSpace(req.ID)
	req.Name = strings.TrimSpace(req.Name)
	if req.ID == "" {
		req.ID = slug("prod", req.Name)
	}
	if req.Name == "" || req.Price.IsNegative() {
		return domain.Product{}, fmt.Errorf("%w: name and a non-negative price are required", store.ErrValidation)
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:        req.ID,
		Name:      req.Name,
		Price:     req.Price,
		Active:    true,
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%s", created.Name, created.Price))
	return *created, nil
}

func (s *Service) ListIngredients(ctx context.Context) ([]domain.Ingredient, error) {
	return s.repo.ListIngredients(ctx)
}

// CreateIngredient registers an ingredient with zero stock and books any
// initial stock as a RECEIVE movement.
func (s *Service) CreateIngredient(ctx context.Context, req domain.IngredientCreateRequest) (domain.Ingredient, error) {
	if !policyFromContext(ctx).Can(policy.OpCatalogWrite) {
		return domain.Ingredient{}, store.ErrPermissionDenied
	}

	req.ID = strings.TrimSpace(req.ID)
	req.Name = strings.TrimSpace(req.Name)
	req.Unit = strings.TrimSpace(req.Unit)
	if req.ID == "" {
		req.ID = slug("ing", req.Name)
	}
	if req.Name == "" || req.Unit == "" {
		return domain.Ingredient{}, fmt.Errorf("%w: name and unit are required", store.ErrValidation)
	}
	if req.PricePerUnit.IsNegative() || req.InitialStock.IsNegative() {
		return domain.Ingredient{}, fmt.Errorf("%w: price and initial stock must not be negative", store.ErrValidation)
	}

	created, err := s.repo.CreateIngredient(ctx, domain.Ingredient{
		ID:           req.ID,
		Name:         req.Name,
		Unit:         req.Unit,
		PricePerUnit: req.PricePerUnit,
		CurrentStock: decimal.Zero,
		Active:       true,
		UpdatedAt:    s.now(),
	})
	if err != nil {
		return domain.Ingredient{}, err
	}

	if req.InitialStock.IsPositive() {
		movement, err := s.receive(ctx, created.ID, req.InitialStock, "initial stock")
		if err != nil {
			return domain.Ingredient{}, err
		}
		created.CurrentStock = movement.Current
	}

	s.logAudit(ctx, "ingredient_create", "ingredient", created.ID, fmt.Sprintf("name=%s,unit=%s,stock=%s", created.Name, created.Unit, created.CurrentStock))
	return *created, nil
}

func (s *Service) SetRecipeLine(ctx context.Context, req domain.RecipeLineRequest) (domain.RecipeLine, error) {
	if !policyFromContext(ctx).Can(policy.OpCatalogWrite) {
		return domain.RecipeLine{}, store.ErrPermissionDenied
	}

	line := domain.RecipeLine{
		ProductID:    strings.TrimSpace(req.ProductID),
		IngredientID: strings.TrimSpace(req.IngredientID),
		QuantityUsed: req.QuantityUsed,
		Active:       true,
	}
	if req.Active != nil {
		line.Active = *req.Active
	}
	if line.ProductID == "" || line.IngredientID == "" || !line.QuantityUsed.IsPositive() {
		return domain.RecipeLine{}, fmt.Errorf("%w: product, ingredient and a positive quantity are required", store.ErrValidation)
	}

	if err := s.repo.UpsertRecipeLine(ctx, line); err != nil {
		return domain.RecipeLine{}, err
	}
	s.logAudit(ctx, "recipe_upsert", "product", line.ProductID, fmt.Sprintf("ingredient=%s,qty=%s,active=%t", line.IngredientID, line.QuantityUsed, line.Active))
	return line, nil
}

func (s *Service) ListRecipe(ctx context.Context, productID string) ([]domain.RecipeLine, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, fmt.Errorf("%w: product id is required", store.ErrValidation)
	}
	return s.repo.ListRecipe(ctx, productID)
}

// QuoteCost prices quantity units of a product against its live recipe.
func (s *Service) QuoteCost(ctx context.Context, productID string, quantity int) (domain.CostQuote, error) {
	if quantity < 1 {
		quantity = 1
	}
	quote := domain.CostQuote{ProductID: productID, Quantity: quantity, Missing: []string{}}
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		cost, missing, err := s.inventory.Cost(ctx, tx, productID, quantity)
		if err != nil {
			return err
		}
		quote.Cost = cost
		if missing != nil {
			quote.Missing = missing
		}
		return nil
	})
	if err != nil {
		return domain.CostQuote{}, err
	}
	return quote, nil
}

func (s *Service) ReceiveStock(ctx context.Context, req domain.StockReceiveRequest) (domain.IngredientMovement, error) {
	if !policyFromContext(ctx).Can(policy.OpStockReceive) {
		return domain.IngredientMovement{}, store.ErrPermissionDenied
	}
	if strings.TrimSpace(req.IngredientID) == "" {
		return domain.IngredientMovement{}, fmt.Errorf("%w: ingredient id is required", store.ErrValidation)
	}

	movement, err := s.receive(ctx, req.IngredientID, req.Quantity, strings.TrimSpace(req.Note))
	if err != nil {
		return domain.IngredientMovement{}, err
	}
	s.logAudit(ctx, "stock_receive", "ingredient", req.IngredientID, fmt.Sprintf("qty=%s,stock=%s", req.Quantity, movement.Current))
	return movement, nil
}

func (s *Service) ListMovements(ctx context.Context, ingredientID string, limit int) ([]domain.IngredientMovement, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListMovements(ctx, strings.TrimSpace(ingredientID), limit)
}

func (s *Service) receive(ctx context.Context, ingredientID string, quantity decimal.Decimal, note string) (domain.IngredientMovement, error) {
	var movement domain.IngredientMovement
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		movement, err = s.inventory.Receive(ctx, tx, ingredientID, quantity, note)
		return err
	})
	return movement, err
}

func slug(prefix string, name string) string {
	var b strings.Builder
	b.WriteString(prefix)
	separate := true
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if separate {
				b.WriteByte('-')
				separate = false
			}
			b.WriteRune(r)
			continue
		}
		separate = true
	}
	return b.String()
}
