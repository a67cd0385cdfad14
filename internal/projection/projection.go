package projection

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"restopos/backend/internal/cache"
	"restopos/backend/internal/domain"
)

// Source is the read side the projector assembles views from.
type Source interface {
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, filter domain.SaleFilter) ([]domain.Order, error)
	GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error)
	GetIngredients(ctx context.Context, ids []string) (map[string]domain.Ingredient, error)
}

type Projector struct {
	cache    cache.SaleCache
	cacheTTL time.Duration
}

func NewProjector(cacheStore cache.SaleCache, cacheTTL time.Duration) *Projector {
	if cacheStore == nil {
		cacheStore = cache.NoopSaleCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &Projector{cache: cacheStore, cacheTTL: cacheTTL}
}

func (p *Projector) Sale(ctx context.Context, src Source, id string) (domain.SaleView, error) {
	key := cache.SaleKey(id)
	if cached, ok, err := p.cache.Get(ctx, key); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		log.Printf("[projection] WARN: cache get %s: %v", key, err)
	}

	order, err := src.GetOrder(ctx, id)
	if err != nil {
		return domain.SaleView{}, err
	}
	views, err := p.build(ctx, src, []domain.Order{*order})
	if err != nil {
		return domain.SaleView{}, err
	}
	view := views[0]
	if err := p.cache.Set(ctx, key, &view, p.cacheTTL); err != nil {
		log.Printf("[projection] WARN: cache set %s: %v", key, err)
	}
	return view, nil
}

func (p *Projector) Sales(ctx context.Context, src Source, filter domain.SaleFilter) ([]domain.SaleView, error) {
	orders, err := src.ListOrders(ctx, filter)
	if err != nil {
		return nil, err
	}
	return p.build(ctx, src, orders)
}

// Invalidate drops the cached view after a mutation.
func (p *Projector) Invalidate(ctx context.Context, id string) {
	if err := p.cache.Delete(ctx, cache.SaleKey(id)); err != nil {
		log.Printf("[projection] WARN: cache delete %s: %v", id, err)
	}
}

func (p *Projector) build(ctx context.Context, src Source, orders []domain.Order) ([]domain.SaleView, error) {
	productSet := make(map[string]struct{})
	ingredientSet := make(map[string]struct{})
	for _, order := range orders {
		for _, line := range order.Lines {
			productSet[line.ProductID] = struct{}{}
			for _, component := range line.Recipe {
				ingredientSet[component.IngredientID] = struct{}{}
			}
		}
	}

	products, err := src.GetProducts(ctx, keys(productSet))
	if err != nil {
		return nil, err
	}
	ingredients, err := src.GetIngredients(ctx, keys(ingredientSet))
	if err != nil {
		return nil, err
	}

	views := make([]domain.SaleView, 0, len(orders))
	for _, order := range orders {
		views = append(views, Build(order, products, ingredients))
	}
	return views, nil
}

// Build denormalizes an order with product names and the ingredient usage
// recorded on each line. It performs no I/O.
func Build(order domain.Order, products map[string]domain.Product, ingredients map[string]domain.Ingredient) domain.SaleView {
	view := domain.SaleView{
		ID:            order.ID,
		OrderNo:       order.OrderNo,
		Status:        order.Status,
		OrderType:     order.OrderType,
		TableNumber:   order.TableNumber,
		CashierID:     order.CashierID,
		PaymentMethod: order.PaymentMethod,
		TotalAmount:   order.TotalAmount,
		CostOfGoods:   order.CostOfGoods,
		GrossProfit:   order.GrossProfit,
		VoidReason:    order.VoidReason,
		IsDeleted:     order.IsDeleted,
		CreatedAt:     order.CreatedAt,
		CompletedAt:   order.CompletedAt,
		Lines:         make([]domain.SaleLineView, 0, len(order.Lines)),
	}

	for _, line := range order.Lines {
		name := line.ProductID
		if product, ok := products[line.ProductID]; ok {
			name = product.Name
		}
		lineView := domain.SaleLineView{
			ID:              line.ID,
			ProductID:       line.ProductID,
			ProductName:     name,
			Quantity:        line.Quantity,
			QuantityPrinted: line.QuantityPrinted,
			PriceAtSale:     line.PriceAtSale,
			LineTotal:       line.LineTotal(),
			CostAtSale:      line.CostAtSale,
			Ingredients:     make([]domain.SaleIngredientView, 0, len(line.Recipe)),
		}
		units := decimal.NewFromInt(int64(line.Quantity))
		for _, component := range line.Recipe {
			ingredientView := domain.SaleIngredientView{
				IngredientID: component.IngredientID,
				Name:         component.IngredientID,
				Quantity:     component.QuantityUsed.Mul(units),
			}
			if ingredient, ok := ingredients[component.IngredientID]; ok {
				ingredientView.Name = ingredient.Name
				ingredientView.Unit = ingredient.Unit
			}
			lineView.Ingredients = append(lineView.Ingredients, ingredientView)
		}

		view.ItemCount += line.Quantity
		if pending := line.Quantity - line.QuantityPrinted; pending > 0 {
			view.PendingKitchen += pending
		}
		view.Lines = append(view.Lines, lineView)
	}
	return view
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
