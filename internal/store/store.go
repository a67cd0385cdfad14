package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"restopos/backend/internal/domain"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidState     = errors.New("invalid state")
	ErrConflict         = errors.New("conflict")
	ErrValidation       = errors.New("validation error")
	ErrPermissionDenied = errors.New("permission denied")
	ErrAlreadyVoided    = fmt.Errorf("%w: order already voided", ErrConflict)

	// ErrRetryable marks storage conflicts (serialization failures, order
	// number collisions) after which the whole operation may be re-run.
	ErrRetryable = errors.New("retryable storage conflict")
)

// Tx is the unit of work every engine operation runs in. Implementations
// either commit all writes made through it or none.
type Tx interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error)
	ListRecipe(ctx context.Context, productID string) ([]domain.RecipeLine, error)
	GetIngredients(ctx context.Context, ids []string) (map[string]domain.Ingredient, error)
	AdjustStock(ctx context.Context, ingredientID string, delta decimal.Decimal) (previous decimal.Decimal, current decimal.Decimal, err error)
	CreateMovement(ctx context.Context, movement domain.IngredientMovement) error

	CountOrdersByPrefix(ctx context.Context, prefix string) (int, error)
	GetOrderForUpdate(ctx context.Context, id string) (*domain.Order, error)
	CreateOrder(ctx context.Context, order domain.Order) error
	UpdateOrder(ctx context.Context, order domain.Order) error

	GetDrawer(ctx context.Context, id string) (*domain.CashDrawer, error)
	GetOpenDrawerForUpdate(ctx context.Context) (*domain.CashDrawer, error)
	CreateDrawer(ctx context.Context, drawer domain.CashDrawer) error
	CloseDrawer(ctx context.Context, drawer domain.CashDrawer) error
	AppendCashTransaction(ctx context.Context, txn domain.CashTransaction) error

	FindIdempotency(ctx context.Context, key string) (*domain.IdempotencyRecord, error)
	SaveIdempotency(ctx context.Context, record domain.IdempotencyRecord) error
	EnqueueEvent(ctx context.Context, event domain.OutboxEvent) error
}

type Repository interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, filter domain.SaleFilter) ([]domain.Order, error)

	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ListIngredients(ctx context.Context) ([]domain.Ingredient, error)
	GetIngredients(ctx context.Context, ids []string) (map[string]domain.Ingredient, error)
	CreateIngredient(ctx context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error)
	ListRecipe(ctx context.Context, productID string) ([]domain.RecipeLine, error)
	UpsertRecipeLine(ctx context.Context, line domain.RecipeLine) error
	ListMovements(ctx context.Context, ingredientID string, limit int) ([]domain.IngredientMovement, error)

	GetDrawer(ctx context.Context, id string) (*domain.CashDrawer, error)
	GetOpenDrawer(ctx context.Context) (*domain.CashDrawer, error)
	ListDrawers(ctx context.Context, limit int) ([]domain.CashDrawer, error)

	FetchPendingEvents(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	MarkEventsPublished(ctx context.Context, ids []string, at time.Time) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
