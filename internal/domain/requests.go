package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type ParkRequest struct {
	ID             string      `json:"id,omitempty"`
	Items          []OrderItem `json:"items"`
	OrderType      string      `json:"order_type"`
	TableNumber    string      `json:"table_number,omitempty"`
	IdempotencyKey string      `json:"idempotency_key,omitempty"`
}

type CheckoutRequest struct {
	ID             string      `json:"id,omitempty"`
	Items          []OrderItem `json:"items"`
	OrderType      string      `json:"order_type"`
	TableNumber    string      `json:"table_number,omitempty"`
	PaymentMethod  string      `json:"payment_method"`
	IdempotencyKey string      `json:"idempotency_key,omitempty"`
}

type VoidRequest struct {
	OrderID        string `json:"-"`
	VoidReason     string `json:"void_reason"`
	ManagerPIN     string `json:"manager_pin,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type RefundRequest struct {
	OrderID        string `json:"-"`
	RefundReason   string `json:"refund_reason"`
	ManagerPIN     string `json:"manager_pin,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type ChangeItemRequest struct {
	OrderID        string `json:"-"`
	OldLineID      string `json:"old_line_id"`
	NewProductID   string `json:"new_product_id"`
	NewQuantity    int    `json:"new_quantity"`
	Reason         string `json:"reason"`
	ManagerPIN     string `json:"manager_pin,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type KitchenRequest struct {
	OrderID string   `json:"-"`
	LineIDs []string `json:"line_ids"`
}

type DrawerOpenRequest struct {
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

type DrawerCloseRequest struct {
	ClosingBalance decimal.Decimal `json:"closing_balance"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

type CashMovementRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

type SaleFilter struct {
	Status         string
	From           time.Time
	To             time.Time
	IncludeDeleted bool
	Limit          int
}

type ProductCreateRequest struct {
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type IngredientCreateRequest struct {
	ID           string          `json:"id,omitempty"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	InitialStock decimal.Decimal `json:"initial_stock"`
}

type RecipeLineRequest struct {
	ProductID    string          `json:"product_id"`
	IngredientID string          `json:"ingredient_id"`
	QuantityUsed decimal.Decimal `json:"quantity_used"`
	Active       *bool           `json:"active,omitempty"`
}

type StockReceiveRequest struct {
	IngredientID string          `json:"-"`
	Quantity     decimal.Decimal `json:"quantity"`
	Note         string          `json:"note,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
