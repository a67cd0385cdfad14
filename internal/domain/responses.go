package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ErrorCode string

const (
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeInvalidState     ErrorCode = "INVALID_STATE"
	CodeConflict         ErrorCode = "CONFLICT"
	CodeValidation       ErrorCode = "VALIDATION_ERROR"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeAlreadyVoided    ErrorCode = "ALREADY_VOIDED"
)

// Result is the envelope every engine operation answers with. Success false
// means nothing was changed.
type Result[T any] struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Code      ErrorCode `json:"code,omitempty"`
	Duplicate bool      `json:"duplicate,omitempty"`
	Data      T         `json:"data"`
}

func OK[T any](message string, data T) Result[T] {
	return Result[T]{Success: true, Message: message, Data: data}
}

func Fail[T any](code ErrorCode, message string) Result[T] {
	return Result[T]{Success: false, Code: code, Message: message}
}

type OrderSummary struct {
	ID          string          `json:"id"`
	OrderNo     string          `json:"order_no"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CostOfGoods decimal.Decimal `json:"cost_of_goods"`
	GrossProfit decimal.Decimal `json:"gross_profit"`
	Status      string          `json:"status"`
}

func SummarizeOrder(o Order) OrderSummary {
	return OrderSummary{
		ID:          o.ID,
		OrderNo:     o.OrderNo,
		TotalAmount: o.TotalAmount,
		CostOfGoods: o.CostOfGoods,
		GrossProfit: o.GrossProfit,
		Status:      o.Status,
	}
}

type ItemChange struct {
	Order          OrderSummary    `json:"order"`
	LineID         string          `json:"line_id"`
	PriceDelta     decimal.Decimal `json:"price_delta"`
	DrawerAdjusted bool            `json:"drawer_adjusted"`
}

type KitchenTicket struct {
	OrderID     string              `json:"order_id"`
	OrderNo     string              `json:"order_no"`
	OrderType   string              `json:"order_type"`
	TableNumber string              `json:"table_number,omitempty"`
	Lines       []KitchenTicketLine `json:"lines"`
	PrintedAt   time.Time           `json:"printed_at"`
}

type KitchenTicketLine struct {
	LineID      string `json:"line_id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
}

type DrawerView struct {
	CashDrawer
	CurrentBalance        decimal.Decimal            `json:"current_balance"`
	Difference            *decimal.Decimal           `json:"difference,omitempty"`
	TotalsByType          map[string]decimal.Decimal `json:"totals_by_type"`
	TotalsByPaymentMethod map[string]decimal.Decimal `json:"totals_by_payment_method"`
}

type SaleView struct {
	ID             string          `json:"id"`
	OrderNo        string          `json:"order_no"`
	Status         string          `json:"status"`
	OrderType      string          `json:"order_type"`
	TableNumber    string          `json:"table_number,omitempty"`
	CashierID      string          `json:"cashier_id"`
	PaymentMethod  string          `json:"payment_method,omitempty"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	CostOfGoods    decimal.Decimal `json:"cost_of_goods"`
	GrossProfit    decimal.Decimal `json:"gross_profit"`
	VoidReason     string          `json:"void_reason,omitempty"`
	IsDeleted      bool            `json:"is_deleted"`
	ItemCount      int             `json:"item_count"`
	PendingKitchen int             `json:"pending_kitchen"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	Lines          []SaleLineView  `json:"lines"`
}

type SaleLineView struct {
	ID              string               `json:"id"`
	ProductID       string               `json:"product_id"`
	ProductName     string               `json:"product_name"`
	Quantity        int                  `json:"quantity"`
	QuantityPrinted int                  `json:"quantity_printed"`
	PriceAtSale     decimal.Decimal      `json:"price_at_sale"`
	LineTotal       decimal.Decimal      `json:"line_total"`
	CostAtSale      decimal.Decimal      `json:"cost_at_sale"`
	Ingredients     []SaleIngredientView `json:"ingredients"`
}

type SaleIngredientView struct {
	IngredientID string          `json:"ingredient_id"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	Quantity     decimal.Decimal `json:"quantity"`
}

// CostQuote prices a quantity of a product against its current recipe.
// Missing lists recipe ingredients that no longer resolve; the cost then
// excludes them.
type CostQuote struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Cost      decimal.Decimal `json:"cost"`
	Missing   []string        `json:"missing"`
}
