package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderStatusParked      = "PARKED"
	OrderStatusCompleted   = "COMPLETED"
	OrderStatusVoid        = "VOID"
	OrderStatusRefunded    = "REFUNDED"
	OrderStatusItemChanged = "ITEM_CHANGED"
)

const (
	OrderTypeDineIn   = "DINE_IN"
	OrderTypeTakeaway = "TAKEAWAY"
	OrderTypeDelivery = "DELIVERY"
)

const (
	OrderPrefixPark     = "PARK"
	OrderPrefixCheckout = "ORD"
)

const (
	PaymentCash    = "cash"
	PaymentCard    = "card"
	PaymentQRIS    = "qris"
	PaymentEwallet = "ewallet"
)

const (
	DrawerStatusOpen   = "OPEN"
	DrawerStatusClosed = "CLOSED"
)

const (
	CashTxOpening = "OPENING"
	CashTxCashIn  = "CASH_IN"
	CashTxCashOut = "CASH_OUT"
	CashTxSale    = "SALE"
	CashTxRefund  = "REFUND"
	CashTxVoid    = "VOID"
	CashTxClosing = "CLOSING"
)

const (
	MovementPark        = "PARK"
	MovementSale        = "SALE"
	MovementRestorePark = "RESTORE_PARK"
	MovementVoid        = "VOID"
	MovementRefund      = "REFUND"
	MovementItemChange  = "ITEM_CHANGE"
	MovementReceive     = "RECEIVE"
)

type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
}

type Ingredient struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	CurrentStock decimal.Decimal `json:"current_stock"`
	Active       bool            `json:"active"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// RecipeLine is one bill-of-materials entry: one unit of ProductID consumes
// QuantityUsed units of IngredientID.
type RecipeLine struct {
	ProductID    string          `json:"product_id"`
	IngredientID string          `json:"ingredient_id"`
	QuantityUsed decimal.Decimal `json:"quantity_used"`
	Active       bool            `json:"active"`
}

// RecipeComponent is the per-unit recipe entry frozen onto an order line when
// its stock was deducted.
type RecipeComponent struct {
	IngredientID string          `json:"ingredient_id"`
	QuantityUsed decimal.Decimal `json:"quantity_used"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
}

type IngredientMovement struct {
	ID           string          `json:"id"`
	IngredientID string          `json:"ingredient_id"`
	Delta        decimal.Decimal `json:"delta"`
	Previous     decimal.Decimal `json:"previous"`
	Current      decimal.Decimal `json:"current"`
	Reason       string          `json:"reason"`
	OrderID      string          `json:"order_id,omitempty"`
	Note         string          `json:"note,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

type Order struct {
	ID            string          `json:"id"`
	OrderNo       string          `json:"order_no"`
	Status        string          `json:"status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	CostOfGoods   decimal.Decimal `json:"cost_of_goods"`
	GrossProfit   decimal.Decimal `json:"gross_profit"`
	OrderType     string          `json:"order_type"`
	TableNumber   string          `json:"table_number,omitempty"`
	CashierID     string          `json:"cashier_id"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	VoidReason    string          `json:"void_reason,omitempty"`
	IsDeleted     bool            `json:"is_deleted"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	Lines         []OrderLine     `json:"lines"`
}

// Settled reports whether money has been collected for the order.
func (o Order) Settled() bool {
	return o.Status == OrderStatusCompleted || o.Status == OrderStatusItemChanged
}

func (o Order) Terminal() bool {
	return o.Status == OrderStatusVoid || o.Status == OrderStatusRefunded
}

type OrderLine struct {
	ID              string            `json:"id"`
	OrderID         string            `json:"order_id"`
	ProductID       string            `json:"product_id"`
	Quantity        int               `json:"quantity"`
	PriceAtSale     decimal.Decimal   `json:"price_at_sale"`
	QuantityPrinted int               `json:"quantity_printed"`
	CostAtSale      decimal.Decimal   `json:"cost_at_sale"`
	Recipe          []RecipeComponent `json:"recipe"`
}

func (l OrderLine) LineTotal() decimal.Decimal {
	return l.PriceAtSale.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type CashDrawer struct {
	ID              string            `json:"id"`
	Status          string            `json:"status"`
	OpenedBy        string            `json:"opened_by"`
	ClosedBy        string            `json:"closed_by,omitempty"`
	OpeningBalance  decimal.Decimal   `json:"opening_balance"`
	ClosingBalance  *decimal.Decimal  `json:"closing_balance,omitempty"`
	ExpectedBalance *decimal.Decimal  `json:"expected_balance,omitempty"`
	OpenedAt        time.Time         `json:"opened_at"`
	ClosedAt        *time.Time        `json:"closed_at,omitempty"`
	Transactions    []CashTransaction `json:"transactions"`
}

type CashTransaction struct {
	ID            string          `json:"id"`
	DrawerID      string          `json:"drawer_id"`
	Seq           int             `json:"seq"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description,omitempty"`
	SaleID        string          `json:"sale_id,omitempty"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	CreatedBy     string          `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

// IdempotencyRecord remembers which entity a mutation request produced so a
// retried request can be answered without repeating side effects.
type IdempotencyRecord struct {
	Key       string    `json:"key"`
	Operation string    `json:"operation"`
	EntityID  string    `json:"entity_id"`
	CreatedAt time.Time `json:"created_at"`
}

type OutboxEvent struct {
	ID          string     `json:"id"`
	Topic       string     `json:"topic"`
	Key         string     `json:"key"`
	Payload     []byte     `json:"payload"`
	CreatedAt   time.Time  `json:"created_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

type Actor struct {
	Username string
	Role     string
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
