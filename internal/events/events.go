package events

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/xid"
)

const (
	TopicOrders  = "restopos.orders"
	TopicDrawers = "restopos.drawers"
)

const (
	OrderParked        = "order.parked"
	OrderCompleted     = "order.completed"
	OrderVoided        = "order.voided"
	OrderRefunded      = "order.refunded"
	OrderItemChanged   = "order.item_changed"
	OrderSentToKitchen = "order.sent_to_kitchen"
	DrawerOpened       = "drawer.opened"
	DrawerClosed       = "drawer.closed"
	DrawerCashIn       = "drawer.cash_in"
	DrawerCashOut      = "drawer.cash_out"
)

type Envelope struct {
	EventID    string          `json:"event_id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

type OrderData struct {
	OrderID     string          `json:"order_id"`
	OrderNo     string          `json:"order_no"`
	Status      string          `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CostOfGoods decimal.Decimal `json:"cost_of_goods"`
	Actor       string          `json:"actor"`
}

type DrawerData struct {
	DrawerID string          `json:"drawer_id"`
	EntryID  string          `json:"entry_id,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
	Balance  decimal.Decimal `json:"balance"`
	Actor    string          `json:"actor"`
}

func ForOrder(eventType string, order domain.Order, actor string, at time.Time) (domain.OutboxEvent, error) {
	return build(TopicOrders, eventType, order.ID, OrderData{
		OrderID:     order.ID,
		OrderNo:     order.OrderNo,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		CostOfGoods: order.CostOfGoods,
		Actor:       actor,
	}, at)
}

func ForDrawer(eventType string, drawerID string, data DrawerData, at time.Time) (domain.OutboxEvent, error) {
	data.DrawerID = drawerID
	return build(TopicDrawers, eventType, drawerID, data, at)
}

func build(topic string, eventType string, key string, data any, at time.Time) (domain.OutboxEvent, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return domain.OutboxEvent{}, err
	}
	id := xid.New("evt")
	payload, err := json.Marshal(Envelope{EventID: id, Type: eventType, OccurredAt: at, Data: raw})
	if err != nil {
		return domain.OutboxEvent{}, err
	}
	return domain.OutboxEvent{
		ID:        id,
		Topic:     topic,
		Key:       key,
		Payload:   payload,
		CreatedAt: at,
	}, nil
}
