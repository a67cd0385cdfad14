package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/events"
	"restopos/backend/internal/inventory"
	"restopos/backend/internal/policy"
	"restopos/backend/internal/store"
	"restopos/backend/internal/xid"
)

const (
	idemPark       = "order.park"
	idemCheckout   = "order.checkout"
	idemVoid       = "order.void"
	idemRefund     = "order.refund"
	idemChangeItem = "order.change_item"
)

func (s *Service) Park(ctx context.Context, req domain.ParkRequest) (domain.Result[domain.OrderSummary], error) {
	return execute(ctx, s, policy.OpPark, func(ctx context.Context, tx store.Tx, fx *effects) (domain.Result[domain.OrderSummary], error) {
		if res, ok, err := replayOrder(ctx, tx, req.IdempotencyKey, idemPark, "Order already parked"); ok || err != nil {
			return res, err
		}
		items, err := normalizeItems(req.Items)
		if err != nil {
			return domain.Result[domain.OrderSummary]{}, err
		}
		orderType, err := normalizeOrderType(req.OrderType)
		if err != nil {
			return domain.Result[domain.OrderSummary]{}, err
		}
		now := s.now()

		var order domain.Order
		message := "Order parked"
		if strings.TrimSpace(req.ID) == "" {
			orderNo, err := s.numbers.Allocate(ctx, tx, domain.OrderPrefixPark, now)
			if err != nil {
				return domain.Result[domain.OrderSummary]{}, err
			}
			order = domain.Order{
				ID:          xid.New("ord"),
				OrderNo:     orderNo,
				Status:      domain.OrderStatusParked,
				OrderType:   orderType,
				TableNumber: strings.TrimSpace(req.TableNumber),
				CashierID:   actorName(ctx),
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if order.Lines, err = s.deductLines(ctx, tx, order.ID, items, domain.MovementPark); err != nil {
				return domain.Result[domain.OrderSummary]{}, err
			}
			applyTotals(&order)
			if err := tx.CreateOrder(ctx, order); err != nil {
				return domain.Result[domain.OrderSummary]{}, err
			}
		} else {
			existing, err := loadOrder(ctx, tx, req.ID)
			if err != nil {
				return domain.Result[domain.OrderSummary]{}, err
			}
			if existing.Status != domain.OrderStatusParked {
				return domain.Result[domain.OrderSummary]{}, fmt.Errorf("%w: order %s is %s, only parked orders can be updated", store.ErrInvalidState, existing.OrderNo, existing.Status)
			}
			order = *existing
			if err := s.repark(ctx, tx, &order, items); err != nil {
				return domain.Result[domain.OrderSummary]{}, err
			}
			order.OrderType = orderType
			order.TableNumber = strings.TrimSpace(req.TableNumber)
			order.UpdatedAt = now
			if err := tx.UpdateOrder(ctx, order); err != nil {
				return domain.Result[domain.OrderSummary]{}, err
			}
			message = "Parked order updated"
		}

		if err := s.remember(ctx, tx, req.IdempotencyKey, idemPark, order.ID); err != nil {
			return domain.Result[domain.OrderSummary]{}, err
		}
		if err := enqueueOrderEvent(ctx, tx, events.OrderParked, order, now); err != nil {
			return domain.Result[domain.OrderSummary]{}, err
		}
		fx.invalidateSale(order.ID)
		fx.audit("order_park", "order", order.ID, fmt.Sprintf("order_no=%s,total=%s,lines=%d", order.OrderNo, order.TotalAmount, len(order.Lines)))
		return domain.OK(message, domain.SummarizeOrder(order)), nil
	})
}

func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.Result[domain.OrderSummary], error) {
	return execute(ctx, s, policy.OpCheckout, func(ctx context.Context, tx store.Tx, fx *effects) (domain.Result[domain.OrderSummary], error) {
		if res, ok, err := replayOrder(ctx, tx, req.IdempotencyKey, idemCheckout, "Order already checked out"); ok || err != nil {
			return res, err
		}
		paymentMethod, err := normalizePaymentMethod(req.PaymentMethod)
		if err != nil {
			return domain.Result[domain.OrderSummary]{}, err
		}
		now := s.now()

		var order domain.Order
		if strings.TrimSpace(req.ID) == "" {
			items, err := normalizeItems(req.Items)
			if err != nil {
				return domain.Result[domain.OrderSummary]{}, err
			}
			orderType, err := normalizeOrderType(req.OrderType)
			if err != nil {
				return domain.Result[domain.OrderSummary]{}, err
			}
			orderNo, err := s.numbers.Allocate(ctx, tx, domain.OrderPrefixCheckout, now)
			if err != nil {
				return domain.Result[domain.OrderSummary]{}, err
			}
			order = domain.Order{
				ID:          xid.New("ord"),
				OrderNo:     orderNo,
				OrderType:   orderType,
				TableNumber: strings.TrimSpace(req.TableNumber),
				CashierID:   actorName(ctx),
				CreatedAt:   now,
			}
			if order.Lines, err = s.deductLines(ctx, tx, order.ID, items, domain.MovementSale); err != nil {
				return domain.Result[domain.OrderSummary]{}, err
			}
			completeOrder(&order, paymentMethod, now)
			if err := tx.CreateOrder(ctx, order); err != nil {
				return domain.Result[domain.OrderSummary]{}, err
			}
		} else {
			existing, err := loadOrder(ctx, tx, req.ID)
			if err != nil {
				return domain.Result[domain.OrderSummary]{}, err
			}
			if existing.Status != domain.OrderStatusParked {
				return domain.Result[domain.OrderSummary]{}, fmt.Errorf("%w: order %s is %s, only parked orders can be checked out", store.ErrInvalidState, existing.OrderNo, existing.Status)
			}
			order = *existing
			if len(req.Items) > 0 {
				items, err := normalizeItems(req.Items)
				if err != nil {
					return domain.Result[domain.OrderSummary]{}, err
				}
				if !sameItems(order.Lines, items) {
					if err := s.repark(ctx, tx, &order, items); err != nil {
						return domain.Result[domain.OrderSummary]{}, err
					}
				}
			}
			if strings.TrimSpace(req.OrderType) != "" {
				if order.OrderType, err = normalizeOrderType(req.OrderType); err != nil {
					return domain.Result[domain.OrderSummary]{}, err
				}
			}
			if table := strings.TrimSpace(req.TableNumber); table != "" {
				order.TableNumber = table
			}
			completeOrder(&order, paymentMethod, now)
			if err := tx.UpdateOrder(ctx, order); err != nil {
				return domain.Result[domain.OrderSummary]{}, err
			}
		}

		recorded, err := s.appendCash(ctx, tx, fx, domain.CashTransaction{
			Type:          domain.CashTxSale,
			Amount:        order.TotalAmount,
			Description:   "Sale " + order.OrderNo,
			SaleID:        order.ID,
			PaymentMethod: paymentMethod,
		})
		if err != nil {
			return domain.Result[domain.OrderSummary]{}, err
		}
		if err := s.remember(ctx, tx, req.IdempotencyKey, idemCheckout, order.ID); err != nil {
			return domain.Result[domain.OrderSummary]{}, err
		}
		if err := enqueueOrderEvent(ctx, tx, events.OrderCompleted, order, now); err != nil {
			return domain.Result[domain.OrderSummary]{}, err
		}
		fx.invalidateSale(order.ID)
		fx.audit("order_checkout", "order", order.ID, fmt.Sprintf("order_no=%s,total=%s,payment=%s,drawer=%t", order.OrderNo, order.TotalAmount, paymentMethod, recorded))
		return domain.OK(withDrawerNote("Checkout completed", recorded), domain.SummarizeOrder(order)), nil
	})
}

func (s *Service) Void(ctx context.Context, req domain.VoidRequest) (domain.Result[domain.OrderSummary], error) {
	return execute(ctx, s, policy.OpVoid, func(ctx context.Context, tx store.Tx, fx *effects) (domain.Result[domain.OrderSummary], error) {
		if res, ok, err := replayOrder(ctx, tx, req.IdempotencyKey, idemVoid, "Order already voided"); ok || err != nil {
			return res, err
		}
		order, err := loadOrder(ctx, tx, req.OrderID)
		if err != nil {
			return domain.Result[domain.OrderSummary]{}, err
		}
		switch order.Status {
		case domain.OrderStatusVoid:
			return domain.Result[domain.OrderSummary]{}, fmt.Errorf("%w: %s", store.ErrAlreadyVoided, order.OrderNo)
		case domain.OrderStatusRefunded:
			return domain.Result[domain.OrderSummary]{}, fmt.Errorf("%w: order %s was refunded and cannot be voided", store.ErrInvalidState, order.OrderNo)
		}
		now := s.now()
		reason := defaultString(strings.TrimSpace(req.VoidReason), "unspecified")

		if err := s.restoreLines(ctx, tx, *order, domain.MovementVoid); err != nil {
			return domain.Result[domain.OrderSummary]{}, err
		}
		settled := order.Settled()
		recorded := false
		if settled {
			if recorded, err = s.appendCash(ctx, tx, fx, domain.CashTransaction{
				Type:          domain.CashTxVoid,
				Amount:        order.TotalAmount,
				Description:   fmt.Sprintf("Void %s: %s", order.OrderNo, reason),
				SaleID:        order.ID,
				PaymentMethod: order.PaymentMethod,
			}); err != nil {
				return domain.Result[domain.OrderSummary]{}, err
			}
		}

		order.Status = domain.OrderStatusVoid
		order.IsDeleted = true
		order.VoidReason = reason
		order.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, *order); err != nil {
			return domain.Result[domain.OrderSummary]{}, err
		}
		if err := s.remember(ctx, tx, req.IdempotencyKey, idemVoid, order.ID); err != nil {
			return domain.Result[domain.OrderSummary]{}, err
		}
		if err := enqueueOrderEvent(ctx, tx, events.OrderVoided, *order, now); err != nil {
			return domain.Result[domain.OrderSummary]{}, err
		}
		fx.invalidateSale(order.ID)
		fx.audit("order_void", "order", order.ID, fmt.Sprintf("order_no=%s,total=%s,reason=%s", order.OrderNo, order.TotalAmount, reason))

		message := "Order voided"
		if settled {
			message = withDrawerNote(message, recorded)
		}
		return domain.OK(message, domain.SummarizeOrder(*order)), nil
	})
}

func (s *Service) Refund(ctx context.Context, req domain.RefundRequest) (domain.Result[domain.OrderSummary], error) {
	return execute(ctx, s, policy.OpRefund, func(ctx context.Context, tx store.Tx, fx *effects) (domain.Result[domain.OrderSummary], error) {
		if res, ok, err := replayOrder(ctx, tx, req.IdempotencyKey, idemRefund, "Order already refunded"); ok || err != nil {
			return res, err
		}
		reason := strings.TrimSpace(req.RefundReason)
		if reason == "" {
			return domain.Result[domain.OrderSummary]{}, fmt.Errorf("%w: refund reason is required", store.ErrValidation)
		}
		order, err := loadOrder(ctx, tx, req.OrderID)
		if err != nil {
			return domain.Result[domain.OrderSummary]{}, err
		}
		if !order.Settled() || order.IsDeleted {
			return domain.Result[domain.OrderSummary]{}, fmt.Errorf("%w: order %s is %s, only completed orders can be refunded", store.ErrInvalidState, order.OrderNo, order.Status)
		}
		now := s.now()

		if err := s.restoreLines(ctx, tx, *order, domain.MovementRefund); err != nil {
			return domain.Result[domain.OrderSummary]{}, err
		}
		recorded, err := s.appendCash(ctx, tx, fx, domain.CashTransaction{
			Type:          domain.CashTxRefund,
			Amount:        order.TotalAmount,
			Description:   fmt.Sprintf("Refund %s: %s", order.OrderNo, reason),
			SaleID:        order.ID,
			PaymentMethod: order.PaymentMethod,
		})
		if err != nil {
			return domain.Result[domain.OrderSummary]{}, err
		}

		order.Status = domain.OrderStatusRefunded
		order.IsDeleted = true
		order.VoidReason = "REFUND: " + reason
		order.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, *order); err != nil {
			return domain.Result[domain.OrderSummary]{}, err
		}
		if err := s.remember(ctx, tx, req.IdempotencyKey, idemRefund, order.ID); err != nil {
			return domain.Result[domain.OrderSummary]{}, err
		}
		if err := enqueueOrderEvent(ctx, tx, events.OrderRefunded, *order, now); err != nil {
			return domain.Result[domain.OrderSummary]{}, err
		}
		fx.invalidateSale(order.ID)
		fx.audit("order_refund", "order", order.ID, fmt.Sprintf("order_no=%s,total=%s,reason=%s", order.OrderNo, order.TotalAmount, reason))
		return domain.OK(withDrawerNote("Order refunded", recorded), domain.SummarizeOrder(*order)), nil
	})
}

// ChangeItem swaps one line of a settled order for another product. The
// cash drawer is left untouched; the message reports the price delta so the
// cashier can settle it by hand.
func (s *Service) ChangeItem(ctx context.Context, req domain.ChangeItemRequest) (domain.Result[domain.ItemChange], error) {
	return execute(ctx, s, policy.OpChangeItem, func(ctx context.Context, tx store.Tx, fx *effects) (domain.Result[domain.ItemChange], error) {
		if id, ok, err := replay(ctx, tx, req.IdempotencyKey, idemChangeItem); err != nil {
			return domain.Result[domain.ItemChange]{}, err
		} else if ok {
			order, err := loadOrder(ctx, tx, id)
			if err != nil {
				return domain.Result[domain.ItemChange]{}, err
			}
			res := domain.OK("Item already changed", domain.ItemChange{Order: domain.SummarizeOrder(*order), LineID: req.OldLineID})
			res.Duplicate = true
			return res, nil
		}

		newProductID := strings.TrimSpace(req.NewProductID)
		if newProductID == "" || req.NewQuantity < 1 {
			return domain.Result[domain.ItemChange]{}, fmt.Errorf("%w: new product and a positive quantity are required", store.ErrValidation)
		}
		order, err := loadOrder(ctx, tx, req.OrderID)
		if err != nil {
			return domain.Result[domain.ItemChange]{}, err
		}
		if !order.Settled() || order.IsDeleted {
			return domain.Result[domain.ItemChange]{}, fmt.Errorf("%w: order %s is %s, only completed orders can change items", store.ErrInvalidState, order.OrderNo, order.Status)
		}
		idx := lineIndex(order.Lines, req.OldLineID)
		if idx < 0 {
			return domain.Result[domain.ItemChange]{}, fmt.Errorf("line %s: %w", req.OldLineID, store.ErrNotFound)
		}
		product, err := sellableProduct(ctx, tx, newProductID)
		if err != nil {
			return domain.Result[domain.ItemChange]{}, err
		}
		now := s.now()
		ref := inventory.Ref{OrderID: order.ID, Reason: domain.MovementItemChange}

		old := order.Lines[idx]
		if err := s.inventory.Restore(ctx, tx, old.Recipe, old.Quantity, ref); err != nil {
			return domain.Result[domain.ItemChange]{}, err
		}
		snapshot, err := s.inventory.Deduct(ctx, tx, product.ID, req.NewQuantity, ref)
		if err != nil {
			return domain.Result[domain.ItemChange]{}, err
		}

		line := old
		line.ProductID = product.ID
		line.Quantity = req.NewQuantity
		line.PriceAtSale = product.Price
		line.Recipe = snapshot
		line.CostAtSale = inventory.SnapshotCost(snapshot, req.NewQuantity)
		if product.ID == old.ProductID {
			line.QuantityPrinted = min(old.QuantityPrinted, req.NewQuantity)
		} else {
			line.QuantityPrinted = 0
		}

		previousTotal := order.TotalAmount
		order.Lines[idx] = line
		applyTotals(order)
		order.Status = domain.OrderStatusItemChanged
		order.VoidReason = changeNote(old, line, strings.TrimSpace(req.Reason))
		order.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, *order); err != nil {
			return domain.Result[domain.ItemChange]{}, err
		}
		if err := s.remember(ctx, tx, req.IdempotencyKey, idemChangeItem, order.ID); err != nil {
			return domain.Result[domain.ItemChange]{}, err
		}
		if err := enqueueOrderEvent(ctx, tx, events.OrderItemChanged, *order, now); err != nil {
			return domain.Result[domain.ItemChange]{}, err
		}

		delta := order.TotalAmount.Sub(previousTotal)
		fx.invalidateSale(order.ID)
		fx.audit("order_change_item", "order", order.ID, fmt.Sprintf("line=%s,%s,delta=%s", line.ID, order.VoidReason, delta))

		message := "Item changed"
		if !delta.IsZero() {
			message = fmt.Sprintf("Item changed; price difference %s was not recorded in the cash drawer", delta)
		}
		return domain.OK(message, domain.ItemChange{
			Order:          domain.SummarizeOrder(*order),
			LineID:         line.ID,
			PriceDelta:     delta,
			DrawerAdjusted: false,
		}), nil
	})
}

// SendToKitchen advances the printed watermark of the named lines and
// returns a ticket with only the quantities not printed before.
func (s *Service) SendToKitchen(ctx context.Context, req domain.KitchenRequest) (domain.Result[domain.KitchenTicket], error) {
	return execute(ctx, s, policy.OpSendToKitchen, func(ctx context.Context, tx store.Tx, fx *effects) (domain.Result[domain.KitchenTicket], error) {
		if len(req.LineIDs) == 0 {
			return domain.Result[domain.KitchenTicket]{}, fmt.Errorf("%w: at least one line is required", store.ErrValidation)
		}
		order, err := loadOrder(ctx, tx, req.OrderID)
		if err != nil {
			return domain.Result[domain.KitchenTicket]{}, err
		}
		if order.Terminal() || order.IsDeleted {
			return domain.Result[domain.KitchenTicket]{}, fmt.Errorf("%w: order %s is %s", store.ErrInvalidState, order.OrderNo, order.Status)
		}
		now := s.now()

		ticket := domain.KitchenTicket{
			OrderID:     order.ID,
			OrderNo:     order.OrderNo,
			OrderType:   order.OrderType,
			TableNumber: order.TableNumber,
			Lines:       []domain.KitchenTicketLine{},
			PrintedAt:   now,
		}
		seen := make(map[string]bool, len(req.LineIDs))
		productIDs := make([]string, 0, len(req.LineIDs))
		for _, lineID := range req.LineIDs {
			if seen[lineID] {
				continue
			}
			seen[lineID] = true
			idx := lineIndex(order.Lines, lineID)
			if idx < 0 {
				return domain.Result[domain.KitchenTicket]{}, fmt.Errorf("line %s: %w", lineID, store.ErrNotFound)
			}
			line := &order.Lines[idx]
			if pending := line.Quantity - line.QuantityPrinted; pending > 0 {
				ticket.Lines = append(ticket.Lines, domain.KitchenTicketLine{
					LineID:    line.ID,
					ProductID: line.ProductID,
					Quantity:  pending,
				})
				productIDs = append(productIDs, line.ProductID)
			}
			line.QuantityPrinted = line.Quantity
		}

		if len(ticket.Lines) == 0 {
			return domain.OK("Nothing new to send to the kitchen", ticket), nil
		}

		products, err := tx.GetProducts(ctx, productIDs)
		if err != nil {
			return domain.Result[domain.KitchenTicket]{}, err
		}
		for i := range ticket.Lines {
			ticket.Lines[i].ProductName = defaultString(products[ticket.Lines[i].ProductID].Name, ticket.Lines[i].ProductID)
		}

		order.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, *order); err != nil {
			return domain.Result[domain.KitchenTicket]{}, err
		}
		if err := enqueueOrderEvent(ctx, tx, events.OrderSentToKitchen, *order, now); err != nil {
			return domain.Result[domain.KitchenTicket]{}, err
		}
		fx.invalidateSale(order.ID)
		return domain.OK(fmt.Sprintf("Sent %d line(s) to the kitchen", len(ticket.Lines)), ticket), nil
	})
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Result[domain.SaleView], error) {
	return read(ctx, s, policy.OpSaleRead, func(ctx context.Context) (domain.Result[domain.SaleView], error) {
		view, err := s.projector.Sale(ctx, s.repo, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Result[domain.SaleView]{}, fmt.Errorf("sale %s: %w", id, err)
			}
			return domain.Result[domain.SaleView]{}, err
		}
		return domain.OK("", view), nil
	})
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) (domain.Result[[]domain.SaleView], error) {
	return read(ctx, s, policy.OpSaleRead, func(ctx context.Context) (domain.Result[[]domain.SaleView], error) {
		if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
			return domain.Result[[]domain.SaleView]{}, fmt.Errorf("%w: to must not be before from", store.ErrValidation)
		}
		if filter.Limit < 1 || filter.Limit > 500 {
			filter.Limit = 100
		}
		views, err := s.projector.Sales(ctx, s.repo, filter)
		if err != nil {
			return domain.Result[[]domain.SaleView]{}, err
		}
		return domain.OK(fmt.Sprintf("%d sale(s)", len(views)), views), nil
	})
}

func replayOrder(ctx context.Context, tx store.Tx, key string, operation string, message string) (domain.Result[domain.OrderSummary], bool, error) {
	id, ok, err := replay(ctx, tx, key, operation)
	if err != nil || !ok {
		return domain.Result[domain.OrderSummary]{}, false, err
	}
	order, err := loadOrder(ctx, tx, id)
	if err != nil {
		return domain.Result[domain.OrderSummary]{}, false, err
	}
	res := domain.OK(message, domain.SummarizeOrder(*order))
	res.Duplicate = true
	return res, true, nil
}

func loadOrder(ctx context.Context, tx store.Tx, id string) (*domain.Order, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: order id is required", store.ErrValidation)
	}
	order, err := tx.GetOrderForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("order %s: %w", id, err)
		}
		return nil, err
	}
	return order, nil
}

// sellableProduct resolves a product for a new line. Unknown and inactive
// products are validation failures of the request.
func sellableProduct(ctx context.Context, tx store.Tx, productID string) (*domain.Product, error) {
	product, err := tx.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown product %s", store.ErrValidation, productID)
		}
		return nil, err
	}
	if !product.Active {
		return nil, fmt.Errorf("%w: product %s is not active", store.ErrValidation, productID)
	}
	return product, nil
}

func (s *Service) deductLines(ctx context.Context, tx store.Tx, orderID string, items []domain.OrderItem, reason string) ([]domain.OrderLine, error) {
	lines := make([]domain.OrderLine, 0, len(items))
	for _, item := range items {
		product, err := sellableProduct(ctx, tx, item.ProductID)
		if err != nil {
			return nil, err
		}
		snapshot, err := s.inventory.Deduct(ctx, tx, product.ID, item.Quantity, inventory.Ref{OrderID: orderID, Reason: reason})
		if err != nil {
			return nil, err
		}
		lines = append(lines, domain.OrderLine{
			ID:          xid.New("line"),
			OrderID:     orderID,
			ProductID:   product.ID,
			Quantity:    item.Quantity,
			PriceAtSale: product.Price,
			CostAtSale:  inventory.SnapshotCost(snapshot, item.Quantity),
			Recipe:      snapshot,
		})
	}
	return lines, nil
}

func (s *Service) restoreLines(ctx context.Context, tx store.Tx, order domain.Order, reason string) error {
	ref := inventory.Ref{OrderID: order.ID, Reason: reason}
	for _, line := range order.Lines {
		if err := s.inventory.Restore(ctx, tx, line.Recipe, line.Quantity, ref); err != nil {
			return err
		}
	}
	return nil
}

// repark replaces the lines of a parked order: the stored snapshots are
// restored, the new item set is deducted and printed quantities carry over
// per product.
func (s *Service) repark(ctx context.Context, tx store.Tx, order *domain.Order, items []domain.OrderItem) error {
	if err := s.restoreLines(ctx, tx, *order, domain.MovementRestorePark); err != nil {
		return err
	}
	printed := make(map[string]int, len(order.Lines))
	for _, line := range order.Lines {
		printed[line.ProductID] += line.QuantityPrinted
	}
	lines, err := s.deductLines(ctx, tx, order.ID, items, domain.MovementPark)
	if err != nil {
		return err
	}
	for i := range lines {
		lines[i].QuantityPrinted = min(printed[lines[i].ProductID], lines[i].Quantity)
	}
	order.Lines = lines
	applyTotals(order)
	return nil
}

func completeOrder(order *domain.Order, paymentMethod string, now time.Time) {
	completedAt := now
	order.Status = domain.OrderStatusCompleted
	order.PaymentMethod = paymentMethod
	order.CompletedAt = &completedAt
	order.UpdatedAt = now
	applyTotals(order)
}

func applyTotals(order *domain.Order) {
	total := decimal.Zero
	cost := decimal.Zero
	for _, line := range order.Lines {
		total = total.Add(line.LineTotal())
		cost = cost.Add(line.CostAtSale)
	}
	order.TotalAmount = total
	order.CostOfGoods = cost
	order.GrossProfit = total.Sub(cost)
}

// normalizeItems merges repeated products and keeps first-seen order.
func normalizeItems(items []domain.OrderItem) ([]domain.OrderItem, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", store.ErrValidation)
	}
	index := make(map[string]int, len(items))
	normalized := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: item product_id is required", store.ErrValidation)
		}
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity for %s must be at least 1", store.ErrValidation, productID)
		}
		if i, ok := index[productID]; ok {
			normalized[i].Quantity += item.Quantity
			continue
		}
		index[productID] = len(normalized)
		normalized = append(normalized, domain.OrderItem{ProductID: productID, Quantity: item.Quantity})
	}
	return normalized, nil
}

func sameItems(lines []domain.OrderLine, items []domain.OrderItem) bool {
	have := make(map[string]int, len(lines))
	for _, line := range lines {
		have[line.ProductID] += line.Quantity
	}
	if len(have) != len(items) {
		return false
	}
	for _, item := range items {
		if have[item.ProductID] != item.Quantity {
			return false
		}
	}
	return true
}

func normalizeOrderType(orderType string) (string, error) {
	orderType = strings.ToUpper(strings.TrimSpace(orderType))
	switch orderType {
	case "":
		return domain.OrderTypeDineIn, nil
	case domain.OrderTypeDineIn, domain.OrderTypeTakeaway, domain.OrderTypeDelivery:
		return orderType, nil
	default:
		return "", fmt.Errorf("%w: unsupported order type %s", store.ErrValidation, orderType)
	}
}

func normalizePaymentMethod(method string) (string, error) {
	method = strings.ToLower(strings.TrimSpace(method))
	switch method {
	case "":
		return domain.PaymentCash, nil
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentQRIS, domain.PaymentEwallet:
		return method, nil
	default:
		return "", fmt.Errorf("%w: unsupported payment method %s", store.ErrValidation, method)
	}
}

func lineIndex(lines []domain.OrderLine, lineID string) int {
	for i, line := range lines {
		if line.ID == lineID {
			return i
		}
	}
	return -1
}

func changeNote(old domain.OrderLine, changed domain.OrderLine, reason string) string {
	note := fmt.Sprintf("ITEM CHANGED: %s x%d -> %s x%d", old.ProductID, old.Quantity, changed.ProductID, changed.Quantity)
	if reason != "" {
		note += " (" + reason + ")"
	}
	return note
}

func withDrawerNote(message string, recorded bool) string {
	if recorded {
		return message
	}
	return message + "; no cash drawer is open, the cash entry was not recorded"
}
