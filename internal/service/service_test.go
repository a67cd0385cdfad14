package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/ordernumber"
	"restopos/backend/internal/policy"
	"restopos/backend/internal/store/memory"
)

var testNow = time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

type fixture struct {
	svc  *Service
	repo *memory.Store
	ctx  context.Context
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

// newFixture seeds a nasi goreng priced 50 costing 20 (one rice portion) and
// an iced tea priced 10 costing 2.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := memory.New()
	ctx := context.Background()

	for _, p := range []domain.Product{
		{ID: "prod-nasgor", Name: "Nasi Goreng", Price: dec("50")},
		{ID: "prod-teh", Name: "Es Teh", Price: dec("10")},
	} {
		if _, err := repo.CreateProduct(ctx, p); err != nil {
			t.Fatalf("seed product: %v", err)
		}
	}
	for _, i := range []domain.Ingredient{
		{ID: "ing-rice", Name: "Rice portion", Unit: "portion", PricePerUnit: dec("20"), CurrentStock: dec("10")},
		{ID: "ing-tea", Name: "Tea bag", Unit: "pcs", PricePerUnit: dec("2"), CurrentStock: dec("100")},
	} {
		if _, err := repo.CreateIngredient(ctx, i); err != nil {
			t.Fatalf("seed ingredient: %v", err)
		}
	}
	for _, r := range []domain.RecipeLine{
		{ProductID: "prod-nasgor", IngredientID: "ing-rice", QuantityUsed: dec("1"), Active: true},
		{ProductID: "prod-teh", IngredientID: "ing-tea", QuantityUsed: dec("1"), Active: true},
	} {
		if err := repo.UpsertRecipeLine(ctx, r); err != nil {
			t.Fatalf("seed recipe: %v", err)
		}
	}

	svc := New(repo, nil, Options{Now: func() time.Time { return testNow }})
	return &fixture{
		svc:  svc,
		repo: repo,
		ctx:  WithActor(ctx, domain.Actor{Username: "kasir-1", Role: policy.RoleManager}),
	}
}

func (f *fixture) stock(t *testing.T, ingredientID string) decimal.Decimal {
	t.Helper()
	ingredients, err := f.repo.GetIngredients(context.Background(), []string{ingredientID})
	if err != nil {
		t.Fatalf("get ingredient: %v", err)
	}
	return ingredients[ingredientID].CurrentStock
}

func (f *fixture) openDrawer(t *testing.T, opening string) {
	t.Helper()
	res, err := f.svc.OpenDrawer(f.ctx, domain.DrawerOpenRequest{OpeningBalance: dec(opening)})
	if err != nil || !res.Success {
		t.Fatalf("open drawer failed: %v %+v", err, res)
	}
}

func (f *fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	res, err := f.svc.CurrentDrawer(f.ctx)
	if err != nil || !res.Success {
		t.Fatalf("current drawer failed: %v %+v", err, res)
	}
	return res.Data.CurrentBalance
}

func (f *fixture) park(t *testing.T, id string, items ...domain.OrderItem) domain.OrderSummary {
	t.Helper()
	res, err := f.svc.Park(f.ctx, domain.ParkRequest{ID: id, Items: items, OrderType: domain.OrderTypeDineIn, TableNumber: "7"})
	if err != nil || !res.Success {
		t.Fatalf("park failed: %v %+v", err, res)
	}
	return res.Data
}

func (f *fixture) checkout(t *testing.T, req domain.CheckoutRequest) domain.Result[domain.OrderSummary] {
	t.Helper()
	res, err := f.svc.Checkout(f.ctx, req)
	if err != nil {
		t.Fatalf("checkout returned infrastructure error: %v", err)
	}
	return res
}

func item(productID string, qty int) domain.OrderItem {
	return domain.OrderItem{ProductID: productID, Quantity: qty}
}

func mustEqual(t *testing.T, label string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Fatalf("expected %s %s, got %s", label, want, got)
	}
}

func TestCheckoutAppendsSaleToOpenDrawer(t *testing.T) {
	f := newFixture(t)
	f.openDrawer(t, "1000")

	res := f.checkout(t, domain.CheckoutRequest{Items: []domain.OrderItem{item("prod-nasgor", 3)}, PaymentMethod: "cash"})
	if !res.Success {
		t.Fatalf("expected checkout success, got %+v", res)
	}
	mustEqual(t, "total", res.Data.TotalAmount, "150")
	mustEqual(t, "balance", f.balance(t), "1150")
	if res.Data.OrderNo != "ORD-20261016-0001" {
		t.Fatalf("expected ORD-20261016-0001, got %s", res.Data.OrderNo)
	}
}

func TestVoidOfParkedOrderRestoresStock(t *testing.T) {
	f := newFixture(t)

	order := f.park(t, "", item("prod-nasgor", 2))
	mustEqual(t, "stock after park", f.stock(t, "ing-rice"), "8")

	res, err := f.svc.Void(f.ctx, domain.VoidRequest{OrderID: order.ID, VoidReason: "customer left"})
	if err != nil || !res.Success {
		t.Fatalf("void failed: %v %+v", err, res)
	}
	mustEqual(t, "stock after void", f.stock(t, "ing-rice"), "10")
	if res.Data.Status != domain.OrderStatusVoid {
		t.Fatalf("expected VOID, got %s", res.Data.Status)
	}

	stored, _ := f.repo.GetOrder(context.Background(), order.ID)
	if !stored.IsDeleted || stored.VoidReason != "customer left" {
		t.Fatalf("expected deleted order with reason, got %+v", stored)
	}
}

func TestCheckoutComputesGrossProfit(t *testing.T) {
	f := newFixture(t)

	res := f.checkout(t, domain.CheckoutRequest{Items: []domain.OrderItem{item("prod-nasgor", 1)}})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	mustEqual(t, "total", res.Data.TotalAmount, "50")
	mustEqual(t, "cost", res.Data.CostOfGoods, "20")
	mustEqual(t, "profit", res.Data.GrossProfit, "30")
}

func TestCloseDrawerReportsDifference(t *testing.T) {
	f := newFixture(t)
	f.openDrawer(t, "1000")
	f.checkout(t, domain.CheckoutRequest{Items: []domain.OrderItem{item("prod-nasgor", 3)}})

	res, err := f.svc.CloseDrawer(f.ctx, domain.DrawerCloseRequest{ClosingBalance: dec("1140")})
	if err != nil || !res.Success {
		t.Fatalf("close failed: %v %+v", err, res)
	}
	mustEqual(t, "expected balance", *res.Data.ExpectedBalance, "1150")
	mustEqual(t, "difference", *res.Data.Difference, "-10")
	if res.Data.Status != domain.DrawerStatusClosed {
		t.Fatalf("expected CLOSED, got %s", res.Data.Status)
	}
	last := res.Data.Transactions[len(res.Data.Transactions)-1]
	if last.Type != domain.CashTxClosing {
		t.Fatalf("expected CLOSING as last entry, got %s", last.Type)
	}

	current, _ := f.svc.CurrentDrawer(f.ctx)
	if current.Success || current.Code != domain.CodeNotFound {
		t.Fatalf("expected no open drawer after close, got %+v", current)
	}
}

func TestSecondOpenDrawerConflicts(t *testing.T) {
	f := newFixture(t)
	f.openDrawer(t, "500")

	res, err := f.svc.OpenDrawer(f.ctx, domain.DrawerOpenRequest{OpeningBalance: dec("100")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success || res.Code != domain.CodeConflict {
		t.Fatalf("expected CONFLICT, got %+v", res)
	}
	mustEqual(t, "balance", f.balance(t), "500")
}

func TestCheckoutFromParkDoesNotDeductAgain(t *testing.T) {
	f := newFixture(t)
	order := f.park(t, "", item("prod-nasgor", 2))

	res := f.checkout(t, domain.CheckoutRequest{ID: order.ID, PaymentMethod: "qris"})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	mustEqual(t, "stock", f.stock(t, "ing-rice"), "8")
	if res.Data.OrderNo != order.OrderNo {
		t.Fatalf("expected order number %s kept, got %s", order.OrderNo, res.Data.OrderNo)
	}
	if res.Data.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", res.Data.Status)
	}
	if !strings.Contains(res.Message, "no cash drawer") {
		t.Fatalf("expected message to mention missing drawer, got %q", res.Message)
	}
}

func TestCheckoutFromParkWithChangedItemsReparks(t *testing.T) {
	f := newFixture(t)
	order := f.park(t, "", item("prod-nasgor", 2))

	res := f.checkout(t, domain.CheckoutRequest{ID: order.ID, Items: []domain.OrderItem{item("prod-nasgor", 1), item("prod-teh", 2)}})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	mustEqual(t, "rice", f.stock(t, "ing-rice"), "9")
	mustEqual(t, "tea", f.stock(t, "ing-tea"), "98")
	mustEqual(t, "total", res.Data.TotalAmount, "70")
}

func TestParkUpdateRestoresAndPreservesPrinted(t *testing.T) {
	f := newFixture(t)
	order := f.park(t, "", item("prod-nasgor", 2))
	sale, _ := f.svc.GetSale(f.ctx, order.ID)

	ticket, err := f.svc.SendToKitchen(f.ctx, domain.KitchenRequest{OrderID: order.ID, LineIDs: []string{sale.Data.Lines[0].ID}})
	if err != nil || !ticket.Success || len(ticket.Data.Lines) != 1 || ticket.Data.Lines[0].Quantity != 2 {
		t.Fatalf("expected ticket for 2, got %v %+v", err, ticket)
	}
	if ticket.Data.Lines[0].ProductName != "Nasi Goreng" {
		t.Fatalf("expected product name on ticket, got %s", ticket.Data.Lines[0].ProductName)
	}

	again, _ := f.svc.SendToKitchen(f.ctx, domain.KitchenRequest{OrderID: order.ID, LineIDs: []string{sale.Data.Lines[0].ID}})
	if !again.Success || len(again.Data.Lines) != 0 {
		t.Fatalf("expected empty ticket on resend, got %+v", again)
	}

	updated := f.park(t, order.ID, item("prod-nasgor", 3))
	if updated.OrderNo != order.OrderNo {
		t.Fatalf("expected order number to stay %s, got %s", order.OrderNo, updated.OrderNo)
	}
	mustEqual(t, "stock", f.stock(t, "ing-rice"), "7")

	sale, _ = f.svc.GetSale(f.ctx, order.ID)
	if sale.Data.Lines[0].QuantityPrinted != 2 || sale.Data.PendingKitchen != 1 {
		t.Fatalf("expected 2 printed and 1 pending, got %+v", sale.Data.Lines[0])
	}

	ticket, _ = f.svc.SendToKitchen(f.ctx, domain.KitchenRequest{OrderID: order.ID, LineIDs: []string{sale.Data.Lines[0].ID}})
	if len(ticket.Data.Lines) != 1 || ticket.Data.Lines[0].Quantity != 1 {
		t.Fatalf("expected ticket with the 1 new portion, got %+v", ticket.Data)
	}
}

func TestOrderNumbersIncreasePerPrefixAndDay(t *testing.T) {
	f := newFixture(t)
	prev := 0
	for i := 0; i < 5; i++ {
		order := f.park(t, "", item("prod-teh", 1))
		if !strings.HasPrefix(order.OrderNo, "PARK-20261016-") {
			t.Fatalf("unexpected order number %s", order.OrderNo)
		}
		seq, err := ordernumber.Sequence(order.OrderNo)
		if err != nil {
			t.Fatalf("parse sequence: %v", err)
		}
		if seq <= prev {
			t.Fatalf("expected increasing sequence, got %d after %d", seq, prev)
		}
		prev = seq
	}
	res := f.checkout(t, domain.CheckoutRequest{Items: []domain.OrderItem{item("prod-teh", 1)}})
	if res.Data.OrderNo != "ORD-20261016-0001" {
		t.Fatalf("expected ORD sequence to start at 0001, got %s", res.Data.OrderNo)
	}
}

func TestTerminalStatesAreSticky(t *testing.T) {
	f := newFixture(t)
	f.openDrawer(t, "100")
	voided := f.checkout(t, domain.CheckoutRequest{Items: []domain.OrderItem{item("prod-nasgor", 1)}}).Data
	refunded := f.checkout(t, domain.CheckoutRequest{Items: []domain.OrderItem{item("prod-nasgor", 1)}}).Data

	if res, _ := f.svc.Void(f.ctx, domain.VoidRequest{OrderID: voided.ID}); !res.Success {
		t.Fatalf("void failed: %+v", res)
	}
	if res, _ := f.svc.Refund(f.ctx, domain.RefundRequest{OrderID: refunded.ID, RefundReason: "cold food"}); !res.Success {
		t.Fatalf("refund failed: %+v", res)
	}
	stockBefore := f.stock(t, "ing-rice")
	balanceBefore := f.balance(t)

	if res, _ := f.svc.Void(f.ctx, domain.VoidRequest{OrderID: voided.ID}); res.Code != domain.CodeAlreadyVoided {
		t.Fatalf("expected ALREADY_VOIDED, got %+v", res)
	}
	if res, _ := f.svc.Void(f.ctx, domain.VoidRequest{OrderID: refunded.ID}); res.Code != domain.CodeInvalidState {
		t.Fatalf("expected INVALID_STATE voiding a refund, got %+v", res)
	}
	if res, _ := f.svc.Refund(f.ctx, domain.RefundRequest{OrderID: voided.ID, RefundReason: "x"}); res.Code != domain.CodeInvalidState {
		t.Fatalf("expected INVALID_STATE refunding a void, got %+v", res)
	}
	if res := f.checkout(t, domain.CheckoutRequest{ID: voided.ID}); res.Code != domain.CodeInvalidState {
		t.Fatalf("expected INVALID_STATE checking out a void, got %+v", res)
	}
	if res, _ := f.svc.ChangeItem(f.ctx, domain.ChangeItemRequest{OrderID: refunded.ID, OldLineID: "x", NewProductID: "prod-teh", NewQuantity: 1}); res.Code != domain.CodeInvalidState {
		t.Fatalf("expected INVALID_STATE changing a refund, got %+v", res)
	}

	if !f.stock(t, "ing-rice").Equal(stockBefore) || !f.balance(t).Equal(balanceBefore) {
		t.Fatalf("rejected operations must not change stock or cash")
	}
}

func TestRefundReversesCashAndStock(t *testing.T) {
	f := newFixture(t)
	f.openDrawer(t, "100")
	order := f.checkout(t, domain.CheckoutRequest{Items: []domain.OrderItem{item("prod-nasgor", 1)}, PaymentMethod: "cash"}).Data
	mustEqual(t, "balance after sale", f.balance(t), "150")

	res, err := f.svc.Refund(f.ctx, domain.RefundRequest{OrderID: order.ID, RefundReason: "wrong order"})
	if err != nil || !res.Success {
		t.Fatalf("refund failed: %v %+v", err, res)
	}
	mustEqual(t, "balance after refund", f.balance(t), "100")
	mustEqual(t, "stock", f.stock(t, "ing-rice"), "10")

	stored, _ := f.repo.GetOrder(context.Background(), order.ID)
	if stored.Status != domain.OrderStatusRefunded || stored.VoidReason != "REFUND: wrong order" || !stored.IsDeleted {
		t.Fatalf("unexpected refunded order %+v", stored)
	}
}

func TestVoidOfCompletedOrderAppendsNegativeEntry(t *testing.T) {
	f := newFixture(t)
	f.openDrawer(t, "100")
	order := f.checkout(t, domain.CheckoutRequest{Items: []domain.OrderItem{item("prod-nasgor", 2)}}).Data

	if res, _ := f.svc.Void(f.ctx, domain.VoidRequest{OrderID: order.ID}); !res.Success {
		t.Fatalf("void failed: %+v", res)
	}
	drawer, _ := f.svc.CurrentDrawer(f.ctx)
	mustEqual(t, "balance", drawer.Data.CurrentBalance, "100")
	last := drawer.Data.Transactions[len(drawer.Data.Transactions)-1]
	if last.Type != domain.CashTxVoid || !last.Amount.Equal(dec("-100")) {
		t.Fatalf("expected VOID -100, got %s %s", last.Type, last.Amount)
	}

	stored, _ := f.repo.GetOrder(context.Background(), order.ID)
	if stored.VoidReason != "unspecified" {
		t.Fatalf("expected default void reason, got %q", stored.VoidReason)
	}
}

func TestVoidRestoresRecordedSnapshotAfterRecipeEdit(t *testing.T) {
	f := newFixture(t)
	order := f.park(t, "", item("prod-nasgor", 2))
	mustEqual(t, "stock after park", f.stock(t, "ing-rice"), "8")

	if err := f.repo.UpsertRecipeLine(context.Background(), domain.RecipeLine{
		ProductID: "prod-nasgor", IngredientID: "ing-rice", QuantityUsed: dec("3"), Active: true,
	}); err != nil {
		t.Fatalf("edit recipe: %v", err)
	}

	if res, _ := f.svc.Void(f.ctx, domain.VoidRequest{OrderID: order.ID}); !res.Success {
		t.Fatalf("void failed: %+v", res)
	}
	mustEqual(t, "stock after void", f.stock(t, "ing-rice"), "10")
}

func TestCheckoutIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.openDrawer(t, "0")
	req := domain.CheckoutRequest{Items: []domain.OrderItem{item("prod-nasgor", 1)}, IdempotencyKey: "idem-1"}

	first := f.checkout(t, req)
	second := f.checkout(t, req)
	if !first.Success || !second.Success {
		t.Fatalf("expected both calls to succeed: %+v %+v", first, second)
	}
	if !second.Duplicate || second.Data.ID != first.Data.ID {
		t.Fatalf("expected duplicate replay of %s, got %+v", first.Data.ID, second)
	}
	mustEqual(t, "stock", f.stock(t, "ing-rice"), "9")
	mustEqual(t, "balance", f.balance(t), "50")

	park, _ := f.svc.Park(f.ctx, domain.ParkRequest{Items: []domain.OrderItem{item("prod-teh", 1)}, IdempotencyKey: "idem-1"})
	if park.Success || park.Code != domain.CodeConflict {
		t.Fatalf("expected CONFLICT when reusing a key for another operation, got %+v", park)
	}
}

func TestCashMovementsAreIdempotent(t *testing.T) {
	f := newFixture(t)
	f.openDrawer(t, "100")
	req := domain.CashMovementRequest{Amount: dec("25"), Description: "petty cash", IdempotencyKey: "cash-1"}

	if res, _ := f.svc.CashOut(f.ctx, req); !res.Success {
		t.Fatalf("cash out failed: %+v", res)
	}
	res, _ := f.svc.CashOut(f.ctx, req)
	if !res.Success || !res.Duplicate {
		t.Fatalf("expected duplicate replay, got %+v", res)
	}
	mustEqual(t, "balance", f.balance(t), "75")
}

func TestCashMovementValidation(t *testing.T) {
	f := newFixture(t)

	if res, _ := f.svc.CashIn(f.ctx, domain.CashMovementRequest{Amount: dec("10"), Description: "float"}); res.Code != domain.CodeNotFound {
		t.Fatalf("expected NOT_FOUND without open drawer, got %+v", res)
	}
	f.openDrawer(t, "100")
	if res, _ := f.svc.CashIn(f.ctx, domain.CashMovementRequest{Amount: dec("0"), Description: "float"}); res.Code != domain.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR for zero amount, got %+v", res)
	}
	if res, _ := f.svc.CashIn(f.ctx, domain.CashMovementRequest{Amount: dec("10"), Description: "  "}); res.Code != domain.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR for blank description, got %+v", res)
	}
	if res, _ := f.svc.OpenDrawer(f.ctx, domain.DrawerOpenRequest{OpeningBalance: dec("-1")}); res.Code != domain.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR for negative opening, got %+v", res)
	}
	if res, _ := f.svc.CashIn(f.ctx, domain.CashMovementRequest{Amount: dec("40"), Description: "change"}); !res.Success {
		t.Fatalf("cash in failed: %+v", res)
	}
	mustEqual(t, "balance", f.balance(t), "140")
}

func TestFailedCheckoutLeavesNoTrace(t *testing.T) {
	f := newFixture(t)

	res := f.checkout(t, domain.CheckoutRequest{Items: []domain.OrderItem{item("prod-nasgor", 2), item("prod-missing", 1)}})
	if res.Success || res.Code != domain.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %+v", res)
	}
	mustEqual(t, "stock", f.stock(t, "ing-rice"), "10")

	sales, _ := f.svc.ListSales(f.ctx, domain.SaleFilter{IncludeDeleted: true})
	if len(sales.Data) != 0 {
		t.Fatalf("expected no orders, got %d", len(sales.Data))
	}
	movements, _ := f.repo.ListMovements(context.Background(), "", 0)
	if len(movements) != 0 {
		t.Fatalf("expected no movements, got %d", len(movements))
	}
}

func TestChangeItemReplacesLineWithoutTouchingDrawer(t *testing.T) {
	f := newFixture(t)
	f.openDrawer(t, "100")
	order := f.checkout(t, domain.CheckoutRequest{Items: []domain.OrderItem{item("prod-nasgor", 1)}}).Data
	sale, _ := f.svc.GetSale(f.ctx, order.ID)

	res, err := f.svc.ChangeItem(f.ctx, domain.ChangeItemRequest{
		OrderID:      order.ID,
		OldLineID:    sale.Data.Lines[0].ID,
		NewProductID: "prod-teh",
		NewQuantity:  2,
		Reason:       "allergy",
	})
	if err != nil || !res.Success {
		t.Fatalf("change item failed: %v %+v", err, res)
	}
	if res.Data.Order.Status != domain.OrderStatusItemChanged || res.Data.DrawerAdjusted {
		t.Fatalf("unexpected change result %+v", res.Data)
	}
	mustEqual(t, "total", res.Data.Order.TotalAmount, "20")
	mustEqual(t, "delta", res.Data.PriceDelta, "-30")
	mustEqual(t, "rice", f.stock(t, "ing-rice"), "10")
	mustEqual(t, "tea", f.stock(t, "ing-tea"), "98")
	mustEqual(t, "balance", f.balance(t), "150")
	if !strings.Contains(res.Message, "-30") {
		t.Fatalf("expected message to state the delta, got %q", res.Message)
	}

	stored, _ := f.repo.GetOrder(context.Background(), order.ID)
	if stored.VoidReason != "ITEM CHANGED: prod-nasgor x1 -> prod-teh x2 (allergy)" {
		t.Fatalf("unexpected change note %q", stored.VoidReason)
	}

	refund, _ := f.svc.Refund(f.ctx, domain.RefundRequest{OrderID: order.ID, RefundReason: "closing"})
	if !refund.Success {
		t.Fatalf("expected changed order to stay refundable, got %+v", refund)
	}
	mustEqual(t, "balance after refund", f.balance(t), "130")
}

func TestCashierPolicyCannotVoid(t *testing.T) {
	f := newFixture(t)
	order := f.park(t, "", item("prod-nasgor", 1))

	ctx := WithPolicy(f.ctx, policy.ForRole(policy.RoleCashier))
	res, err := f.svc.Void(ctx, domain.VoidRequest{OrderID: order.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success || res.Code != domain.CodePermissionDenied {
		t.Fatalf("expected PERMISSION_DENIED, got %+v", res)
	}
	mustEqual(t, "stock", f.stock(t, "ing-rice"), "9")

	elevated := WithPolicy(f.ctx, policy.Union(policy.ForRole(policy.RoleCashier), policy.ForRole(policy.RoleManager)))
	if res, _ := f.svc.Void(elevated, domain.VoidRequest{OrderID: order.ID}); !res.Success {
		t.Fatalf("expected manager elevation to allow void, got %+v", res)
	}
}

func TestSendToKitchenRejectsUnknownLineAndTerminalOrders(t *testing.T) {
	f := newFixture(t)
	order := f.park(t, "", item("prod-teh", 1))

	if res, _ := f.svc.SendToKitchen(f.ctx, domain.KitchenRequest{OrderID: order.ID, LineIDs: []string{"line-nope"}}); res.Code != domain.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %+v", res)
	}
	if res, _ := f.svc.SendToKitchen(f.ctx, domain.KitchenRequest{OrderID: order.ID}); res.Code != domain.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %+v", res)
	}
	_, _ = f.svc.Void(f.ctx, domain.VoidRequest{OrderID: order.ID})
	if res, _ := f.svc.SendToKitchen(f.ctx, domain.KitchenRequest{OrderID: order.ID, LineIDs: []string{"x"}}); res.Code != domain.CodeInvalidState {
		t.Fatalf("expected INVALID_STATE, got %+v", res)
	}
}

func TestMutationsEnqueueOutboxEvents(t *testing.T) {
	f := newFixture(t)
	f.openDrawer(t, "0")
	f.checkout(t, domain.CheckoutRequest{Items: []domain.OrderItem{item("prod-teh", 1)}})

	pending, err := f.repo.FetchPendingEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch events: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected drawer and order events, got %d", len(pending))
	}
}

func TestCatalogWritesRequirePolicy(t *testing.T) {
	f := newFixture(t)
	cashier := WithPolicy(f.ctx, policy.ForRole(policy.RoleCashier))

	if _, err := f.svc.CreateProduct(cashier, domain.ProductCreateRequest{Name: "Sate", Price: dec("30")}); err == nil {
		t.Fatalf("expected cashier to be denied")
	}

	admin := WithPolicy(f.ctx, policy.ForRole(policy.RoleAdmin))
	product, err := f.svc.CreateProduct(admin, domain.ProductCreateRequest{Name: "Sate Ayam", Price: dec("30")})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if product.ID != "prod-sate-ayam" {
		t.Fatalf("expected derived id prod-sate-ayam, got %s", product.ID)
	}

	ingredient, err := f.svc.CreateIngredient(admin, domain.IngredientCreateRequest{Name: "Ayam", Unit: "kg", PricePerUnit: dec("40"), InitialStock: dec("5")})
	if err != nil {
		t.Fatalf("create ingredient: %v", err)
	}
	mustEqual(t, "initial stock", ingredient.CurrentStock, "5")

	if _, err := f.svc.SetRecipeLine(admin, domain.RecipeLineRequest{ProductID: product.ID, IngredientID: ingredient.ID, QuantityUsed: dec("0.25")}); err != nil {
		t.Fatalf("set recipe: %v", err)
	}
	quote, err := f.svc.QuoteCost(admin, product.ID, 2)
	if err != nil {
		t.Fatalf("quote cost: %v", err)
	}
	mustEqual(t, "cost", quote.Cost, "20")

	movement, err := f.svc.ReceiveStock(admin, domain.StockReceiveRequest{IngredientID: ingredient.ID, Quantity: dec("2.5"), Note: "supplier"})
	if err != nil {
		t.Fatalf("receive stock: %v", err)
	}
	mustEqual(t, "stock after receive", movement.Current, "7.5")
}
