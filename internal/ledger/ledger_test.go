package ledger

import (
	"testing"

	"github.com/shopspring/decimal"

	"restopos/backend/internal/domain"
)

func entry(txType string, amount int64, method string) domain.CashTransaction {
	return domain.CashTransaction{Type: txType, Amount: Signed(txType, decimal.NewFromInt(amount)), PaymentMethod: method}
}

func TestBalanceFoldsSignedMagnitudes(t *testing.T) {
	entries := []domain.CashTransaction{
		entry(domain.CashTxOpening, 1000, ""),
		entry(domain.CashTxSale, 150, domain.PaymentCash),
		entry(domain.CashTxCashIn, 50, ""),
		entry(domain.CashTxCashOut, 30, ""),
		entry(domain.CashTxVoid, 20, domain.PaymentCash),
		entry(domain.CashTxRefund, 10, domain.PaymentCard),
	}

	got := Balance(entries)
	if !got.Equal(decimal.NewFromInt(1140)) {
		t.Fatalf("expected balance 1140, got %s", got)
	}

	manual := decimal.Zero
	for _, e := range entries {
		manual = manual.Add(e.Amount)
	}
	if !manual.Equal(got) {
		t.Fatalf("expected signed sum %s to equal balance %s", manual, got)
	}
}

func TestBalanceIgnoresClosingAndAcceptsUnsignedOutflows(t *testing.T) {
	entries := []domain.CashTransaction{
		{Type: domain.CashTxOpening, Amount: decimal.NewFromInt(500)},
		{Type: domain.CashTxCashOut, Amount: decimal.NewFromInt(100)},
		{Type: domain.CashTxClosing, Amount: decimal.NewFromInt(390)},
	}
	if got := Balance(entries); !got.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("expected 400, got %s", got)
	}
}

func TestTotalsByPaymentMethodNetsSaleEntries(t *testing.T) {
	entries := []domain.CashTransaction{
		entry(domain.CashTxOpening, 1000, ""),
		entry(domain.CashTxSale, 150, domain.PaymentCash),
		entry(domain.CashTxSale, 80, domain.PaymentQRIS),
		entry(domain.CashTxRefund, 80, domain.PaymentQRIS),
	}
	totals := TotalsByPaymentMethod(entries)
	if !totals[domain.PaymentCash].Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expected cash 150, got %s", totals[domain.PaymentCash])
	}
	if !totals[domain.PaymentQRIS].IsZero() {
		t.Fatalf("expected qris to net to zero, got %s", totals[domain.PaymentQRIS])
	}

	byType := TotalsByType(entries)
	if !byType[domain.CashTxSale].Equal(decimal.NewFromInt(230)) {
		t.Fatalf("expected sale total 230, got %s", byType[domain.CashTxSale])
	}
}

func TestViewReportsDifferenceAfterClose(t *testing.T) {
	expected := decimal.NewFromInt(1150)
	closing := decimal.NewFromInt(1140)
	view := View(domain.CashDrawer{
		Status:          domain.DrawerStatusClosed,
		ExpectedBalance: &expected,
		ClosingBalance:  &closing,
	})
	if view.Difference == nil || !view.Difference.Equal(decimal.NewFromInt(-10)) {
		t.Fatalf("expected difference -10, got %v", view.Difference)
	}
}

func TestNewEntryRejectsClosedDrawer(t *testing.T) {
	_, err := NewEntry(domain.CashDrawer{ID: "drawer-1", Status: domain.DrawerStatusClosed}, domain.CashTxCashIn, decimal.NewFromInt(5))
	if err == nil {
		t.Fatalf("expected closed drawer to reject new entries")
	}
}
