// Package ledger derives cash drawer figures from the append-only transaction
// log. Nothing here mutates a drawer; every figure is a fold over entries.
package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"restopos/backend/internal/domain"
)

// Signed normalizes an entry amount to its effect on the drawer balance.
// CLOSING is a count, not a movement, and contributes zero.
func Signed(txType string, amount decimal.Decimal) decimal.Decimal {
	switch txType {
	case domain.CashTxOpening, domain.CashTxCashIn, domain.CashTxSale:
		return amount.Abs()
	case domain.CashTxCashOut, domain.CashTxVoid, domain.CashTxRefund:
		return amount.Abs().Neg()
	default:
		return decimal.Zero
	}
}

// Balance is OPENING + CASH_IN + SALE minus the magnitudes of CASH_OUT, VOID
// and REFUND.
func Balance(entries []domain.CashTransaction) decimal.Decimal {
	total := decimal.Zero
	for _, entry := range entries {
		total = total.Add(Signed(entry.Type, entry.Amount))
	}
	return total
}

// TotalsByType sums entry magnitudes per transaction type.
func TotalsByType(entries []domain.CashTransaction) map[string]decimal.Decimal {
	totals := make(map[string]decimal.Decimal, 7)
	for _, entry := range entries {
		totals[entry.Type] = totals[entry.Type].Add(entry.Amount.Abs())
	}
	return totals
}

// TotalsByPaymentMethod nets sale-related entries (SALE, VOID, REFUND) per
// payment method.
func TotalsByPaymentMethod(entries []domain.CashTransaction) map[string]decimal.Decimal {
	totals := make(map[string]decimal.Decimal, 4)
	for _, entry := range entries {
		switch entry.Type {
		case domain.CashTxSale, domain.CashTxVoid, domain.CashTxRefund:
		default:
			continue
		}
		method := entry.PaymentMethod
		if method == "" {
			method = domain.PaymentCash
		}
		totals[method] = totals[method].Add(Signed(entry.Type, entry.Amount))
	}
	return totals
}

// NewEntry builds the next entry for a drawer, storing the amount with the
// sign its type implies.
func NewEntry(drawer domain.CashDrawer, txType string, amount decimal.Decimal) (domain.CashTransaction, error) {
	if drawer.Status != domain.DrawerStatusOpen {
		return domain.CashTransaction{}, fmt.Errorf("drawer %s is %s", drawer.ID, strings.ToLower(drawer.Status))
	}
	stored := Signed(txType, amount)
	if txType == domain.CashTxClosing {
		stored = amount
	}
	return domain.CashTransaction{
		DrawerID: drawer.ID,
		Seq:      len(drawer.Transactions) + 1,
		Type:     txType,
		Amount:   stored,
	}, nil
}

// View assembles the read model for a drawer. Difference is only set once
// the drawer has been closed.
func View(drawer domain.CashDrawer) domain.DrawerView {
	view := domain.DrawerView{
		CashDrawer:            drawer,
		CurrentBalance:        Balance(drawer.Transactions),
		TotalsByType:          TotalsByType(drawer.Transactions),
		TotalsByPaymentMethod: TotalsByPaymentMethod(drawer.Transactions),
	}
	if drawer.ClosingBalance != nil && drawer.ExpectedBalance != nil {
		diff := drawer.ClosingBalance.Sub(*drawer.ExpectedBalance)
		view.Difference = &diff
	}
	if view.Transactions == nil {
		view.Transactions = []domain.CashTransaction{}
	}
	return view
}
