package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/events"
	"restopos/backend/internal/ledger"
	"restopos/backend/internal/policy"
	"restopos/backend/internal/store"
	"restopos/backend/internal/xid"
)

const (
	idemDrawerOpen  = "drawer.open"
	idemDrawerClose = "drawer.close"
	idemCashIn      = "drawer.cash_in"
	idemCashOut     = "drawer.cash_out"
)

var errNoOpenDrawer = fmt.Errorf("no open cash drawer: %w", store.ErrNotFound)

func (s *Service) OpenDrawer(ctx context.Context, req domain.DrawerOpenRequest) (domain.Result[domain.DrawerView], error) {
	return execute(ctx, s, policy.OpDrawerOpen, func(ctx context.Context, tx store.Tx, fx *effects) (domain.Result[domain.DrawerView], error) {
		if res, ok, err := replayDrawer(ctx, tx, req.IdempotencyKey, idemDrawerOpen, "Cash drawer already opened"); ok || err != nil {
			return res, err
		}
		if req.OpeningBalance.IsNegative() {
			return domain.Result[domain.DrawerView]{}, fmt.Errorf("%w: opening balance must not be negative", store.ErrValidation)
		}
		if open, err := tx.GetOpenDrawerForUpdate(ctx); err == nil {
			return domain.Result[domain.DrawerView]{}, fmt.Errorf("%w: drawer %s opened by %s is still open", store.ErrConflict, open.ID, open.OpenedBy)
		} else if !errors.Is(err, store.ErrNotFound) {
			return domain.Result[domain.DrawerView]{}, err
		}
		now := s.now()

		drawer := domain.CashDrawer{
			ID:             xid.New("drawer"),
			Status:         domain.DrawerStatusOpen,
			OpenedBy:       actorName(ctx),
			OpeningBalance: req.OpeningBalance,
			OpenedAt:       now,
			Transactions:   []domain.CashTransaction{},
		}
		if err := tx.CreateDrawer(ctx, drawer); err != nil {
			return domain.Result[domain.DrawerView]{}, err
		}
		entry, err := s.bookEntry(ctx, tx, fx, &drawer, domain.CashTransaction{
			Type:        domain.CashTxOpening,
			Amount:      req.OpeningBalance,
			Description: "Opening balance",
		})
		if err != nil {
			return domain.Result[domain.DrawerView]{}, err
		}
		if err := s.remember(ctx, tx, req.IdempotencyKey, idemDrawerOpen, drawer.ID); err != nil {
			return domain.Result[domain.DrawerView]{}, err
		}
		if err := enqueueDrawerEvent(ctx, tx, events.DrawerOpened, drawer, entry, now); err != nil {
			return domain.Result[domain.DrawerView]{}, err
		}
		fx.audit("drawer_open", "cash_drawer", drawer.ID, fmt.Sprintf("opening=%s", req.OpeningBalance))
		return domain.OK("Cash drawer opened", ledger.View(drawer)), nil
	})
}

// CloseDrawer records the counted cash. The expected balance is the fold
// of the log before the CLOSING entry.
func (s *Service) CloseDrawer(ctx context.Context, req domain.DrawerCloseRequest) (domain.Result[domain.DrawerView], error) {
	return execute(ctx, s, policy.OpDrawerClose, func(ctx context.Context, tx store.Tx, fx *effects) (domain.Result[domain.DrawerView], error) {
		if res, ok, err := replayDrawer(ctx, tx, req.IdempotencyKey, idemDrawerClose, "Cash drawer already closed"); ok || err != nil {
			return res, err
		}
		if req.ClosingBalance.IsNegative() {
			return domain.Result[domain.DrawerView]{}, fmt.Errorf("%w: closing balance must not be negative", store.ErrValidation)
		}
		drawer, err := openDrawer(ctx, tx)
		if err != nil {
			return domain.Result[domain.DrawerView]{}, err
		}
		now := s.now()

		expected := ledger.Balance(drawer.Transactions)
		entry, err := s.bookEntry(ctx, tx, fx, drawer, domain.CashTransaction{
			Type:        domain.CashTxClosing,
			Amount:      req.ClosingBalance,
			Description: "Closing count",
		})
		if err != nil {
			return domain.Result[domain.DrawerView]{}, err
		}

		closing := req.ClosingBalance
		closedAt := now
		drawer.Status = domain.DrawerStatusClosed
		drawer.ClosedBy = actorName(ctx)
		drawer.ClosedAt = &closedAt
		drawer.ClosingBalance = &closing
		drawer.ExpectedBalance = &expected
		if err := tx.CloseDrawer(ctx, *drawer); err != nil {
			return domain.Result[domain.DrawerView]{}, err
		}
		if err := s.remember(ctx, tx, req.IdempotencyKey, idemDrawerClose, drawer.ID); err != nil {
			return domain.Result[domain.DrawerView]{}, err
		}
		if err := enqueueDrawerEvent(ctx, tx, events.DrawerClosed, *drawer, entry, now); err != nil {
			return domain.Result[domain.DrawerView]{}, err
		}

		view := ledger.View(*drawer)
		fx.balance(decimal.Zero)
		fx.audit("drawer_close", "cash_drawer", drawer.ID, fmt.Sprintf("expected=%s,counted=%s,difference=%s", expected, closing, view.Difference))
		return domain.OK(fmt.Sprintf("Cash drawer closed, difference %s", view.Difference), view), nil
	})
}

func (s *Service) CashIn(ctx context.Context, req domain.CashMovementRequest) (domain.Result[domain.DrawerView], error) {
	return s.cashMovement(ctx, policy.OpCashIn, idemCashIn, domain.CashTxCashIn, events.DrawerCashIn, req)
}

func (s *Service) CashOut(ctx context.Context, req domain.CashMovementRequest) (domain.Result[domain.DrawerView], error) {
	return s.cashMovement(ctx, policy.OpCashOut, idemCashOut, domain.CashTxCashOut, events.DrawerCashOut, req)
}

func (s *Service) cashMovement(ctx context.Context, op policy.Operation, operation string, txType string, eventType string, req domain.CashMovementRequest) (domain.Result[domain.DrawerView], error) {
	return execute(ctx, s, op, func(ctx context.Context, tx store.Tx, fx *effects) (domain.Result[domain.DrawerView], error) {
		if res, ok, err := replayDrawer(ctx, tx, req.IdempotencyKey, operation, "Cash movement already recorded"); ok || err != nil {
			return res, err
		}
		description := strings.TrimSpace(req.Description)
		if !req.Amount.IsPositive() {
			return domain.Result[domain.DrawerView]{}, fmt.Errorf("%w: amount must be greater than zero", store.ErrValidation)
		}
		if description == "" {
			return domain.Result[domain.DrawerView]{}, fmt.Errorf("%w: description is required", store.ErrValidation)
		}
		drawer, err := openDrawer(ctx, tx)
		if err != nil {
			return domain.Result[domain.DrawerView]{}, err
		}
		now := s.now()

		entry, err := s.bookEntry(ctx, tx, fx, drawer, domain.CashTransaction{
			Type:        txType,
			Amount:      req.Amount,
			Description: description,
		})
		if err != nil {
			return domain.Result[domain.DrawerView]{}, err
		}
		if err := s.remember(ctx, tx, req.IdempotencyKey, operation, drawer.ID); err != nil {
			return domain.Result[domain.DrawerView]{}, err
		}
		if err := enqueueDrawerEvent(ctx, tx, eventType, *drawer, entry, now); err != nil {
			return domain.Result[domain.DrawerView]{}, err
		}
		fx.audit(strings.ToLower(txType), "cash_drawer", drawer.ID, fmt.Sprintf("amount=%s,description=%s", req.Amount, description))

		label := "Cash in recorded"
		if txType == domain.CashTxCashOut {
			label = "Cash out recorded"
		}
		return domain.OK(label, ledger.View(*drawer)), nil
	})
}

func (s *Service) CurrentDrawer(ctx context.Context) (domain.Result[domain.DrawerView], error) {
	return read(ctx, s, policy.OpDrawerRead, func(ctx context.Context) (domain.Result[domain.DrawerView], error) {
		drawer, err := s.repo.GetOpenDrawer(ctx)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Result[domain.DrawerView]{}, errNoOpenDrawer
			}
			return domain.Result[domain.DrawerView]{}, err
		}
		return domain.OK("", ledger.View(*drawer)), nil
	})
}

func (s *Service) GetDrawer(ctx context.Context, id string) (domain.Result[domain.DrawerView], error) {
	return read(ctx, s, policy.OpDrawerRead, func(ctx context.Context) (domain.Result[domain.DrawerView], error) {
		drawer, err := s.repo.GetDrawer(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Result[domain.DrawerView]{}, fmt.Errorf("drawer %s: %w", id, err)
			}
			return domain.Result[domain.DrawerView]{}, err
		}
		return domain.OK("", ledger.View(*drawer)), nil
	})
}

func (s *Service) DrawerHistory(ctx context.Context, limit int) (domain.Result[[]domain.DrawerView], error) {
	return read(ctx, s, policy.OpDrawerRead, func(ctx context.Context) (domain.Result[[]domain.DrawerView], error) {
		if limit < 1 || limit > 200 {
			limit = 20
		}
		drawers, err := s.repo.ListDrawers(ctx, limit)
		if err != nil {
			return domain.Result[[]domain.DrawerView]{}, err
		}
		views := make([]domain.DrawerView, 0, len(drawers))
		for _, drawer := range drawers {
			views = append(views, ledger.View(drawer))
		}
		return domain.OK(fmt.Sprintf("%d drawer(s)", len(views)), views), nil
	})
}

func openDrawer(ctx context.Context, tx store.Tx) (*domain.CashDrawer, error) {
	drawer, err := tx.GetOpenDrawerForUpdate(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errNoOpenDrawer
		}
		return nil, err
	}
	return drawer, nil
}

func replayDrawer(ctx context.Context, tx store.Tx, key string, operation string, message string) (domain.Result[domain.DrawerView], bool, error) {
	id, ok, err := replay(ctx, tx, key, operation)
	if err != nil || !ok {
		return domain.Result[domain.DrawerView]{}, false, err
	}
	drawer, err := tx.GetDrawer(ctx, id)
	if err != nil {
		return domain.Result[domain.DrawerView]{}, false, err
	}
	res := domain.OK(message, ledger.View(*drawer))
	res.Duplicate = true
	return res, true, nil
}
