package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/events"
	"restopos/backend/internal/inventory"
	"restopos/backend/internal/ledger"
	"restopos/backend/internal/metrics"
	"restopos/backend/internal/ordernumber"
	"restopos/backend/internal/policy"
	"restopos/backend/internal/projection"
	"restopos/backend/internal/store"
	"restopos/backend/internal/xid"
)

type actorContextKey struct{}

type policyContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// WithPolicy attaches the capability set the transport resolved for the
// caller. Contexts without one run with policy.System.
func WithPolicy(ctx context.Context, p policy.Policy) context.Context {
	return context.WithValue(ctx, policyContextKey{}, p)
}

func policyFromContext(ctx context.Context) policy.Policy {
	if p, ok := ctx.Value(policyContextKey{}).(policy.Policy); ok && p != nil {
		return p
	}
	return policy.System
}

type Options struct {
	Location           *time.Location
	OrderNumberRetries int
	Metrics            *metrics.Metrics
	Now                func() time.Time
}

type Service struct {
	repo      store.Repository
	projector *projection.Projector
	inventory *inventory.Ledger
	numbers   *ordernumber.Allocator
	metrics   *metrics.Metrics
	retries   int
	now       func() time.Time
}

func New(repo store.Repository, projector *projection.Projector, opts Options) *Service {
	if projector == nil {
		projector = projection.NewProjector(nil, 0)
	}
	if opts.OrderNumberRetries < 1 {
		opts.OrderNumberRetries = 5
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		repo:      repo,
		projector: projector,
		inventory: inventory.New(opts.Now),
		numbers:   ordernumber.New(opts.Location),
		metrics:   opts.Metrics,
		retries:   opts.OrderNumberRetries,
		now:       opts.Now,
	}
}

// effects collects work that must only happen once the transaction has
// committed.
type effects struct {
	audits        []domain.AuditLog
	invalidate    []string
	drawerBalance *decimal.Decimal
}

func (fx *effects) audit(action string, entityType string, entityID string, detail string) {
	fx.audits = append(fx.audits, domain.AuditLog{Action: action, EntityType: entityType, EntityID: entityID, Detail: detail})
}

func (fx *effects) invalidateSale(orderID string) {
	fx.invalidate = append(fx.invalidate, orderID)
}

func (fx *effects) balance(b decimal.Decimal) {
	fx.drawerBalance = &b
}

// execute runs fn as one storage transaction. Business failures come back
// as a failed Result with the transaction rolled back; only infrastructure
// failures are returned as error. Retryable storage conflicts re-run fn.
func execute[T any](ctx context.Context, s *Service, op policy.Operation, fn func(ctx context.Context, tx store.Tx, fx *effects) (domain.Result[T], error)) (domain.Result[T], error) {
	started := time.Now()
	if !policyFromContext(ctx).Can(op) {
		s.metrics.ObserveOperation(string(op), "denied", time.Since(started))
		return domain.Fail[T](domain.CodePermissionDenied, fmt.Sprintf("permission denied: %s", op)), nil
	}

	var (
		res domain.Result[T]
		fx  *effects
		err error
	)
	for attempt := 1; ; attempt++ {
		fx = &effects{}
		err = s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			r, err := fn(ctx, tx, fx)
			if err != nil {
				return err
			}
			res = r
			return nil
		})
		if !errors.Is(err, store.ErrRetryable) || attempt >= s.retries {
			break
		}
		log.Printf("[service] WARN: %s attempt %d hit a storage conflict, retrying: %v", op, attempt, err)
	}

	if err != nil {
		if errors.Is(err, store.ErrRetryable) {
			s.metrics.ObserveOperation(string(op), "rejected", time.Since(started))
			return domain.Fail[T](domain.CodeConflict, "the request collided with a concurrent update, please retry"), nil
		}
		if code, ok := classify(err); ok {
			s.metrics.ObserveOperation(string(op), "rejected", time.Since(started))
			return domain.Fail[T](code, err.Error()), nil
		}
		s.metrics.ObserveOperation(string(op), "error", time.Since(started))
		return domain.Result[T]{}, err
	}

	if res.Duplicate {
		s.metrics.ObserveOperation(string(op), "duplicate", time.Since(started))
		return res, nil
	}
	s.apply(ctx, fx)
	s.metrics.ObserveOperation(string(op), "ok", time.Since(started))
	return res, nil
}

// read runs a query outside a transaction with the same policy check and
// error classification as execute.
func read[T any](ctx context.Context, s *Service, op policy.Operation, fn func(ctx context.Context) (domain.Result[T], error)) (domain.Result[T], error) {
	if !policyFromContext(ctx).Can(op) {
		return domain.Fail[T](domain.CodePermissionDenied, fmt.Sprintf("permission denied: %s", op)), nil
	}
	res, err := fn(ctx)
	if err != nil {
		if code, ok := classify(err); ok {
			return domain.Fail[T](code, err.Error()), nil
		}
		return domain.Result[T]{}, err
	}
	return res, nil
}

func classify(err error) (domain.ErrorCode, bool) {
	switch {
	case errors.Is(err, store.ErrAlreadyVoided):
		return domain.CodeAlreadyVoided, true
	case errors.Is(err, store.ErrNotFound):
		return domain.CodeNotFound, true
	case errors.Is(err, store.ErrInvalidState):
		return domain.CodeInvalidState, true
	case errors.Is(err, store.ErrConflict):
		return domain.CodeConflict, true
	case errors.Is(err, store.ErrValidation):
		return domain.CodeValidation, true
	case errors.Is(err, store.ErrPermissionDenied):
		return domain.CodePermissionDenied, true
	default:
		return "", false
	}
}

func (s *Service) apply(ctx context.Context, fx *effects) {
	for _, id := range fx.invalidate {
		s.projector.Invalidate(ctx, id)
	}
	if fx.drawerBalance != nil {
		s.metrics.SetDrawerBalance(*fx.drawerBalance)
	}
	for _, entry := range fx.audits {
		s.logAudit(ctx, entry.Action, entry.EntityType, entry.EntityID, entry.Detail)
	}
}

// replay answers a request whose idempotency key was already used. ok is
// false when the key is empty or unseen. Reusing a key for a different
// operation is a conflict.
func replay(ctx context.Context, tx store.Tx, key string, operation string) (string, bool, error) {
	if key == "" {
		return "", false, nil
	}
	record, err := tx.FindIdempotency(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	if record.Operation != operation {
		return "", false, fmt.Errorf("%w: idempotency key %s was used for %s", store.ErrConflict, key, record.Operation)
	}
	return record.EntityID, true, nil
}

func (s *Service) remember(ctx context.Context, tx store.Tx, key string, operation string, entityID string) error {
	if key == "" {
		return nil
	}
	return tx.SaveIdempotency(ctx, domain.IdempotencyRecord{
		Key:       key,
		Operation: operation,
		EntityID:  entityID,
		CreatedAt: s.now(),
	})
}

// appendCash books an entry on the open drawer. It reports false without
// error when no drawer is open.
func (s *Service) appendCash(ctx context.Context, tx store.Tx, fx *effects, entry domain.CashTransaction) (bool, error) {
	drawer, err := tx.GetOpenDrawerForUpdate(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Printf("[service] WARN: no open cash drawer, %s of %s for %s not recorded", entry.Type, entry.Amount, entry.SaleID)
			return false, nil
		}
		return false, err
	}
	if _, err := s.bookEntry(ctx, tx, fx, drawer, entry); err != nil {
		return false, err
	}
	return true, nil
}

// bookEntry appends entry to drawer (in place) and stores it.
func (s *Service) bookEntry(ctx context.Context, tx store.Tx, fx *effects, drawer *domain.CashDrawer, entry domain.CashTransaction) (domain.CashTransaction, error) {
	built, err := ledger.NewEntry(*drawer, entry.Type, entry.Amount)
	if err != nil {
		return domain.CashTransaction{}, fmt.Errorf("%w: %v", store.ErrInvalidState, err)
	}
	built.ID = xid.New("ctx")
	built.Description = entry.Description
	built.SaleID = entry.SaleID
	built.PaymentMethod = entry.PaymentMethod
	built.CreatedBy = actorName(ctx)
	built.CreatedAt = s.now()
	if err := tx.AppendCashTransaction(ctx, built); err != nil {
		return domain.CashTransaction{}, err
	}
	drawer.Transactions = append(drawer.Transactions, built)
	fx.balance(ledger.Balance(drawer.Transactions))
	return built, nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = time.Now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrValidation)
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.Username != "" {
		return actor.Username
	}
	return "system"
}

func enqueueOrderEvent(ctx context.Context, tx store.Tx, eventType string, order domain.Order, at time.Time) error {
	ev, err := events.ForOrder(eventType, order, actorName(ctx), at)
	if err != nil {
		return err
	}
	return tx.EnqueueEvent(ctx, ev)
}

func enqueueDrawerEvent(ctx context.Context, tx store.Tx, eventType string, drawer domain.CashDrawer, entry domain.CashTransaction, at time.Time) error {
	ev, err := events.ForDrawer(eventType, drawer.ID, events.DrawerData{
		EntryID: entry.ID,
		Amount:  entry.Amount,
		Balance: ledger.Balance(drawer.Transactions),
		Actor:   actorName(ctx),
	}, at)
	if err != nil {
		return err
	}
	return tx.EnqueueEvent(ctx, ev)
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
