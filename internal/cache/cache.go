package cache

import (
	"context"
	"time"

	"restopos/backend/internal/domain"
)

type SaleCache interface {
	Get(ctx context.Context, key string) (*domain.SaleView, bool, error)
	Set(ctx context.Context, key string, value *domain.SaleView, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type NoopSaleCache struct{}

func (NoopSaleCache) Get(_ context.Context, _ string) (*domain.SaleView, bool, error) {
	return nil, false, nil
}

func (NoopSaleCache) Set(_ context.Context, _ string, _ *domain.SaleView, _ time.Duration) error {
	return nil
}

func (NoopSaleCache) Delete(_ context.Context, _ string) error {
	return nil
}

func SaleKey(orderID string) string {
	return "restopos:sale:" + orderID
}
