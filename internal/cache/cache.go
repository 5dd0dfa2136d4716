package cache

import (
	"context"
	"time"

	"backoffice/backend/internal/domain"
)

// BillingCache holds rendered billing views keyed by billing id. Writers
// invalidate; readers fill on miss.
type BillingCache interface {
	Get(ctx context.Context, id string) (*domain.BillingResult, bool, error)
	Set(ctx context.Context, id string, value *domain.BillingResult, ttl time.Duration) error
	Delete(ctx context.Context, ids ...string) error
}

type NoopBillingCache struct{}

func (NoopBillingCache) Get(_ context.Context, _ string) (*domain.BillingResult, bool, error) {
	return nil, false, nil
}

func (NoopBillingCache) Set(_ context.Context, _ string, _ *domain.BillingResult, _ time.Duration) error {
	return nil
}

func (NoopBillingCache) Delete(_ context.Context, _ ...string) error {
	return nil
}
