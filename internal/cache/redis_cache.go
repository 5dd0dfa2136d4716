package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"backoffice/backend/internal/domain"
)

const billingKeyPrefix = "backoffice:billing:"

type RedisBillingCache struct {
	client *redis.Client
}

func NewRedisBillingCache(client *redis.Client) *RedisBillingCache {
	return &RedisBillingCache{client: client}
}

func (c *RedisBillingCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisBillingCache) Get(ctx context.Context, id string) (*domain.BillingResult, bool, error) {
	val, err := c.client.Get(ctx, billingKeyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var resp domain.BillingResult
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		return nil, false, err
	}
	return &resp, true, nil
}

func (c *RedisBillingCache) Set(ctx context.Context, id string, value *domain.BillingResult, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, billingKeyPrefix+id, payload, ttl).Err()
}

func (c *RedisBillingCache) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, billingKeyPrefix+id)
	}
	return c.client.Del(ctx, keys...).Err()
}
