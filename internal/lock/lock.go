// Package lock serializes billing work on the same serials and bills across
// server instances.
package lock

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/bsm/redislock"
	"github.com/rs/zerolog"

	"backoffice/backend/internal/logging"
	"backoffice/backend/internal/store"
)

const (
	SerialKeyPrefix  = "backoffice:lock:serial:"
	BillingKeyPrefix = "backoffice:lock:billing:"
)

type Locker interface {
	// Acquire takes every key or none. A held key surfaces as store.ErrConflict.
	Acquire(ctx context.Context, keys ...string) (release func(), err error)
}

type Noop struct{}

func (Noop) Acquire(_ context.Context, _ ...string) (func(), error) {
	return func() {}, nil
}

type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	opts   *redislock.Options
	log    zerolog.Logger
}

func NewRedisLocker(client redislock.RedisClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &RedisLocker{
		client: redislock.New(client),
		ttl:    ttl,
		opts: &redislock.Options{
			RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 20),
		},
		log: logging.WithComponent("lock"),
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, keys ...string) (func(), error) {
	ordered := Normalize(keys)
	held := make([]*redislock.Lock, 0, len(ordered))
	release := func() {
		// Release must outlive a cancelled request context.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				l.log.Warn().Err(err).Str("key", held[i].Key()).Msg("failed to release lock")
			}
		}
	}

	for _, key := range ordered {
		lk, err := l.client.Obtain(ctx, key, l.ttl, l.opts)
		if errors.Is(err, redislock.ErrNotObtained) {
			release()
			return nil, fmt.Errorf("%w: lock %s is held", store.ErrConflict, key)
		}
		if err != nil {
			release()
			return nil, fmt.Errorf("lock: obtain %s: %w", key, err)
		}
		held = append(held, lk)
	}
	return release, nil
}

// SerialKeys maps serials to lock keys.
func SerialKeys(serials []string) []string {
	out := make([]string, 0, len(serials))
	for _, serial := range serials {
		out = append(out, SerialKeyPrefix+serial)
	}
	return out
}

func BillingKey(id string) string {
	return BillingKeyPrefix + id
}

// Normalize sorts and de-duplicates keys so every caller locks in the same order.
func Normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if key != "" {
			out = append(out, key)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
