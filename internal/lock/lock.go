package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pcapi/internal/logger"

	"github.com/go-redis/redis/v8"
)

// ErrNotAcquired is returned by WithLock when another owner holds the key.
var ErrNotAcquired = errors.New("lock held by another owner")

const (
	StockLockPrefix        = "stock_lock:"
	PricingPointLockPrefix = "pricing_point_lock:"
	CashflowGenerationKey  = "cashflow_generation_lock"
	SearchIndexingKey      = "search_indexing_lock"
)

func StockKey(stockID int64) string {
	return fmt.Sprintf("%s%d", StockLockPrefix, stockID)
}

func PricingPointKey(pricingPointID int64) string {
	return fmt.Sprintf("%s%d", PricingPointLockPrefix, pricingPointID)
}

// releaseScript deletes the key only when it still belongs to the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Redis struct {
	Client *redis.Client
	Logger *logger.Logger
}

func NewRedis(client *redis.Client, log *logger.Logger) *Redis {
	if log == nil {
		log = logger.Nop()
	}
	return &Redis{Client: client, Logger: log}
}

// IsLocked checks a key without taking it.
func (r *Redis) IsLocked(ctx context.Context, key string) (bool, error) {
	_, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Acquire sets key to owner if nobody holds it. The lock expires after ttl.
func (r *Redis) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ok, err := r.Client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		r.Logger.Debug("LOCK", fmt.Sprintf("%s already held", key))
	}
	return ok, nil
}

// Release deletes key if owner still holds it.
func (r *Redis) Release(ctx context.Context, key, owner string) error {
	if err := releaseScript.Run(ctx, r.Client, []string{key}, owner).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	return nil
}

// AcquireMany takes every key or none.
func (r *Redis) AcquireMany(ctx context.Context, keys []string, owner string, ttl time.Duration) (bool, error) {
	locked := make([]string, 0, len(keys))
	for _, key := range keys {
		ok, err := r.Acquire(ctx, key, owner, ttl)
		if err != nil || !ok {
			for _, l := range locked {
				_ = r.Release(ctx, l, owner)
			}
			return false, err
		}
		locked = append(locked, key)
	}
	return true, nil
}

func (r *Redis) ReleaseMany(ctx context.Context, keys []string, owner string) error {
	var firstErr error
	for _, key := range keys {
		if err := r.Release(ctx, key, owner); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WithLock runs fn while holding key and releases it afterwards.
func (r *Redis) WithLock(ctx context.Context, key, owner string, ttl time.Duration, fn func(ctx context.Context) error) error {
	ok, err := r.Acquire(ctx, key, owner, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", key, ErrNotAcquired)
	}
	defer func() {
		if err := r.Release(context.Background(), key, owner); err != nil {
			r.Logger.Error("LOCK", err.Error())
		}
	}()
	return fn(ctx)
}
