package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis starts an in-memory Redis and a client connected to it.
func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	if err := client.Ping(context.Background()).Err(); err != nil {
		mr.Close()
		t.Fatalf("Failed to connect to miniredis: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return NewRedis(client, nil), mr
}

func TestAcquireAndRelease(t *testing.T) {
	r, _ := setupTestRedis(t)
	ctx := context.Background()
	key := StockKey(12)

	ok, err := r.Acquire(ctx, key, "booking-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Acquire(ctx, key, "booking-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second owner must not take a held lock")

	require.NoError(t, r.Release(ctx, key, "booking-b"))
	locked, err := r.IsLocked(ctx, key)
	require.NoError(t, err)
	assert.True(t, locked, "release by a foreign owner is a no-op")

	require.NoError(t, r.Release(ctx, key, "booking-a"))
	locked, err = r.IsLocked(ctx, key)
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestLockExpires(t *testing.T) {
	r, mr := setupTestRedis(t)
	ctx := context.Background()

	ok, err := r.Acquire(ctx, PricingPointKey(3), "run-1", 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(6 * time.Second)

	ok, err = r.Acquire(ctx, PricingPointKey(3), "run-2", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAcquireManyIsAllOrNothing(t *testing.T) {
	r, _ := setupTestRedis(t)
	ctx := context.Background()
	keys := []string{StockKey(1), StockKey(2), StockKey(3)}

	ok, err := r.Acquire(ctx, StockKey(2), "other", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.AcquireMany(ctx, keys, "me", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	locked, err := r.IsLocked(ctx, StockKey(1))
	require.NoError(t, err)
	assert.False(t, locked, "partially taken keys are rolled back")

	require.NoError(t, r.Release(ctx, StockKey(2), "other"))
	ok, err = r.AcquireMany(ctx, keys, "me", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, r.ReleaseMany(ctx, keys, "me"))
}

func TestWithLockSerialisesConcurrentRuns(t *testing.T) {
	r, _ := setupTestRedis(t)

	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	ran, refused := 0, 0

	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start
			err := r.WithLock(context.Background(), CashflowGenerationKey, fmt.Sprintf("w-%d", n), time.Minute,
				func(ctx context.Context) error {
					time.Sleep(20 * time.Millisecond)
					return nil
				})
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, ErrNotAcquired) {
				refused++
			} else if err == nil {
				ran++
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.GreaterOrEqual(t, ran, 1)
	assert.Equal(t, workers, ran+refused)
}

func TestWithLockReleasesOnError(t *testing.T) {
	r, _ := setupTestRedis(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := r.WithLock(ctx, SearchIndexingKey, "idx", time.Minute, func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	locked, err := r.IsLocked(ctx, SearchIndexingKey)
	require.NoError(t, err)
	assert.False(t, locked)
}
