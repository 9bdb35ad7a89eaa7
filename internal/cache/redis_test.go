package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamgf-ru/companion-bot/internal/config"
)

func setupTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	t.Cleanup(func() { mr.Close() })

	cfg := config.RedisConnection{
		AddressRedis: mr.Addr(),
		Password:     "",
		DB:           0,
		User:         "",
	}

	cache, err := InitServer(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache, mr
}

func TestSetAndGet(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	err := cache.Set(ctx, "key", []byte("value"), time.Minute)
	require.NoError(t, err)

	val, found, err := cache.Get(ctx, "key")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("value"), val)
}

func TestGetNotFound(t *testing.T) {
	cache, _ := setupTestCache(t)

	_, found, err := cache.Get(context.Background(), "no_such_key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDelete(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "key", []byte("value"), time.Minute))
	require.NoError(t, cache.Delete(ctx, "key"))

	_, found, err := cache.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSetExpires(t *testing.T) {
	cache, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "key", []byte("value"), time.Minute))

	mr.FastForward(2 * time.Minute)

	_, found, err := cache.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIncrement(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	val, err := cache.Increment(ctx, "counter", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)

	val, err = cache.Increment(ctx, "counter", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), val)

	got, err := cache.GetCounter(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)
}

func TestIncrementConcurrent(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			_, err := cache.Increment(ctx, "counter", time.Minute)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := cache.GetCounter(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(workers), got)
}

func TestGetCounterMissing(t *testing.T) {
	cache, _ := setupTestCache(t)

	got, err := cache.GetCounter(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
}

func TestListOps(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.ListAppendFront(ctx, "list", []byte("a"), time.Minute))
	require.NoError(t, cache.ListAppendFront(ctx, "list", []byte("b"), time.Minute))
	require.NoError(t, cache.ListAppendFront(ctx, "list", []byte("c"), time.Minute))

	vals, err := cache.ListRange(ctx, "list", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, vals)

	require.NoError(t, cache.ListTrim(ctx, "list", 0, 1))

	vals, err = cache.ListRange(ctx, "list", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, vals)
}
