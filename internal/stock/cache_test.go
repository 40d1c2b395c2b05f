package stock

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/bus"
)

func newCacheFixture(t *testing.T) (*LowStockCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLowStockCache(client, time.Minute), mr
}

func TestLowStockCacheHitsAfterFirstLoad(t *testing.T) {
	cache, _ := newCacheFixture(t)
	ctx := context.Background()

	var loads atomic.Int64
	loader := func(context.Context) ([]LowStockItem, error) {
		loads.Add(1)
		return []LowStockItem{{ProductID: 1, Name: "Fuba", StockQty: 1, MinStock: 5}}, nil
	}

	first, err := cache.Fetch(ctx, 1, loader)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := cache.Fetch(ctx, 1, loader)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.EqualValues(t, 1, loads.Load())
}

func TestLowStockCacheBumpInvalidates(t *testing.T) {
	cache, _ := newCacheFixture(t)
	ctx := context.Background()

	var loads atomic.Int64
	loader := func(context.Context) ([]LowStockItem, error) {
		loads.Add(1)
		return nil, nil
	}

	_, err := cache.Fetch(ctx, 1, loader)
	require.NoError(t, err)

	cache.Bump(ctx)

	_, err = cache.Fetch(ctx, 1, loader)
	require.NoError(t, err)
	require.EqualValues(t, 2, loads.Load())
}

func TestLowStockCacheInvalidatesOnBusEvent(t *testing.T) {
	cache, mr := newCacheFixture(t)
	ctx := context.Background()

	_, err := cache.Fetch(ctx, 1, func(context.Context) ([]LowStockItem, error) { return nil, nil })
	require.NoError(t, err)
	before, err := mr.Get(lowStockVersionKey)
	require.NoError(t, err)

	b := bus.New()
	cancel := cache.InvalidateOn(b)
	defer cancel()

	b.PublishKinds(bus.KindMovement)

	require.Eventually(t, func() bool {
		after, err := mr.Get(lowStockVersionKey)
		return err == nil && after != before
	}, time.Second, 10*time.Millisecond)
}

func TestLowStockCacheIgnoresUnrelatedKinds(t *testing.T) {
	cache, mr := newCacheFixture(t)
	ctx := context.Background()

	_, err := cache.Fetch(ctx, 1, func(context.Context) ([]LowStockItem, error) { return nil, nil })
	require.NoError(t, err)
	before, err := mr.Get(lowStockVersionKey)
	require.NoError(t, err)

	b := bus.New()
	cancel := cache.InvalidateOn(b)
	defer cancel()

	b.PublishKinds(bus.KindSubscription)

	time.Sleep(50 * time.Millisecond)
	after, err := mr.Get(lowStockVersionKey)
	require.NoError(t, err)
	require.Equal(t, before, after)
}
