package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *SnapshotCache {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSnapshotCache(client, time.Minute)
}

func TestSnapshotCacheRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	_, err := cache.Get(ctx, 1, 10)
	require.ErrorIs(t, err, ErrBalanceNotFound)

	bal := Balance{WarehouseID: 1, ProductID: 10, Quantity: 12, AvailableQty: 9, ReservedQty: 3}
	require.NoError(t, cache.Set(ctx, bal))

	got, err := cache.Get(ctx, 1, 10)
	require.NoError(t, err)
	require.InDelta(t, 12, got.Quantity, 1e-9)
	require.InDelta(t, 9, got.AvailableQty, 1e-9)
	require.InDelta(t, 3, got.ReservedQty, 1e-9)
}

func TestSnapshotCacheInvalidate(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, Balance{WarehouseID: 2, ProductID: 20, Quantity: 5, AvailableQty: 5}))
	require.NoError(t, cache.Invalidate(ctx, 2, 20))

	_, err := cache.Get(ctx, 2, 20)
	require.ErrorIs(t, err, ErrBalanceNotFound)
}

func TestSnapshotCacheNilClientDegrades(t *testing.T) {
	var cache *SnapshotCache
	ctx := context.Background()

	_, err := cache.Get(ctx, 1, 1)
	require.ErrorIs(t, err, ErrBalanceNotFound)
	require.NoError(t, cache.Set(ctx, Balance{WarehouseID: 1, ProductID: 1}))
	require.NoError(t, cache.Invalidate(ctx, 1, 1))
}
