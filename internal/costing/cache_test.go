package costing

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

	_, ok := cache.Get(ctx, 1, 7)
	require.False(t, ok)

	cache.Set(ctx, Snapshot{BranchID: 1, ItemID: 7, Qty: 42})
	snap, ok := cache.Get(ctx, 1, 7)
	require.True(t, ok)
	require.Equal(t, int64(42), snap.Qty)

	cache.Delete(ctx, 1, 7)
	_, ok = cache.Get(ctx, 1, 7)
	require.False(t, ok)
}

func TestSnapshotCacheKeysPerBranchItem(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, Snapshot{BranchID: 1, ItemID: 7, Qty: 5})
	cache.Set(ctx, Snapshot{BranchID: 2, ItemID: 7, Qty: 9})

	snap, ok := cache.Get(ctx, 2, 7)
	require.True(t, ok)
	require.Equal(t, int64(9), snap.Qty)

	cache.Delete(ctx, 2, 7)
	snap, ok = cache.Get(ctx, 1, 7)
	require.True(t, ok)
	require.Equal(t, int64(5), snap.Qty)
}

func TestServiceOnHandUsesCache(t *testing.T) {
	store := newMemoryStore()
	cache := newTestCache(t)
	svc := NewService(store, cache, nil, nil)
	ctx := context.Background()

	seedLayers(t, svc, 3, 11, ReceiveInput{Qty: 8, UnitCost: 250, SourceRef: "PO-3"})

	snap, err := svc.OnHand(ctx, 3, 11)
	require.NoError(t, err)
	require.Equal(t, int64(8), snap.Qty)

	// Consumption invalidates, so the next read reflects the new quantity.
	_, err = svc.Consume(ctx, ConsumeInput{BranchID: 3, ItemID: 11, Qty: 3, Ref: "SALE-3"})
	require.NoError(t, err)

	snap, err = svc.OnHand(ctx, 3, 11)
	require.NoError(t, err)
	require.Equal(t, int64(5), snap.Qty)
}
