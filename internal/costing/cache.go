package costing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SnapshotCache is a read-through cache for stock snapshots. Writers delete
// the key in the same service call that mutates the snapshot; a miss falls
// back to PostgreSQL.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotCache constructs the cache. A zero ttl defaults to one minute.
func NewSnapshotCache(client *redis.Client, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &SnapshotCache{client: client, ttl: ttl}
}

func snapshotKey(branchID, itemID int64) string {
	return fmt.Sprintf("stock:snapshot:%d:%d", branchID, itemID)
}

// Get returns the cached snapshot and whether it was present.
func (c *SnapshotCache) Get(ctx context.Context, branchID, itemID int64) (Snapshot, bool) {
	if c == nil || c.client == nil {
		return Snapshot{}, false
	}
	payload, err := c.client.Get(ctx, snapshotKey(branchID, itemID)).Bytes()
	if err != nil {
		return Snapshot{}, false
	}
	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return Snapshot{}, false
	}
	return snap, true
}

// Set stores the snapshot, best effort.
func (c *SnapshotCache) Set(ctx context.Context, snap Snapshot) {
	if c == nil || c.client == nil {
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, snapshotKey(snap.BranchID, snap.ItemID), payload, c.ttl).Err()
}

// Delete drops the cached snapshot, best effort.
func (c *SnapshotCache) Delete(ctx context.Context, branchID, itemID int64) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Del(ctx, snapshotKey(branchID, itemID)).Err()
}
