package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SnapshotCache keeps recent balance snapshots in Redis so reporting reads
// do not hit the balance table. Entries are dropped whenever a completion
// touches the pair, so a miss always falls back to the table.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotCache builds SnapshotCache.
func NewSnapshotCache(client *redis.Client, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SnapshotCache{client: client, ttl: ttl}
}

func snapshotKey(warehouseID, productID int64) string {
	return fmt.Sprintf("inventory:balance:%d:%d", warehouseID, productID)
}

// Get returns the cached balance, or ErrBalanceNotFound on a miss.
func (c *SnapshotCache) Get(ctx context.Context, warehouseID, productID int64) (Balance, error) {
	if c == nil || c.client == nil {
		return Balance{}, ErrBalanceNotFound
	}
	data, err := c.client.Get(ctx, snapshotKey(warehouseID, productID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Balance{}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	var bal Balance
	if err := json.Unmarshal(data, &bal); err != nil {
		return Balance{}, ErrBalanceNotFound
	}
	return bal, nil
}

// Set stores the balance snapshot.
func (c *SnapshotCache) Set(ctx context.Context, bal Balance) error {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := json.Marshal(bal)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, snapshotKey(bal.WarehouseID, bal.ProductID), data, c.ttl).Err()
}

// Invalidate drops the cached snapshot for a pair.
func (c *SnapshotCache) Invalidate(ctx context.Context, warehouseID, productID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, snapshotKey(warehouseID, productID)).Err()
}
