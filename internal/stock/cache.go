package stock

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ysjshop/backend/pkg/logger"
	"github.com/ysjshop/backend/pkg/redis"
)

// snapshotStore is the slice of the redis client the cache needs.
type snapshotStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	SnapshotKey(productID string) string
}

// SnapshotCache keeps short-lived stock snapshots in Redis so hot read paths
// skip the database. Cache failures degrade to a miss; the ledger stays the
// source of truth.
type SnapshotCache struct {
	store  snapshotStore
	ttl    time.Duration
	logger *logger.Logger
}

// NewSnapshotCache wires a snapshot cache over the shared redis client.
func NewSnapshotCache(store snapshotStore, ttl time.Duration, logg *logger.Logger) *SnapshotCache {
	return &SnapshotCache{store: store, ttl: ttl, logger: logg}
}

// GetSnapshot returns the cached snapshot, or (nil, nil) on a miss.
func (c *SnapshotCache) GetSnapshot(ctx context.Context, productID uuid.UUID) (*Snapshot, error) {
	raw, err := c.store.Get(ctx, c.store.SnapshotKey(productID.String()))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		c.warn(ctx, err, "stock snapshot cache read failed")
		return nil, nil
	}

	var snapshot Snapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		c.warn(ctx, err, "stock snapshot cache entry corrupt")
		return nil, nil
	}
	return &snapshot, nil
}

// SetSnapshot stores the snapshot for the configured TTL.
func (c *SnapshotCache) SetSnapshot(ctx context.Context, snapshot *Snapshot) {
	if snapshot == nil {
		return
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		c.warn(ctx, err, "stock snapshot marshal failed")
		return
	}
	key := c.store.SnapshotKey(snapshot.ProductID.String())
	if err := c.store.Set(ctx, key, payload, c.ttl); err != nil {
		c.warn(ctx, err, "stock snapshot cache write failed")
	}
}

// Invalidate drops the cached snapshot after a ledger mutation.
func (c *SnapshotCache) Invalidate(ctx context.Context, productID uuid.UUID) {
	key := c.store.SnapshotKey(productID.String())
	if err := c.store.Del(ctx, key); err != nil {
		c.warn(ctx, err, "stock snapshot invalidation failed")
	}
}

func (c *SnapshotCache) warn(ctx context.Context, err error, msg string) {
	if c.logger == nil {
		return
	}
	c.logger.Warn(c.logger.WithField(ctx, "error", err.Error()), msg)
}
