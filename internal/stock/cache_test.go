package stock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ysjshop/backend/pkg/enums"
	"github.com/ysjshop/backend/pkg/logger"
	"github.com/ysjshop/backend/pkg/redis"
)

type fakeSnapshotStore struct {
	values map[string]string
	err    error
}

func newFakeSnapshotStore() *fakeSnapshotStore {
	return &fakeSnapshotStore{values: map[string]string{}}
}

func (s *fakeSnapshotStore) Get(_ context.Context, key string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	value, ok := s.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (s *fakeSnapshotStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	if s.err != nil {
		return s.err
	}
	s.values[key] = string(value.([]byte))
	return nil
}

func (s *fakeSnapshotStore) Del(_ context.Context, keys ...string) error {
	if s.err != nil {
		return s.err
	}
	for _, key := range keys {
		delete(s.values, key)
	}
	return nil
}

func (s *fakeSnapshotStore) SnapshotKey(productID string) string {
	return fmt.Sprintf("ysj:stock_snapshot:%s", productID)
}

func newTestCache(store snapshotStore) *SnapshotCache {
	logg := logger.New(logger.Options{ServiceName: "cache-test", Output: io.Discard})
	return NewSnapshotCache(store, 5*time.Second, logg)
}

func TestSnapshotCacheRoundTrip(t *testing.T) {
	store := newFakeSnapshotStore()
	cache := newTestCache(store)
	ctx := context.Background()

	productID := uuid.New()
	cache.SetSnapshot(ctx, &Snapshot{
		ProductID:      productID,
		TotalQty:       100,
		AvailableQty:   90,
		PrelockQty:     10,
		EffectiveStock: 90,
		WarningStock:   5,
		Status:         enums.StockStatusSufficient,
	})

	cached, err := cache.GetSnapshot(ctx, productID)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, 100, cached.TotalQty)
	assert.Equal(t, 90, cached.EffectiveStock)
	assert.Equal(t, enums.StockStatusSufficient, cached.Status)
}

func TestSnapshotCacheMiss(t *testing.T) {
	cache := newTestCache(newFakeSnapshotStore())

	cached, err := cache.GetSnapshot(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestSnapshotCacheInvalidate(t *testing.T) {
	store := newFakeSnapshotStore()
	cache := newTestCache(store)
	ctx := context.Background()

	productID := uuid.New()
	cache.SetSnapshot(ctx, &Snapshot{ProductID: productID, TotalQty: 10})
	cache.Invalidate(ctx, productID)

	cached, err := cache.GetSnapshot(ctx, productID)
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestSnapshotCacheDegradesOnStoreFailure(t *testing.T) {
	store := newFakeSnapshotStore()
	store.err = errors.New("connection refused")
	cache := newTestCache(store)
	ctx := context.Background()

	// Reads degrade to a miss, writes and invalidations stay silent.
	cached, err := cache.GetSnapshot(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, cached)

	cache.SetSnapshot(ctx, &Snapshot{ProductID: uuid.New()})
	cache.Invalidate(ctx, uuid.New())
}

func TestSnapshotCacheCorruptEntryTreatedAsMiss(t *testing.T) {
	store := newFakeSnapshotStore()
	cache := newTestCache(store)
	productID := uuid.New()
	store.values[store.SnapshotKey(productID.String())] = "{not json"

	cached, err := cache.GetSnapshot(context.Background(), productID)
	require.NoError(t, err)
	assert.Nil(t, cached)
}
