package stock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/ysjshop/backend/pkg/errors"
)

func TestLockManagerAcquireRelease(t *testing.T) {
	manager := NewLockManager(time.Second)
	productID := uuid.New()

	release, err := manager.Acquire(context.Background(), productID)
	require.NoError(t, err)
	release()

	// Second acquire after release must not block.
	release, err = manager.Acquire(context.Background(), productID)
	require.NoError(t, err)
	release()
}

func TestLockManagerTimeout(t *testing.T) {
	manager := NewLockManager(50 * time.Millisecond)
	productID := uuid.New()

	release, err := manager.Acquire(context.Background(), productID)
	require.NoError(t, err)
	defer release()

	_, err = manager.Acquire(context.Background(), productID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeLockTimeout))
}

func TestLockManagerContextCancel(t *testing.T) {
	manager := NewLockManager(time.Minute)
	productID := uuid.New()

	release, err := manager.Acquire(context.Background(), productID)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = manager.Acquire(ctx, productID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeLockTimeout))
}

func TestLockManagerIndependentProducts(t *testing.T) {
	manager := NewLockManager(100 * time.Millisecond)

	releaseA, err := manager.Acquire(context.Background(), uuid.New())
	require.NoError(t, err)
	defer releaseA()

	// Holding one product's lock must not block another product.
	releaseB, err := manager.Acquire(context.Background(), uuid.New())
	require.NoError(t, err)
	releaseB()
}

func TestLockManagerSerializesWriters(t *testing.T) {
	manager := NewLockManager(5 * time.Second)
	productID := uuid.New()

	const workers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		holders int
		maxSeen int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := manager.Acquire(context.Background(), productID)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			holders++
			if holders > maxSeen {
				maxSeen = holders
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen, "lock admitted more than one holder")
}

func TestLockManagerReleaseIsIdempotent(t *testing.T) {
	manager := NewLockManager(time.Second)
	productID := uuid.New()

	release, err := manager.Acquire(context.Background(), productID)
	require.NoError(t, err)
	release()
	release()

	release, err = manager.Acquire(context.Background(), productID)
	require.NoError(t, err)
	release()
}
