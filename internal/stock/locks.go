package stock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/ysjshop/backend/pkg/errors"
)

// LockManager serializes mutations per product. Every write to a ledger row
// acquires the product's lock before opening the database transaction, which
// keeps row lock contention short and makes the wait bounded.
type LockManager struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*lockEntry
	timeout time.Duration
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

// NewLockManager builds a lock manager with the provided acquire timeout.
func NewLockManager(timeout time.Duration) *LockManager {
	return &LockManager{
		entries: make(map[uuid.UUID]*lockEntry),
		timeout: timeout,
	}
}

func (m *LockManager) checkout(productID uuid.UUID) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[productID]
	if !ok {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		m.entries[productID] = entry
	}
	entry.refs++
	return entry
}

func (m *LockManager) checkin(productID uuid.UUID, entry *lockEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry.refs--
	if entry.refs == 0 {
		delete(m.entries, productID)
	}
}

// Acquire blocks until the product lock is held, the timeout elapses, or the
// context is cancelled. On success the returned release func must be called
// exactly once.
func (m *LockManager) Acquire(ctx context.Context, productID uuid.UUID) (func(), error) {
	entry := m.checkout(productID)

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case entry.sem <- struct{}{}:
		var once sync.Once
		release := func() {
			once.Do(func() {
				<-entry.sem
				m.checkin(productID, entry)
			})
		}
		return release, nil
	case <-timer.C:
		m.checkin(productID, entry)
		return nil, pkgerrors.New(pkgerrors.CodeLockTimeout, "timed out waiting for stock lock")
	case <-ctx.Done():
		m.checkin(productID, entry)
		return nil, pkgerrors.Wrap(pkgerrors.CodeLockTimeout, ctx.Err(), "cancelled waiting for stock lock")
	}
}
