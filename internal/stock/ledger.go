package stock

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	pkgdb "github.com/ysjshop/backend/pkg/db"
	"github.com/ysjshop/backend/pkg/db/models"
	pkgerrors "github.com/ysjshop/backend/pkg/errors"
)

// Delta describes how each counter should move, all together or not at all.
type Delta struct {
	Total     int
	Available int
	Prelock   int
}

// AppliedDelta carries the row state on both sides of a committed delta; the
// Before snapshot feeds the audit entry.
type AppliedDelta struct {
	Before models.StockLedgerEntry
	After  models.StockLedgerEntry
}

// LedgerRepository owns the stock_ledger rows. Nothing outside the
// reservation engine may write them.
type LedgerRepository interface {
	WithTx(tx *gorm.DB) LedgerRepository
	Create(ctx context.Context, entry *models.StockLedgerEntry) error
	Find(ctx context.Context, productID uuid.UUID) (*models.StockLedgerEntry, error)
	FindForUpdate(ctx context.Context, productID uuid.UUID) (*models.StockLedgerEntry, error)
	ApplyDelta(ctx context.Context, productID uuid.UUID, delta Delta) (*AppliedDelta, error)
}

type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository returns a ledger repository bound to the provided database.
func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) WithTx(tx *gorm.DB) LedgerRepository {
	if tx == nil {
		return r
	}
	return &ledgerRepository{db: tx}
}

func (r *ledgerRepository) Create(ctx context.Context, entry *models.StockLedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *ledgerRepository) Find(ctx context.Context, productID uuid.UUID) (*models.StockLedgerEntry, error) {
	var entry models.StockLedgerEntry
	err := r.db.WithContext(ctx).First(&entry, "product_id = ?", productID).Error
	if err != nil {
		if pkgdb.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product has no stock ledger row")
		}
		return nil, err
	}
	return &entry, nil
}

// FindForUpdate loads the ledger row under a row lock on backends that
// support one. SQLite (tests) serializes at the database level already, and
// the in-process lock manager covers single-node deployments.
func (r *ledgerRepository) FindForUpdate(ctx context.Context, productID uuid.UUID) (*models.StockLedgerEntry, error) {
	q := r.db.WithContext(ctx)
	if q.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var entry models.StockLedgerEntry
	if err := q.First(&entry, "product_id = ?", productID).Error; err != nil {
		if pkgdb.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product has no stock ledger row")
		}
		return nil, err
	}
	return &entry, nil
}

// ApplyDelta moves the three counters together. The write is refused outright
// when the result would break the ledger invariant; callers are expected to
// pre-validate and map the refusal to a business error before reaching this
// guard.
func (r *ledgerRepository) ApplyDelta(ctx context.Context, productID uuid.UUID, delta Delta) (*AppliedDelta, error) {
	before, err := r.FindForUpdate(ctx, productID)
	if err != nil {
		return nil, err
	}

	after := *before
	after.TotalQty += delta.Total
	after.AvailableQty += delta.Available
	after.PrelockQty += delta.Prelock

	if !after.InvariantHolds() {
		return nil, pkgerrors.New(pkgerrors.CodeStockInvariant,
			fmt.Sprintf("delta (%+d,%+d,%+d) would leave counters total=%d available=%d prelock=%d",
				delta.Total, delta.Available, delta.Prelock,
				after.TotalQty, after.AvailableQty, after.PrelockQty),
		)
	}

	err = r.db.WithContext(ctx).
		Model(&models.StockLedgerEntry{}).
		Where("product_id = ?", productID).
		Updates(map[string]any{
			"total_qty":     after.TotalQty,
			"available_qty": after.AvailableQty,
			"prelock_qty":   after.PrelockQty,
		}).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist stock counters")
	}

	return &AppliedDelta{Before: *before, After: after}, nil
}
