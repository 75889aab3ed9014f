package models

import (
	"time"

	"github.com/google/uuid"
)

// StockLedgerEntry holds the three stock counters for one product. The row is
// created at product initialization and mutated only through the reservation
// engine; after every committed write
// total >= 0, available >= 0, prelock >= 0 and available+prelock <= total.
type StockLedgerEntry struct {
	ProductID    uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	TotalQty     int       `gorm:"column:total_qty;not null;default:0"`
	AvailableQty int       `gorm:"column:available_qty;not null;default:0"`
	PrelockQty   int       `gorm:"column:prelock_qty;not null;default:0"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName keeps the singular ledger naming.
func (StockLedgerEntry) TableName() string {
	return "stock_ledger"
}

// EffectiveStock is what a buyer may newly reserve. Prelocked units are
// already excluded from AvailableQty, so no further subtraction applies.
func (e StockLedgerEntry) EffectiveStock() int {
	return e.AvailableQty
}

// InvariantHolds reports whether the counter invariant holds for this row.
func (e StockLedgerEntry) InvariantHolds() bool {
	return e.TotalQty >= 0 &&
		e.AvailableQty >= 0 &&
		e.PrelockQty >= 0 &&
		e.AvailableQty+e.PrelockQty <= e.TotalQty
}
