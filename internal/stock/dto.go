package stock

import (
	"github.com/google/uuid"

	"github.com/ysjshop/backend/pkg/db/models"
	"github.com/ysjshop/backend/pkg/enums"
)

// Snapshot is the read-model handed to display layers. EffectiveStock is what
// a buyer may newly reserve; prelocked units are already excluded from it.
type Snapshot struct {
	ProductID      uuid.UUID         `json:"product_id"`
	TotalQty       int               `json:"total_qty"`
	AvailableQty   int               `json:"available_qty"`
	PrelockQty     int               `json:"prelock_qty"`
	EffectiveStock int               `json:"effective_stock"`
	WarningStock   int               `json:"warning_stock"`
	Status         enums.StockStatus `json:"status"`
}

// InitializeInput seeds (or re-seeds) a product's ledger row.
type InitializeInput struct {
	ProductID uuid.UUID
	TotalQty  int
	Remark    string
	AdminID   string
}

// PrelockInput reserves stock for an unpaid order.
type PrelockInput struct {
	ProductID uuid.UUID
	Qty       int
	OrderID   string
}

// ConfirmInput finalizes a paid order's reservation.
type ConfirmInput struct {
	ProductID uuid.UUID
	Qty       int
	OrderID   string
}

// ReleaseInput returns prelocked units to the sellable pool.
type ReleaseInput struct {
	ProductID uuid.UUID
	Qty       int
	OrderID   string
	Reason    string
}

// AdjustInput applies an administrative correction to total/available.
type AdjustInput struct {
	ProductID uuid.UUID
	Delta     int
	Remark    string
	AdminID   string
}

// ReleaseResult reports how much of a release request actually moved.
// Released may be less than Requested when the outstanding prelock was
// smaller; release clamps instead of failing so cancellation paths stay safe
// to repeat.
type ReleaseResult struct {
	Requested int
	Released  int
	Snapshot  *Snapshot
}

// BatchResult carries one item's outcome from a batch operation.
type BatchResult struct {
	ProductID uuid.UUID
	Snapshot  *Snapshot
	Err       error
}

// LogPage is one page of a product's audit trail, newest first.
type LogPage struct {
	Entries    []models.StockLogEntry
	NextCursor string
}
