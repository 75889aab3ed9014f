package stock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ysjshop/backend/pkg/db/models"
	"github.com/ysjshop/backend/pkg/enums"
	pkgerrors "github.com/ysjshop/backend/pkg/errors"
	"github.com/ysjshop/backend/pkg/pagination"
)

// ExpiredPrelock identifies a reservation that was never confirmed or
// released within the TTL.
type ExpiredPrelock struct {
	ProductID uuid.UUID
	OrderID   string
	Qty       int
}

// AuditRepository owns the append-only stock_logs rows. Entries are never
// updated or deleted; corrections arrive as new admin_adjust entries.
type AuditRepository interface {
	WithTx(tx *gorm.DB) AuditRepository
	Append(ctx context.Context, entry *models.StockLogEntry) error
	HasOrderEntry(ctx context.Context, productID uuid.UUID, orderID string, changeType enums.StockChangeType) (bool, error)
	ListByProduct(ctx context.Context, productID uuid.UUID, params pagination.Params) (*LogPage, error)
	FindExpiredPrelocks(ctx context.Context, cutoff time.Time) ([]ExpiredPrelock, error)
	Replay(ctx context.Context, productID uuid.UUID) (*models.StockLedgerEntry, error)
}

type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository returns an audit repository bound to the provided database.
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) WithTx(tx *gorm.DB) AuditRepository {
	if tx == nil {
		return r
	}
	return &auditRepository{db: tx}
}

func (r *auditRepository) Append(ctx context.Context, entry *models.StockLogEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append stock log entry")
	}
	return nil
}

// HasOrderEntry is the confirm dedup key: (product_id, order_id, change_type).
func (r *auditRepository) HasOrderEntry(ctx context.Context, productID uuid.UUID, orderID string, changeType enums.StockChangeType) (bool, error) {
	if orderID == "" {
		return false, nil
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.StockLogEntry{}).
		Where("product_id = ? AND order_id = ? AND change_type = ?", productID, orderID, changeType).
		Count(&count).
		Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListByProduct pages the audit trail newest-first with a keyset cursor.
func (r *auditRepository) ListByProduct(ctx context.Context, productID uuid.UUID, params pagination.Params) (*LogPage, error) {
	pageSize := pagination.NormalizeLimit(params.Limit)
	limitWithBuffer := pagination.LimitWithBuffer(params.Limit)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stock log cursor")
	}

	q := r.db.WithContext(ctx).
		Where("product_id = ?", productID)
	if cursor != nil {
		q = q.Where("id < ?", cursor.LastID)
	}

	var entries []models.StockLogEntry
	if err := q.Order("id DESC").Limit(limitWithBuffer).Find(&entries).Error; err != nil {
		return nil, err
	}

	nextCursor := ""
	if len(entries) > pageSize {
		entries = entries[:pageSize]
		last := entries[len(entries)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{LastID: last.ID})
	}

	return &LogPage{Entries: entries, NextCursor: nextCursor}, nil
}

const expiredPrelockQuery = `
SELECT l.product_id, l.order_id, SUM(-l.change_amount) AS qty
FROM stock_logs l
WHERE l.change_type = 'prelock'
  AND l.order_id IS NOT NULL
  AND l.created_at < ?
  AND NOT EXISTS (
    SELECT 1
    FROM stock_logs f
    WHERE f.product_id = l.product_id
      AND f.order_id = l.order_id
      AND f.change_type IN ('confirm', 'release')
  )
GROUP BY l.product_id, l.order_id
ORDER BY l.product_id, l.order_id
`

// FindExpiredPrelocks returns reservations prelocked before cutoff with no
// confirm or release recorded for the same product/order.
func (r *auditRepository) FindExpiredPrelocks(ctx context.Context, cutoff time.Time) ([]ExpiredPrelock, error) {
	var rows []ExpiredPrelock
	if err := r.db.WithContext(ctx).Raw(expiredPrelockQuery, cutoff).Scan(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query expired prelocks")
	}
	return rows, nil
}

// Replay folds a product's audit trail in id order back into counters.
// The result must match the live ledger row; a mismatch means history and
// state have diverged.
func (r *auditRepository) Replay(ctx context.Context, productID uuid.UUID) (*models.StockLedgerEntry, error) {
	var entries []models.StockLogEntry
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("id ASC").
		Find(&entries).
		Error
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no stock log entries to replay")
	}

	state := models.StockLedgerEntry{ProductID: productID}
	for _, entry := range entries {
		switch entry.ChangeType {
		case enums.StockChangeInitialize:
			state.TotalQty += entry.ChangeAmount
			state.AvailableQty = state.TotalQty - state.PrelockQty
		case enums.StockChangePrelock:
			// change_amount is -qty
			state.AvailableQty += entry.ChangeAmount
			state.PrelockQty -= entry.ChangeAmount
		case enums.StockChangeConfirm:
			// change_amount is -qty
			state.PrelockQty += entry.ChangeAmount
			state.TotalQty += entry.ChangeAmount
		case enums.StockChangeRelease:
			// change_amount is +actual
			state.PrelockQty -= entry.ChangeAmount
			state.AvailableQty += entry.ChangeAmount
		case enums.StockChangeAdminAdjust:
			state.TotalQty += entry.ChangeAmount
			state.AvailableQty += entry.ChangeAmount
		}
	}
	return &state, nil
}
