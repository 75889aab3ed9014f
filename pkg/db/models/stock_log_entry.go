package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ysjshop/backend/pkg/enums"
)

// StockLogEntry is one immutable audit record per ledger mutation. Rows are
// append-only; corrections are new admin_adjust entries, never edits.
// The autoincrement id totally orders entries per product in the order the
// mutations were actually applied.
type StockLogEntry struct {
	ID              int64                 `gorm:"column:id;primaryKey;autoIncrement"`
	ProductID       uuid.UUID             `gorm:"column:product_id;type:uuid;not null;index:idx_stock_logs_product"`
	ChangeType      enums.StockChangeType `gorm:"column:change_type;type:text;not null"`
	ChangeAmount    int                   `gorm:"column:change_amount;not null"`
	BeforeTotal     int                   `gorm:"column:before_total;not null"`
	BeforeAvailable int                   `gorm:"column:before_available;not null"`
	BeforePrelock   int                   `gorm:"column:before_prelock;not null"`
	OrderID         *string               `gorm:"column:order_id;index:idx_stock_logs_order"`
	AdminID         *string               `gorm:"column:admin_id"`
	Remark          string                `gorm:"column:remark"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
}

// TableName matches the goose migration.
func (StockLogEntry) TableName() string {
	return "stock_logs"
}
