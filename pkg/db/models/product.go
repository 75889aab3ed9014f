package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is the catalog identity a stock ledger row hangs off. The catalog
// surface (naming, imagery, pricing display) is managed elsewhere; the stock
// core only needs the id and the low-stock warning threshold.
type Product struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name         string    `gorm:"column:name;not null"`
	SKU          string    `gorm:"column:sku;uniqueIndex"`
	PriceCents   int       `gorm:"column:price_cents;not null;default:0"`
	WarningStock int       `gorm:"column:warning_stock;not null;default:0"`
	IsActive     bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
