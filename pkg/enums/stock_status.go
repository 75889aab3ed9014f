package enums

import "fmt"

// StockStatus is the coarse availability bucket shown on product listings.
type StockStatus string

const (
	StockStatusOutOfStock StockStatus = "out_of_stock"
	StockStatusLow        StockStatus = "low"
	StockStatusSufficient StockStatus = "sufficient"
)

var validStockStatuses = []StockStatus{
	StockStatusOutOfStock,
	StockStatusLow,
	StockStatusSufficient,
}

// String implements fmt.Stringer.
func (s StockStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known StockStatus.
func (s StockStatus) IsValid() bool {
	for _, candidate := range validStockStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseStockStatus converts raw input into a StockStatus.
func ParseStockStatus(value string) (StockStatus, error) {
	for _, candidate := range validStockStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock status %q", value)
}

// StockStatusFor buckets effective stock against the product's warning threshold.
func StockStatusFor(effectiveStock, warningStock int) StockStatus {
	switch {
	case effectiveStock <= 0:
		return StockStatusOutOfStock
	case effectiveStock <= warningStock:
		return StockStatusLow
	default:
		return StockStatusSufficient
	}
}
