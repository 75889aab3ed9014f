package enums

import "fmt"

// StockChangeType classifies every stock ledger mutation recorded in the audit log.
type StockChangeType string

const (
	StockChangePrelock     StockChangeType = "prelock"
	StockChangeConfirm     StockChangeType = "confirm"
	StockChangeRelease     StockChangeType = "release"
	StockChangeAdminAdjust StockChangeType = "admin_adjust"
	StockChangeInitialize  StockChangeType = "initialize"
)

var validStockChangeTypes = []StockChangeType{
	StockChangePrelock,
	StockChangeConfirm,
	StockChangeRelease,
	StockChangeAdminAdjust,
	StockChangeInitialize,
}

// String implements fmt.Stringer.
func (s StockChangeType) String() string {
	return string(s)
}

// IsValid reports whether the value is a known StockChangeType.
func (s StockChangeType) IsValid() bool {
	for _, candidate := range validStockChangeTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseStockChangeType converts raw input into a StockChangeType.
func ParseStockChangeType(value string) (StockChangeType, error) {
	for _, candidate := range validStockChangeTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock change type %q", value)
}
