package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RateScale is the number of decimal places stored for tax, margin and commission fractions
const RateScale = 4

// RegionTax maps a region code to the tax fraction applied under one rate table.
// RegionCode is always stored upper-case so the unique index is case-insensitive.
type RegionTax struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	RateTableID uint            `gorm:"not null;uniqueIndex:idx_region_taxes_table_code" json:"rate_table_id"`
	RegionCode  string          `gorm:"size:10;not null;uniqueIndex:idx_region_taxes_table_code" json:"region_code"`
	TaxRate     decimal.Decimal `gorm:"type:numeric(6,4);not null" json:"tax_rate"`
	Notes       *string         `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (RegionTax) TableName() string {
	return "region_taxes"
}

// NormalizeRegionCode trims and upper-cases a region code for storage and lookup
func NormalizeRegionCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// RegionTaxFilter represents filter criteria for region tax queries
type RegionTaxFilter struct {
	ID          *uint
	RateTableID *uint
	RegionCode  *string
}
