package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Column limits of power_bands; values beyond them would be rounded or rejected by PostgreSQL
const (
	PowerPrecision     = 12
	PowerScale         = 3
	UnitPricePrecision = 14
	UnitPriceScale     = 4
)

// PowerBand maps a power interval in kW to a unit price per watt-peak
type PowerBand struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	RateTableID uint            `gorm:"not null;index:idx_power_bands_rate_table_id" json:"rate_table_id"`
	Label       string          `gorm:"size:100;not null" json:"label"`
	PowerMin    decimal.Decimal `gorm:"type:numeric(12,3);not null" json:"power_min"`
	PowerMax    decimal.Decimal `gorm:"type:numeric(12,3);not null" json:"power_max"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(14,4);not null" json:"unit_price"`
	SortOrder   int             `gorm:"not null" json:"sort_order"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (PowerBand) TableName() string {
	return "power_bands"
}

// Contains reports whether powerKW lies in the inclusive [PowerMin, PowerMax] interval
func (b *PowerBand) Contains(powerKW decimal.Decimal) bool {
	return b.PowerMin.LessThanOrEqual(powerKW) && b.PowerMax.GreaterThanOrEqual(powerKW)
}

// Range renders the band interval for error messages
func (b *PowerBand) Range() string {
	return fmt.Sprintf("[%s, %s]", b.PowerMin.String(), b.PowerMax.String())
}

// PowerBandFilter represents filter criteria for power band queries
type PowerBandFilter struct {
	ID          *uint
	RateTableID *uint
}
