package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fallback rates used when a tenant has no stored defaults yet
var (
	DefaultMarginRate     = decimal.RequireFromString("0.20")
	DefaultCommissionRate = decimal.RequireFromString("0.05")
)

// PricingDefaults holds the per-tenant margin and commission fractions
type PricingDefaults struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	TenantID       uint            `gorm:"not null;uniqueIndex:idx_pricing_defaults_tenant_id" json:"tenant_id"`
	MarginRate     decimal.Decimal `gorm:"type:numeric(6,4);not null" json:"margin_rate"`
	CommissionRate decimal.Decimal `gorm:"type:numeric(6,4);not null" json:"commission_rate"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (PricingDefaults) TableName() string {
	return "pricing_defaults"
}

// PricingDefaultsFilter represents filter criteria for pricing defaults queries
type PricingDefaultsFilter struct {
	ID       *uint
	TenantID *uint
}
