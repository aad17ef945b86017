// Package models contains domain entities and business models for the pricing engine
package models

import (
	"time"
)

// RateTable is a named, time-bounded pricing policy ("premissa") owned by one tenant.
// Bands and Regions are loaded explicitly by their repositories; they are never
// persisted through the parent.
type RateTable struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	TenantID     uint      `gorm:"not null;index:idx_rate_tables_tenant_id" json:"tenant_id"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	Description  *string   `gorm:"type:text" json:"description,omitempty"`
	VigencyStart time.Time `gorm:"type:date;not null;index:idx_rate_tables_vigency" json:"vigency_start"`
	VigencyEnd   time.Time `gorm:"type:date;not null;index:idx_rate_tables_vigency" json:"vigency_end"`
	Active       bool      `gorm:"not null;index:idx_rate_tables_active" json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Bands   []PowerBand `gorm:"-" json:"bands,omitempty"`
	Regions []RegionTax `gorm:"-" json:"regions,omitempty"`
}

func (RateTable) TableName() string {
	return "rate_tables"
}

// RateTableFilter represents filter criteria for rate table queries
type RateTableFilter struct {
	ID       *uint
	TenantID *uint
	Active   *bool
	// AsOf keeps tables whose vigency window contains the date
	AsOf *time.Time
}
