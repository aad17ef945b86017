package models

import (
	"encoding/json"
	"time"
)

type AuditLog struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	TenantID     *uint           `gorm:"index:idx_audit_tenant_id" json:"tenant_id,omitempty"`
	UserID       *uint           `gorm:"index:idx_audit_user_id" json:"user_id,omitempty"`
	Action       string          `gorm:"size:64;not null;index:idx_audit_action" json:"action"`
	Description  *string         `gorm:"type:text" json:"description,omitempty"`
	IPAddress    *string         `gorm:"size:64" json:"ip_address,omitempty"`
	UserAgent    *string         `gorm:"type:text" json:"user_agent,omitempty"`
	RequestID    *string         `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Metadata     json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	Success      *bool           `gorm:"default:true;index:idx_audit_success" json:"success"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time       `gorm:"index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// Audit action constants
const (
	AuditActionLoginSuccess = "login_success"
	AuditActionLoginFailed  = "login_failed"

	AuditActionRateTableCreated = "rate_table_created"
	AuditActionRateTableUpdated = "rate_table_updated"
	AuditActionRateTableDeleted = "rate_table_deleted"
	AuditActionBandCreated      = "power_band_created"
	AuditActionBandUpdated      = "power_band_updated"
	AuditActionBandDeleted      = "power_band_deleted"
	AuditActionRegionCreated    = "region_tax_created"
	AuditActionRegionUpdated    = "region_tax_updated"
	AuditActionRegionDeleted    = "region_tax_deleted"

	AuditActionPricingDefaultsUpdated = "pricing_defaults_updated"
)

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	ID            *uint
	TenantID      *uint
	UserID        *uint
	Action        *string
	Success       *bool
	RequestID     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (a *AuditLog) IsFailed() bool {
	return a.Success != nil && !*a.Success
}
