// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/sunops/sunops-backend/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Update(ctx context.Context, entity *T) error
	DeleteByID(ctx context.Context, id uint) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// RateTableRepository defines operations for rate tables
type RateTableRepository interface {
	Repository[models.RateTable, models.RateTableFilter]
	// ByTenantAndID returns nil when the table does not exist or belongs to another tenant
	ByTenantAndID(ctx context.Context, tenantID, id uint) (*models.RateTable, error)
	// LockByTenantAndID is ByTenantAndID with a row lock held until the surrounding transaction ends
	LockByTenantAndID(ctx context.Context, tenantID, id uint) (*models.RateTable, error)
	// ActiveForDate lists active tables covering date, most recently expiring first
	ActiveForDate(ctx context.Context, tenantID uint, date time.Time) ([]*models.RateTable, error)
}

// PowerBandRepository defines operations for power bands
type PowerBandRepository interface {
	Repository[models.PowerBand, models.PowerBandFilter]
	ListByRateTable(ctx context.Context, rateTableID uint) ([]*models.PowerBand, error)
	ListByRateTables(ctx context.Context, rateTableIDs []uint) ([]*models.PowerBand, error)
	DeleteByRateTable(ctx context.Context, rateTableID uint) error
}

// RegionTaxRepository defines operations for region taxes
type RegionTaxRepository interface {
	Repository[models.RegionTax, models.RegionTaxFilter]
	ByRateTableAndCode(ctx context.Context, rateTableID uint, regionCode string) (*models.RegionTax, error)
	ListByRateTable(ctx context.Context, rateTableID uint) ([]*models.RegionTax, error)
	ListByRateTables(ctx context.Context, rateTableIDs []uint) ([]*models.RegionTax, error)
	DeleteByRateTable(ctx context.Context, rateTableID uint) error
}

// PricingDefaultsRepository defines operations for per-tenant pricing defaults
type PricingDefaultsRepository interface {
	Repository[models.PricingDefaults, models.PricingDefaultsFilter]
	ByTenantID(ctx context.Context, tenantID uint) (*models.PricingDefaults, error)
}

// UserRepository defines operations for users
type UserRepository interface {
	Repository[models.User, models.UserFilter]
	ByEmail(ctx context.Context, email string) (*models.User, error)
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	ListByTenant(ctx context.Context, tenantID uint, limit, offset int) ([]*models.AuditLog, error)
	ListByAction(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error)
	ListFailedActions(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)
}
