package repository

import (
	"context"
	"fmt"

	"github.com/sunops/sunops-backend/models"
	"gorm.io/gorm"
)

// PricingDefaultsRepositoryImpl implements PricingDefaultsRepository interface
type PricingDefaultsRepositoryImpl struct {
	*BaseRepository[models.PricingDefaults, models.PricingDefaultsFilter]
}

// NewPricingDefaultsRepository creates a new pricing defaults repository
func NewPricingDefaultsRepository(db *gorm.DB) PricingDefaultsRepository {
	return &PricingDefaultsRepositoryImpl{
		BaseRepository: NewBaseRepository[models.PricingDefaults, models.PricingDefaultsFilter](db),
	}
}

// ByTenantID retrieves the defaults row of a tenant, nil when none was stored yet
func (r *PricingDefaultsRepositoryImpl) ByTenantID(ctx context.Context, tenantID uint) (*models.PricingDefaults, error) {
	rows, err := r.ByFilter(ctx, models.PricingDefaultsFilter{TenantID: &tenantID}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// applyFilter applies filter criteria to a GORM query
func (r *PricingDefaultsRepositoryImpl) applyFilter(query *gorm.DB, filter models.PricingDefaultsFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.TenantID != nil {
		query = query.Where("tenant_id = ?", *filter.TenantID)
	}
	return query
}

// ByFilter retrieves pricing defaults based on filter criteria
func (r *PricingDefaultsRepositoryImpl) ByFilter(ctx context.Context, filter models.PricingDefaultsFilter, orderBy string, limit, offset int) ([]*models.PricingDefaults, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.PricingDefaults{}), filter)

	if orderBy == "" {
		orderBy = "id DESC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []*models.PricingDefaults
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list pricing defaults: %w", err)
	}
	return rows, nil
}

// Count returns number of pricing defaults rows matching filter
func (r *PricingDefaultsRepositoryImpl) Count(ctx context.Context, filter models.PricingDefaultsFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.PricingDefaults{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count pricing defaults: %w", err)
	}
	return count, nil
}

// Exists checks if any pricing defaults row matches the filter
func (r *PricingDefaultsRepositoryImpl) Exists(ctx context.Context, filter models.PricingDefaultsFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
