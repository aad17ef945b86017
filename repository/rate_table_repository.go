package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sunops/sunops-backend/models"
	"github.com/sunops/sunops-backend/utils"
	"gorm.io/gorm"
)

// RateTableRepositoryImpl implements RateTableRepository interface
type RateTableRepositoryImpl struct {
	*BaseRepository[models.RateTable, models.RateTableFilter]
}

// NewRateTableRepository creates a new rate table repository
func NewRateTableRepository(db *gorm.DB) RateTableRepository {
	return &RateTableRepositoryImpl{
		BaseRepository: NewBaseRepository[models.RateTable, models.RateTableFilter](db),
	}
}

// ByTenantAndID retrieves a rate table scoped to its owning tenant
func (r *RateTableRepositoryImpl) ByTenantAndID(ctx context.Context, tenantID, id uint) (*models.RateTable, error) {
	return r.findScoped(r.getDB(ctx), tenantID, id)
}

// LockByTenantAndID retrieves a tenant-scoped rate table with SELECT ... FOR UPDATE.
// Writers of bands and regions take this lock so sibling validation runs serialized per table.
func (r *RateTableRepositoryImpl) LockByTenantAndID(ctx context.Context, tenantID, id uint) (*models.RateTable, error) {
	return r.findScoped(forUpdate(r.getDB(ctx)), tenantID, id)
}

func (r *RateTableRepositoryImpl) findScoped(db *gorm.DB, tenantID, id uint) (*models.RateTable, error) {
	var table models.RateTable
	err := db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&table).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find rate table %d: %w", id, err)
	}
	return &table, nil
}

// ActiveForDate lists active rate tables whose vigency window contains date.
// Ordering is vigency_end DESC with id DESC as a stable tie-break.
func (r *RateTableRepositoryImpl) ActiveForDate(ctx context.Context, tenantID uint, date time.Time) ([]*models.RateTable, error) {
	filter := models.RateTableFilter{
		TenantID: &tenantID,
		Active:   utils.ToPtr(true),
		AsOf:     &date,
	}
	return r.ByFilter(ctx, filter, "vigency_end DESC, id DESC", 0, 0)
}

// applyFilter applies filter criteria to a GORM query
func (r *RateTableRepositoryImpl) applyFilter(query *gorm.DB, filter models.RateTableFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.TenantID != nil {
		query = query.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.Active != nil {
		query = query.Where("active = ?", *filter.Active)
	}
	if filter.AsOf != nil {
		query = query.Where("vigency_start <= ? AND vigency_end >= ?", *filter.AsOf, *filter.AsOf)
	}
	return query
}

// ByFilter retrieves rate tables based on filter criteria
func (r *RateTableRepositoryImpl) ByFilter(ctx context.Context, filter models.RateTableFilter, orderBy string, limit, offset int) ([]*models.RateTable, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.RateTable{}), filter)

	if orderBy == "" {
		orderBy = "vigency_end DESC, id DESC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []*models.RateTable
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list rate tables: %w", err)
	}
	return rows, nil
}

// Count returns number of rate tables matching filter
func (r *RateTableRepositoryImpl) Count(ctx context.Context, filter models.RateTableFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.RateTable{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count rate tables: %w", err)
	}
	return count, nil
}

// Exists checks if any rate table matches the filter
func (r *RateTableRepositoryImpl) Exists(ctx context.Context, filter models.RateTableFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
