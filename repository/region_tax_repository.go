package repository

import (
	"context"
	"fmt"

	"github.com/sunops/sunops-backend/models"
	"gorm.io/gorm"
)

// RegionTaxRepositoryImpl implements RegionTaxRepository interface
type RegionTaxRepositoryImpl struct {
	*BaseRepository[models.RegionTax, models.RegionTaxFilter]
}

// NewRegionTaxRepository creates a new region tax repository
func NewRegionTaxRepository(db *gorm.DB) RegionTaxRepository {
	return &RegionTaxRepositoryImpl{
		BaseRepository: NewBaseRepository[models.RegionTax, models.RegionTaxFilter](db),
	}
}

// ByRateTableAndCode looks up a region entry case-insensitively
func (r *RegionTaxRepositoryImpl) ByRateTableAndCode(ctx context.Context, rateTableID uint, regionCode string) (*models.RegionTax, error) {
	code := models.NormalizeRegionCode(regionCode)
	rows, err := r.ByFilter(ctx, models.RegionTaxFilter{RateTableID: &rateTableID, RegionCode: &code}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ListByRateTable returns the region entries of one table ordered by region code
func (r *RegionTaxRepositoryImpl) ListByRateTable(ctx context.Context, rateTableID uint) ([]*models.RegionTax, error) {
	return r.ByFilter(ctx, models.RegionTaxFilter{RateTableID: &rateTableID}, "", 0, 0)
}

// ListByRateTables returns the region entries of several tables in one query
func (r *RegionTaxRepositoryImpl) ListByRateTables(ctx context.Context, rateTableIDs []uint) ([]*models.RegionTax, error) {
	if len(rateTableIDs) == 0 {
		return nil, nil
	}
	db := r.getDB(ctx)
	var rows []*models.RegionTax
	err := db.Where("rate_table_id IN ?", rateTableIDs).
		Order("rate_table_id ASC, region_code ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list region taxes: %w", err)
	}
	return rows, nil
}

// DeleteByRateTable removes every region entry owned by a rate table
func (r *RegionTaxRepositoryImpl) DeleteByRateTable(ctx context.Context, rateTableID uint) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	err = db.Where("rate_table_id = ?", rateTableID).Delete(&models.RegionTax{}).Error
	if err != nil {
		err = fmt.Errorf("failed to delete region taxes of rate table %d: %w", rateTableID, err)
	}

	return finishWrite(db, shouldCommit, err)
}

// applyFilter applies filter criteria to a GORM query
func (r *RegionTaxRepositoryImpl) applyFilter(query *gorm.DB, filter models.RegionTaxFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.RateTableID != nil {
		query = query.Where("rate_table_id = ?", *filter.RateTableID)
	}
	if filter.RegionCode != nil {
		query = query.Where("region_code = ?", models.NormalizeRegionCode(*filter.RegionCode))
	}
	return query
}

// ByFilter retrieves region taxes based on filter criteria
func (r *RegionTaxRepositoryImpl) ByFilter(ctx context.Context, filter models.RegionTaxFilter, orderBy string, limit, offset int) ([]*models.RegionTax, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.RegionTax{}), filter)

	if orderBy == "" {
		orderBy = "region_code ASC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []*models.RegionTax
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list region taxes: %w", err)
	}
	return rows, nil
}

// Count returns number of region taxes matching filter
func (r *RegionTaxRepositoryImpl) Count(ctx context.Context, filter models.RegionTaxFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.RegionTax{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count region taxes: %w", err)
	}
	return count, nil
}

// Exists checks if any region tax matches the filter
func (r *RegionTaxRepositoryImpl) Exists(ctx context.Context, filter models.RegionTaxFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
