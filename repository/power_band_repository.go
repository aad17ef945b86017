package repository

import (
	"context"
	"fmt"

	"github.com/sunops/sunops-backend/models"
	"gorm.io/gorm"
)

// PowerBandRepositoryImpl implements PowerBandRepository interface
type PowerBandRepositoryImpl struct {
	*BaseRepository[models.PowerBand, models.PowerBandFilter]
}

// NewPowerBandRepository creates a new power band repository
func NewPowerBandRepository(db *gorm.DB) PowerBandRepository {
	return &PowerBandRepositoryImpl{
		BaseRepository: NewBaseRepository[models.PowerBand, models.PowerBandFilter](db),
	}
}

// ListByRateTable returns the bands of one table ordered by power_min then id
func (r *PowerBandRepositoryImpl) ListByRateTable(ctx context.Context, rateTableID uint) ([]*models.PowerBand, error) {
	return r.ByFilter(ctx, models.PowerBandFilter{RateTableID: &rateTableID}, "", 0, 0)
}

// ListByRateTables returns the bands of several tables in one query
func (r *PowerBandRepositoryImpl) ListByRateTables(ctx context.Context, rateTableIDs []uint) ([]*models.PowerBand, error) {
	if len(rateTableIDs) == 0 {
		return nil, nil
	}
	db := r.getDB(ctx)
	var rows []*models.PowerBand
	err := db.Where("rate_table_id IN ?", rateTableIDs).
		Order("rate_table_id ASC, power_min ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list power bands: %w", err)
	}
	return rows, nil
}

// DeleteByRateTable removes every band owned by a rate table
func (r *PowerBandRepositoryImpl) DeleteByRateTable(ctx context.Context, rateTableID uint) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	err = db.Where("rate_table_id = ?", rateTableID).Delete(&models.PowerBand{}).Error
	if err != nil {
		err = fmt.Errorf("failed to delete power bands of rate table %d: %w", rateTableID, err)
	}

	return finishWrite(db, shouldCommit, err)
}

// applyFilter applies filter criteria to a GORM query
func (r *PowerBandRepositoryImpl) applyFilter(query *gorm.DB, filter models.PowerBandFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.RateTableID != nil {
		query = query.Where("rate_table_id = ?", *filter.RateTableID)
	}
	return query
}

// ByFilter retrieves power bands based on filter criteria
func (r *PowerBandRepositoryImpl) ByFilter(ctx context.Context, filter models.PowerBandFilter, orderBy string, limit, offset int) ([]*models.PowerBand, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.PowerBand{}), filter)

	if orderBy == "" {
		orderBy = "power_min ASC, id ASC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []*models.PowerBand
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list power bands: %w", err)
	}
	return rows, nil
}

// Count returns number of power bands matching filter
func (r *PowerBandRepositoryImpl) Count(ctx context.Context, filter models.PowerBandFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.PowerBand{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count power bands: %w", err)
	}
	return count, nil
}

// Exists checks if any power band matches the filter
func (r *PowerBandRepositoryImpl) Exists(ctx context.Context, filter models.PowerBandFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
