package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/sunops/sunops-backend/models"
	"gorm.io/gorm"
)

// UserRepositoryImpl implements UserRepository interface
type UserRepositoryImpl struct {
	*BaseRepository[models.User, models.UserFilter]
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &UserRepositoryImpl{
		BaseRepository: NewBaseRepository[models.User, models.UserFilter](db),
	}
}

// ByEmail retrieves a user by email address (case-insensitive)
func (r *UserRepositoryImpl) ByEmail(ctx context.Context, email string) (*models.User, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	users, err := r.ByFilter(ctx, models.UserFilter{Email: &normalized}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}
	return users[0], nil
}

// applyFilter applies filter criteria to a GORM query
func (r *UserRepositoryImpl) applyFilter(query *gorm.DB, filter models.UserFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.TenantID != nil {
		query = query.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.Email != nil {
		query = query.Where("email = ?", *filter.Email)
	}
	if filter.Role != nil {
		query = query.Where("role = ?", *filter.Role)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	return query
}

// ByFilter retrieves users based on filter criteria
func (r *UserRepositoryImpl) ByFilter(ctx context.Context, filter models.UserFilter, orderBy string, limit, offset int) ([]*models.User, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.User{}), filter)

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

	var users []*models.User
	if err := query.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to find users by filter: %w", err)
	}
	return users, nil
}

// Count returns number of users matching filter
func (r *UserRepositoryImpl) Count(ctx context.Context, filter models.UserFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.User{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// Exists checks if any user matches the filter
func (r *UserRepositoryImpl) Exists(ctx context.Context, filter models.UserFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
