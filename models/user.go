package models

import (
	"time"
)

// User roles
const (
	UserRoleManager = "gestor"
	UserRoleSeller  = "vendedor"
	UserRoleSupport = "suporte"
)

// User is the tenant identity used to authenticate API callers
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	TenantID     uint      `gorm:"not null;index:idx_users_tenant_id" json:"tenant_id"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	Email        string    `gorm:"size:255;not null;uniqueIndex:idx_users_email" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Role         string    `gorm:"size:20;not null;default:vendedor" json:"role"`
	IsActive     *bool     `gorm:"default:true" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// UserFilter represents filter criteria for user queries
type UserFilter struct {
	ID       *uint
	TenantID *uint
	Email    *string
	Role     *string
	IsActive *bool
}
