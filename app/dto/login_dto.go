// Package dto contains Data Transfer Objects for API request and response structures
package dto

import (
	"time"
)

// LoginRequest represents the request payload for user login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255" example:"gestor@example.com"`
	Password string `json:"password" validate:"required,min=8,max=100" example:"SecurePass123!"`
}

// RefreshTokenRequest exchanges a refresh token for a new token pair
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
}

// LoginResponse represents the successful login response data
type LoginResponse struct {
	AccessToken  string    `json:"access_token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	RefreshToken string    `json:"refresh_token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	TokenType    string    `json:"token_type" example:"Bearer"`
	ExpiresIn    int       `json:"expires_in" example:"3600"`
	ExpiresAt    time.Time `json:"expires_at" example:"2025-01-15T16:30:00Z"`
	User         UserInfo  `json:"user"`
}

// UserInfo represents user information returned in login response
type UserInfo struct {
	ID       uint   `json:"id" example:"12"`
	TenantID uint   `json:"tenant_id" example:"3"`
	Name     string `json:"name" example:"Maria Souza"`
	Email    string `json:"email" example:"gestor@example.com"`
	Role     string `json:"role" example:"gestor"`
}
