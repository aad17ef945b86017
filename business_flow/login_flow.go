package businessflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sunops/sunops-backend/app/dto"
	"github.com/sunops/sunops-backend/app/services"
	"github.com/sunops/sunops-backend/models"
	"github.com/sunops/sunops-backend/repository"
	"github.com/sunops/sunops-backend/utils"
	"golang.org/x/crypto/bcrypt"
)

// LoginFlow authenticates tenant users and issues identity tokens
type LoginFlow interface {
	Login(ctx context.Context, request *dto.LoginRequest, metadata *ClientMetadata) (*dto.LoginResponse, error)
	Refresh(ctx context.Context, request *dto.RefreshTokenRequest) (*dto.LoginResponse, error)
}

// LoginFlowImpl implements the login business flow
type LoginFlowImpl struct {
	userRepo     repository.UserRepository
	auditRepo    repository.AuditLogRepository
	tokenService services.TokenService
}

// NewLoginFlow creates a new login flow instance
func NewLoginFlow(
	userRepo repository.UserRepository,
	auditRepo repository.AuditLogRepository,
	tokenService services.TokenService,
) LoginFlow {
	return &LoginFlowImpl{
		userRepo:     userRepo,
		auditRepo:    auditRepo,
		tokenService: tokenService,
	}
}

// Login authenticates a user with email and password
func (lf *LoginFlowImpl) Login(ctx context.Context, request *dto.LoginRequest, metadata *ClientMetadata) (*dto.LoginResponse, error) {
	if request == nil || strings.TrimSpace(request.Email) == "" || request.Password == "" {
		return nil, NewBusinessError("LOGIN_VALIDATION_FAILED", "Login validation failed", detailf(ErrValidation, "email and password are required"))
	}

	user, err := lf.userRepo.ByEmail(ctx, request.Email)
	if err != nil {
		return nil, NewBusinessError("LOGIN_FAILED", "Login failed", err)
	}
	if user == nil {
		lf.auditLoginFailure(ctx, nil, "user not found", metadata)
		return nil, NewBusinessError("USER_NOT_FOUND", "User not found", ErrUserNotFound)
	}
	if !utils.IsTrue(user.IsActive) {
		lf.auditLoginFailure(ctx, user, "account inactive", metadata)
		return nil, NewBusinessError("ACCOUNT_INACTIVE", "Account is inactive", ErrAccountInactive)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(request.Password)); err != nil {
		lf.auditLoginFailure(ctx, user, "incorrect password", metadata)
		return nil, NewBusinessError("INCORRECT_PASSWORD", "Incorrect password", ErrIncorrectPassword)
	}

	resp, err := lf.issueTokens(user)
	if err != nil {
		return nil, NewBusinessError("TOKEN_GENERATION_FAILED", "Failed to generate tokens", err)
	}

	_ = createAuditLog(ctx, lf.auditRepo, Actor{TenantID: user.TenantID, UserID: user.ID}, models.AuditActionLoginSuccess,
		fmt.Sprintf("User %s logged in", user.Email), true, nil, metadata, nil)

	return resp, nil
}

// Refresh exchanges a refresh token for a new pair; the user must still exist and be active
func (lf *LoginFlowImpl) Refresh(ctx context.Context, request *dto.RefreshTokenRequest) (*dto.LoginResponse, error) {
	if request == nil || request.RefreshToken == "" {
		return nil, NewBusinessError("INVALID_REFRESH_TOKEN", "Invalid refresh token", ErrInvalidRefreshToken)
	}

	claims, err := lf.tokenService.ValidateToken(request.RefreshToken)
	if err != nil || claims.TokenType != services.TokenTypeRefresh {
		return nil, NewBusinessError("INVALID_REFRESH_TOKEN", "Invalid refresh token", errors.Join(ErrInvalidRefreshToken, err))
	}

	user, err := lf.userRepo.ByID(ctx, claims.UserID)
	if err != nil {
		return nil, NewBusinessError("REFRESH_FAILED", "Token refresh failed", err)
	}
	if user == nil || user.TenantID != claims.TenantID {
		return nil, NewBusinessError("USER_NOT_FOUND", "User not found", ErrUserNotFound)
	}
	if !utils.IsTrue(user.IsActive) {
		return nil, NewBusinessError("ACCOUNT_INACTIVE", "Account is inactive", ErrAccountInactive)
	}

	resp, err := lf.issueTokens(user)
	if err != nil {
		return nil, NewBusinessError("TOKEN_GENERATION_FAILED", "Failed to generate tokens", err)
	}
	return resp, nil
}

func (lf *LoginFlowImpl) issueTokens(user *models.User) (*dto.LoginResponse, error) {
	accessToken, refreshToken, err := lf.tokenService.GenerateTokens(services.Identity{
		UserID:   user.ID,
		TenantID: user.TenantID,
		Role:     user.Role,
	})
	if err != nil {
		return nil, err
	}

	ttl := lf.tokenService.AccessTokenTTL()
	return &dto.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(ttl.Seconds()),
		ExpiresAt:    utils.UTCNow().Add(ttl),
		User: dto.UserInfo{
			ID:       user.ID,
			TenantID: user.TenantID,
			Name:     user.Name,
			Email:    user.Email,
			Role:     user.Role,
		},
	}, nil
}

func (lf *LoginFlowImpl) auditLoginFailure(ctx context.Context, user *models.User, reason string, metadata *ClientMetadata) {
	actor := Actor{}
	if user != nil {
		actor = Actor{TenantID: user.TenantID, UserID: user.ID}
	}
	errMsg := reason
	_ = createAuditLog(ctx, lf.auditRepo, actor, models.AuditActionLoginFailed, "Login failed: "+reason, false, &errMsg, metadata, nil)
}
