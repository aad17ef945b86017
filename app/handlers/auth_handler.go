package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/sunops/sunops-backend/app/dto"
	businessflow "github.com/sunops/sunops-backend/business_flow"
)

// AuthHandlerInterface defines the contract for authentication handlers
type AuthHandlerInterface interface {
	Login(c fiber.Ctx) error
	Refresh(c fiber.Ctx) error
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	loginFlow businessflow.LoginFlow
	validator *validator.Validate
}

func (h *AuthHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return errorResponse(c, statusCode, message, errorCode, details)
}

func (h *AuthHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return successResponse(c, statusCode, message, data)
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(loginFlow businessflow.LoginFlow) *AuthHandler {
	return &AuthHandler{
		loginFlow: loginFlow,
		validator: newValidator(),
	}
}

// Login handles user authentication
// @Summary User Login
// @Description Authenticate a tenant user with email and password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body dto.LoginRequest true "Login credentials"
// @Success 200 {object} dto.APIResponse{data=dto.LoginResponse} "Login successful"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Invalid credentials"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, resp := validateRequest(c, h.validator, &req); !ok {
		return resp
	}

	ctx, cancel := createRequestContext(c, "/api/v1/auth/login")
	defer cancel()

	result, err := h.loginFlow.Login(ctx, &req, clientMetadata(c))
	if err != nil {
		// Unknown email and wrong password look the same to the caller
		if businessflow.IsUserNotFound(err) || businessflow.IsIncorrectPassword(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid email or password", "INVALID_CREDENTIALS", nil)
		}
		if businessflow.IsAccountInactive(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Account is inactive", "ACCOUNT_INACTIVE", nil)
		}
		return flowErrorResponse(c, err, "Login", "Login failed", "LOGIN_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Login successful", result)
}

// Refresh exchanges a refresh token for a new token pair
// @Summary Refresh Tokens
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body dto.RefreshTokenRequest true "Refresh token"
// @Success 200 {object} dto.APIResponse{data=dto.LoginResponse} "Tokens refreshed"
// @Failure 401 {object} dto.APIResponse "Invalid refresh token"
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) Refresh(c fiber.Ctx) error {
	var req dto.RefreshTokenRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, resp := validateRequest(c, h.validator, &req); !ok {
		return resp
	}

	ctx, cancel := createRequestContext(c, "/api/v1/auth/refresh")
	defer cancel()

	result, err := h.loginFlow.Refresh(ctx, &req)
	if err != nil {
		if businessflow.IsInvalidRefreshToken(err) || businessflow.IsUserNotFound(err) || businessflow.IsAccountInactive(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid refresh token", "INVALID_REFRESH_TOKEN", nil)
		}
		return flowErrorResponse(c, err, "Token refresh", "Token refresh failed", "REFRESH_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Tokens refreshed", result)
}
