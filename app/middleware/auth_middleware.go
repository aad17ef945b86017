// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"errors"
	"slices"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/sunops/sunops-backend/app/dto"
	"github.com/sunops/sunops-backend/app/services"
)

// Locals keys set by Authenticate
const (
	LocalUserID      = "user_id"
	LocalTenantID    = "tenant_id"
	LocalRole        = "role"
	LocalTokenID     = "token_id"
	LocalTokenClaims = "token_claims"
	LocalRequestID   = "request_id"
)

// AuthMiddleware handles JWT token validation for protected endpoints
type AuthMiddleware struct {
	tokenService services.TokenService
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokenService services.TokenService) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
	}
}

func unauthorized(c fiber.Ctx, code, message string) error {
	authRejectionsTotal.WithLabelValues(code).Inc()
	return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error:   dto.ErrorDetail{Code: code},
	})
}

// Authenticate validates the bearer access token and binds the caller's tenant identity to the request
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		// Get the Authorization header
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return unauthorized(c, "MISSING_AUTHORIZATION_HEADER", "Authorization header is required")
		}

		// Check if the header starts with "Bearer "
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return unauthorized(c, "INVALID_AUTHORIZATION_FORMAT", "Invalid authorization header format. Expected 'Bearer <token>'")
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			return unauthorized(c, "MISSING_ACCESS_TOKEN", "Access token is required")
		}

		claims, err := m.tokenService.ValidateToken(token)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrTokenExpired):
				return unauthorized(c, "TOKEN_EXPIRED", "Access token has expired")
			case errors.Is(err, services.ErrTokenInvalid):
				return unauthorized(c, "TOKEN_INVALID", "Invalid access token")
			default:
				return unauthorized(c, "TOKEN_VALIDATION_FAILED", "Token validation failed")
			}
		}

		// Refresh tokens only work against the refresh endpoint
		if claims.TokenType != services.TokenTypeAccess {
			return unauthorized(c, "TOKEN_INVALID", "Invalid access token")
		}
		if claims.TenantID == 0 {
			return unauthorized(c, "TENANT_CONTEXT_MISSING", "Token carries no tenant")
		}

		c.Locals(LocalUserID, claims.UserID)
		c.Locals(LocalTenantID, claims.TenantID)
		c.Locals(LocalRole, claims.Role)
		c.Locals(LocalTokenID, claims.TokenID)
		c.Locals(LocalTokenClaims, claims)

		// Store RequestID for audit logging
		if requestID := requestid.FromContext(c); requestID != "" {
			c.Locals(LocalRequestID, requestID)
		}

		return c.Next()
	}
}

// RequireRole rejects authenticated callers whose role is not listed
func (m *AuthMiddleware) RequireRole(roles ...string) fiber.Handler {
	return func(c fiber.Ctx) error {
		identity, ok := GetIdentityFromContext(c)
		if !ok {
			return unauthorized(c, "AUTHENTICATION_REQUIRED", "Authentication required")
		}
		if !slices.Contains(roles, identity.Role) {
			authRejectionsTotal.WithLabelValues("FORBIDDEN_ROLE").Inc()
			return c.Status(fiber.StatusForbidden).JSON(dto.APIResponse{
				Success: false,
				Message: "Insufficient permissions for this operation",
				Error:   dto.ErrorDetail{Code: "FORBIDDEN_ROLE"},
			})
		}
		return c.Next()
	}
}

// GetIdentityFromContext returns the identity stored by Authenticate
func GetIdentityFromContext(c fiber.Ctx) (services.Identity, bool) {
	userID, ok := c.Locals(LocalUserID).(uint)
	if !ok {
		return services.Identity{}, false
	}
	tenantID, ok := c.Locals(LocalTenantID).(uint)
	if !ok || tenantID == 0 {
		return services.Identity{}, false
	}
	role, _ := c.Locals(LocalRole).(string)
	return services.Identity{UserID: userID, TenantID: tenantID, Role: role}, true
}

// GetTokenClaimsFromContext extracts token claims from the request context
func GetTokenClaimsFromContext(c fiber.Ctx) (*services.TokenClaims, bool) {
	claims, ok := c.Locals(LocalTokenClaims).(*services.TokenClaims)
	return claims, ok
}
