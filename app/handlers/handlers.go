// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/sunops/sunops-backend/app/dto"
	"github.com/sunops/sunops-backend/app/middleware"
	businessflow "github.com/sunops/sunops-backend/business_flow"
	"github.com/sunops/sunops-backend/utils"
)

const requestTimeout = 30 * time.Second

// newValidator reports field errors under their JSON names
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

func errorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func successResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// validateRequest runs struct validation and writes the 400 response on failure.
// It returns true when the request is valid.
func validateRequest(c fiber.Ctx, v *validator.Validate, req any) (bool, error) {
	err := v.Struct(req)
	if err == nil {
		return true, nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return false, errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", err.Error())
	}

	validationErrors := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		validationErrors = append(validationErrors, getValidationErrorMessage(fe))
	}
	return false, errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
}

// flowErrorCodes maps leaf sentinels to response codes, most specific first
var flowErrorCodes = []struct {
	match func(error) bool
	code  string
}{
	{businessflow.IsVigencyInvalid, "VIGENCY_INVALID"},
	{businessflow.IsBandOverlap, "BAND_OVERLAP"},
	{businessflow.IsBandInvalid, "BAND_INVALID"},
	{businessflow.IsRegionInvalid, "REGION_INVALID"},
	{businessflow.IsInvalidDate, "INVALID_DATE"},
	{businessflow.IsPowerNotPositive, "POWER_NOT_POSITIVE"},
	{businessflow.IsOverrideOutOfRange, "OVERRIDE_OUT_OF_RANGE"},
	{businessflow.IsAdditionalCostsNegative, "ADDITIONAL_COSTS_NEGATIVE"},
	{businessflow.IsRateTableUpdateRequired, "UPDATE_FIELDS_REQUIRED"},
	{businessflow.IsRateTableNotFound, "RATE_TABLE_NOT_FOUND"},
	{businessflow.IsNoActiveRateTable, "NO_ACTIVE_RATE_TABLE"},
	{businessflow.IsBandNotFound, "BAND_NOT_FOUND"},
	{businessflow.IsNoBandForPower, "NO_BAND_FOR_POWER"},
	{businessflow.IsRegionNotFound, "REGION_NOT_FOUND"},
	{businessflow.IsUserNotFound, "USER_NOT_FOUND"},
	{businessflow.IsRegionAlreadyExists, "REGION_ALREADY_EXISTS"},
}

// flowErrorResponse maps a business flow error onto the HTTP envelope by error category
func flowErrorResponse(c fiber.Ctx, err error, operation, fallbackMessage, fallbackCode string) error {
	message, details := fallbackMessage, err.Error()
	var be *businessflow.BusinessError
	if errors.As(err, &be) {
		message = be.Message
		if be.Err != nil {
			details = be.Err.Error()
		}
	}

	code := "VALIDATION_ERROR"
	for _, entry := range flowErrorCodes {
		if entry.match(err) {
			code = entry.code
			break
		}
	}

	switch {
	case businessflow.IsValidationError(err):
		return errorResponse(c, fiber.StatusBadRequest, message, code, details)
	case businessflow.IsNotFoundError(err):
		return errorResponse(c, fiber.StatusNotFound, message, code, details)
	case businessflow.IsConflictError(err):
		return errorResponse(c, fiber.StatusConflict, message, code, details)
	}

	log.Println(operation+" failed:", err)
	return errorResponse(c, fiber.StatusInternalServerError, fallbackMessage, fallbackCode, nil)
}

// createRequestContext derives the flow context with request-scoped values for audit and observability
func createRequestContext(c fiber.Ctx, endpoint string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)

	requestID, _ := c.Locals(middleware.LocalRequestID).(string)
	if requestID == "" {
		requestID = c.Get("X-Request-ID")
	}
	ctx = context.WithValue(ctx, utils.RequestIDKey, requestID)
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, requestTimeout)

	if identity, ok := middleware.GetIdentityFromContext(c); ok {
		ctx = context.WithValue(ctx, utils.TenantIDKey, identity.TenantID)
		ctx = context.WithValue(ctx, utils.UserIDKey, identity.UserID)
	}

	return ctx, cancel
}

// clientMetadata collects caller information for audit rows
func clientMetadata(c fiber.Ctx) *businessflow.ClientMetadata {
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	if requestID, _ := c.Locals(middleware.LocalRequestID).(string); requestID != "" {
		metadata.SetRequestID(requestID)
	}
	return metadata
}

// requireActor returns the authenticated tenant actor or writes a 401
func requireActor(c fiber.Ctx) (businessflow.Actor, bool, error) {
	identity, ok := middleware.GetIdentityFromContext(c)
	if !ok {
		return businessflow.Actor{}, false, errorResponse(c, fiber.StatusUnauthorized, "Authentication required", "TENANT_CONTEXT_MISSING", nil)
	}
	return businessflow.Actor{TenantID: identity.TenantID, UserID: identity.UserID}, true, nil
}

// parseIDParam reads a positive integer path parameter
func parseIDParam(c fiber.Ctx, name string) (uint, bool, error) {
	raw := c.Params(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false, errorResponse(c, fiber.StatusBadRequest, "Invalid "+name, "INVALID_ID", fmt.Sprintf("%s must be a positive integer, got %q", name, raw))
	}
	return uint(id), true, nil
}

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "email":
		return "Invalid email format"
	case "min":
		return err.Field() + " must be at least " + err.Param() + " characters"
	case "max":
		return err.Field() + " must be at most " + err.Param() + " characters"
	case "len":
		return err.Field() + " must be exactly " + err.Param() + " characters"
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "datetime":
		return err.Field() + " must be a date in the format YYYY-MM-DD"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", err.Field(), err.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}
