package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/sunops/sunops-backend/app/dto"
	businessflow "github.com/sunops/sunops-backend/business_flow"
)

// PricingHandlerInterface defines the contract for pricing handlers
type PricingHandlerInterface interface {
	CalculatePrice(c fiber.Ctx) error
	GetPricingDefaults(c fiber.Ctx) error
	UpdatePricingDefaults(c fiber.Ctx) error
}

// PricingHandler handles price calculation and tenant pricing defaults
type PricingHandler struct {
	flow      businessflow.PricingFlow
	validator *validator.Validate
}

func (h *PricingHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return errorResponse(c, statusCode, message, errorCode, details)
}

func (h *PricingHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return successResponse(c, statusCode, message, data)
}

// NewPricingHandler creates a new pricing handler
func NewPricingHandler(flow businessflow.PricingFlow) *PricingHandler {
	return &PricingHandler{
		flow:      flow,
		validator: newValidator(),
	}
}

// CalculatePrice computes the itemized price of a solar installation
// @Summary Calculate Price
// @Description Resolves the rate table, band and region tax for the request and returns the price breakdown
// @Tags Financeiro
// @Accept json
// @Produce json
// @Param request body dto.CalculatePriceRequest true "Calculation input"
// @Success 200 {object} dto.APIResponse{data=dto.CalculatePriceResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "No rate table, band or region applies"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/financeiro/calcular-preco [post]
func (h *PricingHandler) CalculatePrice(c fiber.Ctx) error {
	actor, ok, resp := requireActor(c)
	if !ok {
		return resp
	}

	var req dto.CalculatePriceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, resp := validateRequest(c, h.validator, &req); !ok {
		return resp
	}

	ctx, cancel := createRequestContext(c, "/api/v1/financeiro/calcular-preco")
	defer cancel()

	result, err := h.flow.CalculatePrice(ctx, actor.TenantID, &req)
	if err != nil {
		return flowErrorResponse(c, err, "Calculate price", "Price calculation failed", "PRICE_CALCULATION_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Price calculated", result)
}

// GetPricingDefaults returns the tenant's default margin and commission
// @Summary Get Pricing Defaults
// @Tags Financeiro
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.PricingDefaultsDTO}
// @Router /api/v1/financeiro/configuracoes [get]
func (h *PricingHandler) GetPricingDefaults(c fiber.Ctx) error {
	actor, ok, resp := requireActor(c)
	if !ok {
		return resp
	}

	ctx, cancel := createRequestContext(c, "/api/v1/financeiro/configuracoes")
	defer cancel()

	result, err := h.flow.GetPricingDefaults(ctx, actor.TenantID)
	if err != nil {
		return flowErrorResponse(c, err, "Get pricing defaults", "Failed to get pricing defaults", "GET_PRICING_DEFAULTS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Pricing defaults retrieved", result)
}

// UpdatePricingDefaults changes the tenant's default margin and commission
// @Summary Update Pricing Defaults
// @Tags Financeiro
// @Accept json
// @Produce json
// @Param request body dto.UpdatePricingDefaultsRequest true "Fields to change"
// @Success 200 {object} dto.APIResponse{data=dto.PricingDefaultsDTO}
// @Failure 400 {object} dto.APIResponse
// @Router /api/v1/financeiro/configuracoes [put]
func (h *PricingHandler) UpdatePricingDefaults(c fiber.Ctx) error {
	actor, ok, resp := requireActor(c)
	if !ok {
		return resp
	}

	var req dto.UpdatePricingDefaultsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	ctx, cancel := createRequestContext(c, "/api/v1/financeiro/configuracoes")
	defer cancel()

	result, err := h.flow.UpdatePricingDefaults(ctx, actor, &req, clientMetadata(c))
	if err != nil {
		return flowErrorResponse(c, err, "Update pricing defaults", "Failed to update pricing defaults", "UPDATE_PRICING_DEFAULTS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Pricing defaults updated", result)
}
