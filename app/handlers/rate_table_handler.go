package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/sunops/sunops-backend/app/dto"
	businessflow "github.com/sunops/sunops-backend/business_flow"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// RateTableHandlerInterface defines the contract for rate table ("premissa") handlers
type RateTableHandlerInterface interface {
	ListRateTables(c fiber.Ctx) error
	ExportRateTables(c fiber.Ctx) error
	GetRateTable(c fiber.Ctx) error
	CreateRateTable(c fiber.Ctx) error
	UpdateRateTable(c fiber.Ctx) error
	DeleteRateTable(c fiber.Ctx) error
	AddBand(c fiber.Ctx) error
	UpdateBand(c fiber.Ctx) error
	DeleteBand(c fiber.Ctx) error
	AddRegion(c fiber.Ctx) error
	UpdateRegion(c fiber.Ctx) error
	DeleteRegion(c fiber.Ctx) error
}

// RateTableHandler handles rate table HTTP requests
type RateTableHandler struct {
	flow      businessflow.RateTableFlow
	validator *validator.Validate
}

func (h *RateTableHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return errorResponse(c, statusCode, message, errorCode, details)
}

func (h *RateTableHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return successResponse(c, statusCode, message, data)
}

// NewRateTableHandler creates a new rate table handler
func NewRateTableHandler(flow businessflow.RateTableFlow) *RateTableHandler {
	return &RateTableHandler{
		flow:      flow,
		validator: newValidator(),
	}
}

func (h *RateTableHandler) bindListQuery(c fiber.Ctx) (*dto.ListRateTablesRequest, bool, error) {
	var req dto.ListRateTablesRequest
	if err := c.Bind().Query(&req); err != nil {
		return nil, false, h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if ok, resp := validateRequest(c, h.validator, &req); !ok {
		return nil, false, resp
	}
	return &req, true, nil
}

// ListRateTables lists the caller tenant's rate tables
// @Summary List Rate Tables
// @Tags Financeiro
// @Produce json
// @Param ativa query bool false "Only active tables"
// @Param data query string false "Only tables in vigency on this date (YYYY-MM-DD)"
// @Success 200 {object} dto.APIResponse{data=dto.ListRateTablesResponse}
// @Failure 400 {object} dto.APIResponse
// @Router /api/v1/financeiro/premissas [get]
func (h *RateTableHandler) ListRateTables(c fiber.Ctx) error {
	actor, ok, resp := requireActor(c)
	if !ok {
		return resp
	}
	req, ok, resp := h.bindListQuery(c)
	if !ok {
		return resp
	}

	ctx, cancel := createRequestContext(c, "/api/v1/financeiro/premissas")
	defer cancel()

	result, err := h.flow.ListRateTables(ctx, actor.TenantID, req)
	if err != nil {
		return flowErrorResponse(c, err, "List rate tables", "Failed to list rate tables", "LIST_RATE_TABLES_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Rate tables retrieved", result)
}

// ExportRateTables downloads the filtered listing as an XLSX workbook
// @Summary Export Rate Tables
// @Tags Financeiro
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param ativa query bool false "Only active tables"
// @Param data query string false "Only tables in vigency on this date (YYYY-MM-DD)"
// @Success 200 {file} file "XLSX workbook"
// @Router /api/v1/financeiro/premissas/export [get]
func (h *RateTableHandler) ExportRateTables(c fiber.Ctx) error {
	actor, ok, resp := requireActor(c)
	if !ok {
		return resp
	}
	req, ok, resp := h.bindListQuery(c)
	if !ok {
		return resp
	}

	ctx, cancel := createRequestContext(c, "/api/v1/financeiro/premissas/export")
	defer cancel()

	filename, data, err := h.flow.ExportRateTables(ctx, actor.TenantID, req)
	if err != nil {
		return flowErrorResponse(c, err, "Export rate tables", "Failed to generate Excel file", "EXPORT_FAILED")
	}
	c.Set("Content-Type", xlsxContentType)
	c.Set("Content-Disposition", "attachment; filename="+filename)
	return c.Send(data)
}

// GetRateTable returns one rate table with its bands and regions
// @Summary Get Rate Table
// @Tags Financeiro
// @Produce json
// @Param id path int true "Rate table ID"
// @Success 200 {object} dto.APIResponse{data=dto.RateTableDTO}
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/financeiro/premissas/{id} [get]
func (h *RateTableHandler) GetRateTable(c fiber.Ctx) error {
	actor, ok, resp := requireActor(c)
	if !ok {
		return resp
	}
	id, ok, resp := parseIDParam(c, "id")
	if !ok {
		return resp
	}

	ctx, cancel := createRequestContext(c, "/api/v1/financeiro/premissas/:id")
	defer cancel()

	result, err := h.flow.GetRateTable(ctx, actor.TenantID, id)
	if err != nil {
		return flowErrorResponse(c, err, "Get rate table", "Failed to get rate table", "GET_RATE_TABLE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Rate table retrieved", result)
}

// CreateRateTable creates a rate table with its bands and regions in one step
// @Summary Create Rate Table
// @Tags Financeiro
// @Accept json
// @Produce json
// @Param request body dto.CreateRateTableRequest true "Rate table"
// @Success 201 {object} dto.APIResponse{data=dto.RateTableDTO}
// @Failure 400 {object} dto.APIResponse "Validation error or band overlap"
// @Failure 409 {object} dto.APIResponse "Duplicate region"
// @Router /api/v1/financeiro/premissas [post]
func (h *RateTableHandler) CreateRateTable(c fiber.Ctx) error {
	actor, ok, resp := requireActor(c)
	if !ok {
		return resp
	}

	var req dto.CreateRateTableRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, resp := validateRequest(c, h.validator, &req); !ok {
		return resp
	}

	ctx, cancel := createRequestContext(c, "/api/v1/financeiro/premissas")
	defer cancel()

	result, err := h.flow.CreateRateTable(ctx, actor, &req, clientMetadata(c))
	if err != nil {
		return flowErrorResponse(c, err, "Create rate table", "Failed to create rate table", "CREATE_RATE_TABLE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Rate table created", result)
}

// UpdateRateTable changes top-level fields of a rate table
// @Summary Update Rate Table
// @Tags Financeiro
// @Accept json
// @Produce json
// @Param id path int true "Rate table ID"
// @Param request body dto.UpdateRateTableRequest true "Fields to change"
// @Success 200 {object} dto.APIResponse{data=dto.RateTableDTO}
// @Failure 400 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/financeiro/premissas/{id} [put]
func (h *RateTableHandler) UpdateRateTable(c fiber.Ctx) error {
	actor, ok, resp := requireActor(c)
	if !ok {
		return resp
	}
	id, ok, resp := parseIDParam(c, "id")
	if !ok {
		return resp
	}

	var req dto.UpdateRateTableRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, resp := validateRequest(c, h.validator, &req); !ok {
		return resp
	}

	ctx, cancel := createRequestContext(c, "/api/v1/financeiro/premissas/:id")
	defer cancel()

	result, err := h.flow.UpdateRateTable(ctx, actor, id, &req, clientMetadata(c))
	if err != nil {
		return flowErrorResponse(c, err, "Update rate table", "Failed to update rate table", "UPDATE_RATE_TABLE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Rate table updated", result)
}

// DeleteRateTable removes a rate table with its bands and regions
// @Summary Delete Rate Table
// @Tags Financeiro
// @Produce json
// @Param id path int true "Rate table ID"
// @Success 200 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/financeiro/premissas/{id} [delete]
func (h *RateTableHandler) DeleteRateTable(c fiber.Ctx) error {
	actor, ok, resp := requireActor(c)
	if !ok {
		return resp
	}
	id, ok, resp := parseIDParam(c, "id")
	if !ok {
		return resp
	}

	ctx, cancel := createRequestContext(c, "/api/v1/financeiro/premissas/:id")
	defer cancel()

	if err := h.flow.DeleteRateTable(ctx, actor, id, clientMetadata(c)); err != nil {
		return flowErrorResponse(c, err, "Delete rate table", "Failed to delete rate table", "DELETE_RATE_TABLE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Rate table deleted", fiber.Map{"id": id})
}

// AddBand adds a power band to a rate table
// @Summary Add Power Band
// @Tags Financeiro
// @Accept json
// @Produce json
// @Param id path int true "Rate table ID"
// @Param request body dto.PowerBandRequest true "Band"
// @Success 201 {object} dto.APIResponse{data=dto.PowerBandDTO}
// @Failure 400 {object} dto.APIResponse "Validation error or band overlap"
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/financeiro/premissas/{id}/faixas [post]
func (h *RateTableHandler) AddBand(c fiber.Ctx) error {
	actor, ok, resp := requireActor(c)
	if !ok {
		return resp
	}
	id, ok, resp := parseIDParam(c, "id")
	if !ok {
		return resp
	}

	var req dto.PowerBandRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, resp := validateRequest(c, h.validator, &req); !ok {
		return resp
	}

	ctx, cancel := createRequestContext(c, "/api/v1/financeiro/premissas/:id/faixas")
	defer cancel()

	result, err := h.flow.AddBand(ctx, actor, id, &req, clientMetadata(c))
	if err != nil {
		return flowErrorResponse(c, err, "Add band", "Failed to add power band", "ADD_BAND_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Power band added", result)
}

// UpdateBand changes a power band
// @Summary Update Power Band
// @Tags Financeiro
// @Accept json
// @Produce json
// @Param id path int true "Rate table ID"
// @Param faixa_id path int true "Band ID"
// @Param request body dto.UpdatePowerBandRequest true "Fields to change"
// @Success 200 {object} dto.APIResponse{data=dto.PowerBandDTO}
// @Failure 400 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/financeiro/premissas/{id}/faixas/{faixa_id} [put]
func (h *RateTableHandler) UpdateBand(c fiber.Ctx) error {
	actor, ok, resp := requireActor(c)
	if !ok {
		return resp
	}
	id, ok, resp := parseIDParam(c, "id")
	if !ok {
		return resp
	}
	bandID, ok, resp := parseIDParam(c, "faixa_id")
	if !ok {
		return resp
	}

	var req dto.UpdatePowerBandRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, resp := validateRequest(c, h.validator, &req); !ok {
		return resp
	}

	ctx, cancel := createRequestContext(c, "/api/v1/financeiro/premissas/:id/faixas/:faixa_id")
	defer cancel()

	result, err := h.flow.UpdateBand(ctx, actor, id, bandID, &req, clientMetadata(c))
	if err != nil {
		return flowErrorResponse(c, err, "Update band", "Failed to update power band", "UPDATE_BAND_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Power band updated", result)
}

// DeleteBand removes a power band
// @Summary Delete Power Band
// @Tags Financeiro
// @Produce json
// @Param id path int true "Rate table ID"
// @Param faixa_id path int true "Band ID"
// @Success 200 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/financeiro/premissas/{id}/faixas/{faixa_id} [delete]
func (h *RateTableHandler) DeleteBand(c fiber.Ctx) error {
	actor, ok, resp := requireActor(c)
	if !ok {
		return resp
	}
	id, ok, resp := parseIDParam(c, "id")
	if !ok {
		return resp
	}
	bandID, ok, resp := parseIDParam(c, "faixa_id")
	if !ok {
		return resp
	}

	ctx, cancel := createRequestContext(c, "/api/v1/financeiro/premissas/:id/faixas/:faixa_id")
	defer cancel()

	if err := h.flow.DeleteBand(ctx, actor, id, bandID, clientMetadata(c)); err != nil {
		return flowErrorResponse(c, err, "Delete band", "Failed to delete power band", "DELETE_BAND_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Power band deleted", fiber.Map{"id": bandID})
}

// AddRegion adds a region tax entry to a rate table
// @Summary Add Region Tax
// @Tags Financeiro
// @Accept json
// @Produce json
// @Param id path int true "Rate table ID"
// @Param request body dto.RegionTaxRequest true "Region entry"
// @Success 201 {object} dto.APIResponse{data=dto.RegionTaxDTO}
// @Failure 400 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Failure 409 {object} dto.APIResponse "Region already exists"
// @Router /api/v1/financeiro/premissas/{id}/regioes [post]
func (h *RateTableHandler) AddRegion(c fiber.Ctx) error {
	actor, ok, resp := requireActor(c)
	if !ok {
		return resp
	}
	id, ok, resp := parseIDParam(c, "id")
	if !ok {
		return resp
	}

	var req dto.RegionTaxRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, resp := validateRequest(c, h.validator, &req); !ok {
		return resp
	}

	ctx, cancel := createRequestContext(c, "/api/v1/financeiro/premissas/:id/regioes")
	defer cancel()

	result, err := h.flow.AddRegion(ctx, actor, id, &req, clientMetadata(c))
	if err != nil {
		return flowErrorResponse(c, err, "Add region", "Failed to add region tax", "ADD_REGION_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Region tax added", result)
}

// UpdateRegion changes a region tax entry
// @Summary Update Region Tax
// @Tags Financeiro
// @Accept json
// @Produce json
// @Param id path int true "Rate table ID"
// @Param regiao_id path int true "Region entry ID"
// @Param request body dto.UpdateRegionTaxRequest true "Fields to change"
// @Success 200 {object} dto.APIResponse{data=dto.RegionTaxDTO}
// @Failure 400 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Failure 409 {object} dto.APIResponse "Region already exists"
// @Router /api/v1/financeiro/premissas/{id}/regioes/{regiao_id} [put]
func (h *RateTableHandler) UpdateRegion(c fiber.Ctx) error {
	actor, ok, resp := requireActor(c)
	if !ok {
		return resp
	}
	id, ok, resp := parseIDParam(c, "id")
	if !ok {
		return resp
	}
	regionID, ok, resp := parseIDParam(c, "regiao_id")
	if !ok {
		return resp
	}

	var req dto.UpdateRegionTaxRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, resp := validateRequest(c, h.validator, &req); !ok {
		return resp
	}

	ctx, cancel := createRequestContext(c, "/api/v1/financeiro/premissas/:id/regioes/:regiao_id")
	defer cancel()

	result, err := h.flow.UpdateRegion(ctx, actor, id, regionID, &req, clientMetadata(c))
	if err != nil {
		return flowErrorResponse(c, err, "Update region", "Failed to update region tax", "UPDATE_REGION_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Region tax updated", result)
}

// DeleteRegion removes a region tax entry
// @Summary Delete Region Tax
// @Tags Financeiro
// @Produce json
// @Param id path int true "Rate table ID"
// @Param regiao_id path int true "Region entry ID"
// @Success 200 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/financeiro/premissas/{id}/regioes/{regiao_id} [delete]
func (h *RateTableHandler) DeleteRegion(c fiber.Ctx) error {
	actor, ok, resp := requireActor(c)
	if !ok {
		return resp
	}
	id, ok, resp := parseIDParam(c, "id")
	if !ok {
		return resp
	}
	regionID, ok, resp := parseIDParam(c, "regiao_id")
	if !ok {
		return resp
	}

	ctx, cancel := createRequestContext(c, "/api/v1/financeiro/premissas/:id/regioes/:regiao_id")
	defer cancel()

	if err := h.flow.DeleteRegion(ctx, actor, id, regionID, clientMetadata(c)); err != nil {
		return flowErrorResponse(c, err, "Delete region", "Failed to delete region tax", "DELETE_REGION_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Region tax deleted", fiber.Map{"id": regionID})
}
