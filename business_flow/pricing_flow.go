package businessflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"github.com/sunops/sunops-backend/app/dto"
	"github.com/sunops/sunops-backend/models"
	"github.com/sunops/sunops-backend/repository"
	"github.com/sunops/sunops-backend/utils"
	"gorm.io/gorm"
)

var (
	// Price calculations partitioned by outcome
	pricingCalculationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sunops",
			Name:      "pricing_calculations_total",
			Help:      "Total number of price calculations by result",
		},
		[]string{"result"},
	)

	// Duration of a full calculation including table resolution
	pricingCalculationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sunops",
			Name:      "pricing_calculation_duration_seconds",
			Help:      "Price calculation latencies in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// PricingFallback holds the rates stored for a tenant on first use
type PricingFallback struct {
	MarginRate     decimal.Decimal
	CommissionRate decimal.Decimal
}

// DefaultPricingFallback returns the built-in 20% margin and 5% commission
func DefaultPricingFallback() PricingFallback {
	return PricingFallback{
		MarginRate:     models.DefaultMarginRate,
		CommissionRate: models.DefaultCommissionRate,
	}
}

// PricingFlow handles price calculation and tenant pricing defaults
type PricingFlow interface {
	CalculatePrice(ctx context.Context, tenantID uint, req *dto.CalculatePriceRequest) (*dto.CalculatePriceResponse, error)
	GetPricingDefaults(ctx context.Context, tenantID uint) (*dto.PricingDefaultsDTO, error)
	UpdatePricingDefaults(ctx context.Context, actor Actor, req *dto.UpdatePricingDefaultsRequest, metadata *ClientMetadata) (*dto.PricingDefaultsDTO, error)
}

// PricingFlowImpl implements the pricing business flow
type PricingFlowImpl struct {
	selector     *RateTableSelector
	defaultsRepo repository.PricingDefaultsRepository
	auditRepo    repository.AuditLogRepository
	fallback     PricingFallback
	db           *gorm.DB
}

// NewPricingFlow creates a new pricing flow instance
func NewPricingFlow(
	selector *RateTableSelector,
	defaultsRepo repository.PricingDefaultsRepository,
	auditRepo repository.AuditLogRepository,
	fallback PricingFallback,
	db *gorm.DB,
) PricingFlow {
	return &PricingFlowImpl{
		selector:     selector,
		defaultsRepo: defaultsRepo,
		auditRepo:    auditRepo,
		fallback:     fallback,
		db:           db,
	}
}

// CalculatePrice validates the request, resolves table, band and region, then runs the calculator.
// Any resolution failure aborts before arithmetic; no partial result is returned.
func (p *PricingFlowImpl) CalculatePrice(ctx context.Context, tenantID uint, req *dto.CalculatePriceRequest) (resp *dto.CalculatePriceResponse, err error) {
	start := time.Now()
	defer func() {
		pricingCalculationDuration.Observe(time.Since(start).Seconds())
		pricingCalculationsTotal.WithLabelValues(calculationResult(err)).Inc()
	}()

	if err := validatePriceRequest(req); err != nil {
		return nil, NewBusinessError("PRICING_VALIDATION_FAILED", "Pricing request validation failed", err)
	}

	date := utils.UTCToday()
	if req.Date != nil && strings.TrimSpace(*req.Date) != "" {
		date, err = parseDateField("data", *req.Date)
		if err != nil {
			return nil, NewBusinessError("PRICING_VALIDATION_FAILED", "Pricing request validation failed", err)
		}
	}

	sel, err := p.selector.Resolve(ctx, tenantID, date, req.RateTableID, *req.PowerKW, req.Region, req.TaxOverride != nil)
	if err != nil {
		return nil, NewBusinessError("PRICING_RESOLUTION_FAILED", "Failed to resolve pricing policy", err)
	}

	defaults, err := p.getOrCreateDefaults(ctx, tenantID)
	if err != nil {
		return nil, NewBusinessError("PRICING_DEFAULTS_FAILED", "Failed to load pricing defaults", err)
	}

	input := PriceInput{
		PowerKW:            *req.PowerKW,
		UnitPrice:          sel.Band.UnitPrice,
		AdditionalCosts:    decimal.Zero,
		DefaultMargin:      defaults.MarginRate,
		DefaultCommission:  defaults.CommissionRate,
		RegionCode:         req.Region,
		MarginOverride:     req.MarginOverride,
		CommissionOverride: req.CommissionOverride,
		TaxOverride:        req.TaxOverride,
	}
	if req.AdditionalCosts != nil {
		input.AdditionalCosts = *req.AdditionalCosts
	}
	if sel.Region != nil {
		input.RegionTaxRate = &sel.Region.TaxRate
	}

	breakdown, err := CalculatePrice(input)
	if err != nil {
		return nil, NewBusinessError("PRICING_COMPUTATION_FAILED", "Price computation failed", err)
	}

	return ToPriceResponse(req.PowerKW.String(), date, sel, req.Region, breakdown), nil
}

// GetPricingDefaults returns the tenant's defaults, creating them from the fallback on first read
func (p *PricingFlowImpl) GetPricingDefaults(ctx context.Context, tenantID uint) (*dto.PricingDefaultsDTO, error) {
	row, err := p.getOrCreateDefaults(ctx, tenantID)
	if err != nil {
		return nil, NewBusinessError("PRICING_DEFAULTS_FAILED", "Failed to load pricing defaults", err)
	}
	out := ToPricingDefaultsDTO(row)
	return &out, nil
}

// UpdatePricingDefaults changes margin and/or commission; each must lie in [0, 1)
func (p *PricingFlowImpl) UpdatePricingDefaults(ctx context.Context, actor Actor, req *dto.UpdatePricingDefaultsRequest, metadata *ClientMetadata) (*dto.PricingDefaultsDTO, error) {
	if req == nil || (req.MarginRate == nil && req.CommissionRate == nil) {
		return nil, NewBusinessError("PRICING_DEFAULTS_UPDATE_REQUIRED", "At least one field must be provided for update", ErrRateTableUpdateRequired)
	}
	if err := validateFraction("margem_lucro_padrao", req.MarginRate); err != nil {
		return nil, NewBusinessError("PRICING_VALIDATION_FAILED", "Pricing defaults validation failed", err)
	}
	if err := validateFraction("percentual_comissao_padrao", req.CommissionRate); err != nil {
		return nil, NewBusinessError("PRICING_VALIDATION_FAILED", "Pricing defaults validation failed", err)
	}

	row, err := p.getOrCreateDefaults(ctx, actor.TenantID)
	if err != nil {
		return nil, NewBusinessError("PRICING_DEFAULTS_FAILED", "Failed to load pricing defaults", err)
	}

	if req.MarginRate != nil {
		row.MarginRate = *req.MarginRate
	}
	if req.CommissionRate != nil {
		row.CommissionRate = *req.CommissionRate
	}
	row.UpdatedAt = utils.UTCNow()

	if err := p.defaultsRepo.Update(ctx, row); err != nil {
		errMsg := err.Error()
		_ = createAuditLog(ctx, p.auditRepo, actor, models.AuditActionPricingDefaultsUpdated, "Pricing defaults update failed", false, &errMsg, metadata, nil)
		return nil, NewBusinessError("PRICING_DEFAULTS_UPDATE_FAILED", "Failed to update pricing defaults", err)
	}

	_ = createAuditLog(ctx, p.auditRepo, actor, models.AuditActionPricingDefaultsUpdated,
		fmt.Sprintf("Pricing defaults set to margin %s and commission %s", row.MarginRate, row.CommissionRate),
		true, nil, metadata, nil)

	out := ToPricingDefaultsDTO(row)
	return &out, nil
}

// getOrCreateDefaults reads the tenant row, inserting the fallback when absent.
// A concurrent first insert loses on the unique tenant index and re-reads the winner.
func (p *PricingFlowImpl) getOrCreateDefaults(ctx context.Context, tenantID uint) (*models.PricingDefaults, error) {
	row, err := p.defaultsRepo.ByTenantID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if row != nil {
		return row, nil
	}

	row = &models.PricingDefaults{
		TenantID:       tenantID,
		MarginRate:     p.fallback.MarginRate,
		CommissionRate: p.fallback.CommissionRate,
	}
	if err := p.defaultsRepo.Save(ctx, row); err != nil {
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		existing, err := p.defaultsRepo.ByTenantID(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("pricing defaults for tenant %d vanished after conflict", tenantID)
		}
		return existing, nil
	}
	return row, nil
}

func validatePriceRequest(req *dto.CalculatePriceRequest) error {
	if req == nil {
		return detailf(ErrValidation, "request body is required")
	}
	if req.PowerKW == nil || !req.PowerKW.IsPositive() {
		value := "missing"
		if req.PowerKW != nil {
			value = req.PowerKW.String()
		}
		return detailf(ErrPowerNotPositive, "potencia_kw is %s", value)
	}
	if models.NormalizeRegionCode(req.Region) == "" {
		return detailf(ErrValidation, "regiao is required")
	}
	if req.AdditionalCosts != nil && req.AdditionalCosts.IsNegative() {
		return detailf(ErrAdditionalCostsNegative, "custos_adicionais is %s", req.AdditionalCosts.String())
	}
	if err := validateFraction("margem_lucro_override", req.MarginOverride); err != nil {
		return err
	}
	if err := validateFraction("comissao_override", req.CommissionOverride); err != nil {
		return err
	}
	return validateFraction("imposto_override", req.TaxOverride)
}

// validateFraction accepts nil or a value in [0, 1) with at most models.RateScale decimal places
func validateFraction(field string, value *decimal.Decimal) error {
	if value == nil {
		return nil
	}
	if value.IsNegative() || value.GreaterThanOrEqual(fractionCeiling) {
		return detailf(ErrOverrideOutOfRange, "%s is %s", field, value.String())
	}
	if !fitsScale(*value, models.RateScale) {
		return detailf(ErrOverrideOutOfRange, "%s %s has more than %d decimal places", field, value.String(), models.RateScale)
	}
	return nil
}

func calculationResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case IsValidationError(err):
		return "validation_error"
	case IsNotFoundError(err):
		return "not_found"
	case IsComputationError(err):
		return "computation_error"
	default:
		return "error"
	}
}
