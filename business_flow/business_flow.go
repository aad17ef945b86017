// Package businessflow contains the core business logic and use cases for the pricing engine
package businessflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sunops/sunops-backend/app/dto"
	"github.com/sunops/sunops-backend/models"
	"github.com/sunops/sunops-backend/repository"
	"github.com/sunops/sunops-backend/utils"
)

// ClientMetadata holds all client-related information for audit logging
type ClientMetadata struct {
	IPAddress  string            `json:"ip_address"`
	UserAgent  string            `json:"user_agent"`
	RequestID  string            `json:"request_id,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Additional: make(map[string]string),
	}
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// Actor identifies who performs a mutation
type Actor struct {
	TenantID uint
	UserID   uint
}

// createAuditLog records an audit row. Callers ignore its error so auditing never fails the operation.
func createAuditLog(ctx context.Context, auditRepo repository.AuditLogRepository, actor Actor, action, description string, success bool, errorMsg *string, metadata *ClientMetadata, details map[string]any) error {
	if auditRepo == nil {
		return nil
	}

	ipAddress := ""
	userAgent := ""
	if metadata != nil {
		ipAddress = metadata.IPAddress
		userAgent = metadata.UserAgent
	}

	audit := &models.AuditLog{
		Action:       action,
		Description:  &description,
		Success:      utils.ToPtr(success),
		IPAddress:    &ipAddress,
		UserAgent:    &userAgent,
		ErrorMessage: errorMsg,
	}
	if actor.TenantID != 0 {
		audit.TenantID = utils.ToPtr(actor.TenantID)
	}
	if actor.UserID != 0 {
		audit.UserID = utils.ToPtr(actor.UserID)
	}
	if len(details) > 0 {
		if bs, err := json.Marshal(details); err == nil {
			audit.Metadata = bs
		}
	}

	// Extract request ID from context if available
	if requestID, ok := ctx.Value(utils.RequestIDKey).(string); ok && requestID != "" {
		audit.RequestID = &requestID
	} else if metadata != nil && metadata.RequestID != "" {
		audit.RequestID = &metadata.RequestID
	}

	return auditRepo.Save(ctx, audit)
}

// ToRateTableDTO converts a rate table with its loaded children to the wire shape
func ToRateTableDTO(table *models.RateTable) dto.RateTableDTO {
	out := dto.RateTableDTO{
		ID:           table.ID,
		Name:         table.Name,
		Description:  table.Description,
		VigencyStart: utils.FormatDate(table.VigencyStart),
		VigencyEnd:   utils.FormatDate(table.VigencyEnd),
		Active:       table.Active,
		CreatedAt:    table.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    table.UpdatedAt.UTC().Format(time.RFC3339),
		Bands:        make([]dto.PowerBandDTO, 0, len(table.Bands)),
		Regions:      make([]dto.RegionTaxDTO, 0, len(table.Regions)),
	}
	for i := range table.Bands {
		out.Bands = append(out.Bands, ToPowerBandDTO(&table.Bands[i]))
	}
	for i := range table.Regions {
		out.Regions = append(out.Regions, ToRegionTaxDTO(&table.Regions[i]))
	}
	return out
}

// ToPowerBandDTO converts a band to the wire shape
func ToPowerBandDTO(band *models.PowerBand) dto.PowerBandDTO {
	return dto.PowerBandDTO{
		ID:          band.ID,
		RateTableID: band.RateTableID,
		Label:       band.Label,
		PowerMin:    band.PowerMin.String(),
		PowerMax:    band.PowerMax.String(),
		UnitPrice:   band.UnitPrice.StringFixed(4),
		SortOrder:   band.SortOrder,
	}
}

// ToRegionTaxDTO converts a region entry to the wire shape
func ToRegionTaxDTO(region *models.RegionTax) dto.RegionTaxDTO {
	return dto.RegionTaxDTO{
		ID:          region.ID,
		RateTableID: region.RateTableID,
		RegionCode:  region.RegionCode,
		TaxRate:     region.TaxRate.StringFixed(4),
		Notes:       region.Notes,
	}
}

// ToPricingDefaultsDTO converts tenant defaults to the wire shape
func ToPricingDefaultsDTO(row *models.PricingDefaults) dto.PricingDefaultsDTO {
	return dto.PricingDefaultsDTO{
		MarginRate:     row.MarginRate.StringFixed(4),
		CommissionRate: row.CommissionRate.StringFixed(4),
		UpdatedAt:      row.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// ToPriceResponse converts a calculation result to the wire shape
func ToPriceResponse(powerKW string, date time.Time, sel *Selection, regionCode string, b *PriceBreakdown) *dto.CalculatePriceResponse {
	details := make(map[string]string, len(b.Sources))
	for k, v := range b.Sources {
		details[k] = v
	}
	return &dto.CalculatePriceResponse{
		PowerKW:         powerKW,
		Region:          models.NormalizeRegionCode(regionCode),
		Date:            utils.FormatDate(date),
		RateTableID:     sel.RateTable.ID,
		RateTableName:   sel.RateTable.Name,
		BandLabel:       sel.Band.Label,
		UnitPriceWp:     b.UnitPrice.StringFixed(4),
		BasePrice:       b.BasePrice.StringFixed(moneyPlaces),
		AdditionalCosts: b.AdditionalCosts.StringFixed(moneyPlaces),
		SubtotalCosts:   b.SubtotalCosts.StringFixed(moneyPlaces),
		MarginRate:      b.MarginRate.StringFixed(4),
		MarginValue:     b.MarginValue.StringFixed(moneyPlaces),
		CommissionRate:  b.CommissionRate.StringFixed(4),
		CommissionValue: b.CommissionValue.StringFixed(moneyPlaces),
		PretaxSubtotal:  b.PretaxSubtotal.StringFixed(moneyPlaces),
		TaxRate:         b.TaxRate.StringFixed(4),
		TaxValue:        b.TaxValue.StringFixed(moneyPlaces),
		FinalPrice:      b.FinalPrice.StringFixed(moneyPlaces),
		Details:         details,
	}
}
