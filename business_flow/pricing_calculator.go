package businessflow

import (
	"github.com/shopspring/decimal"
	"github.com/sunops/sunops-backend/models"
)

// Keys of PriceBreakdown.Sources
const (
	SourceKeyMargin     = "margem_pct_origem"
	SourceKeyCommission = "comissao_pct_origem"
	SourceKeyTax        = "imposto_pct_origem"
)

// Source labels recorded per percentage
const (
	SourceOverride      = "Override"
	SourceGlobalDefault = "Global Default"
	sourceRegionPrefix  = "Region "
)

const moneyPlaces = 2

var wattsPerKilowatt = decimal.NewFromInt(1000)

// PriceInput carries everything the calculation reads. It has no I/O handles.
type PriceInput struct {
	PowerKW         decimal.Decimal
	UnitPrice       decimal.Decimal
	AdditionalCosts decimal.Decimal

	DefaultMargin     decimal.Decimal
	DefaultCommission decimal.Decimal

	// RegionCode and RegionTaxRate come from the resolved region entry; RegionTaxRate is nil when absent
	RegionCode    string
	RegionTaxRate *decimal.Decimal

	MarginOverride     *decimal.Decimal
	CommissionOverride *decimal.Decimal
	TaxOverride        *decimal.Decimal
}

// PriceBreakdown is the itemized result. Every money field is already rounded to cents.
type PriceBreakdown struct {
	PowerWp         decimal.Decimal
	UnitPrice       decimal.Decimal
	BasePrice       decimal.Decimal
	AdditionalCosts decimal.Decimal
	SubtotalCosts   decimal.Decimal
	MarginRate      decimal.Decimal
	MarginValue     decimal.Decimal
	CommissionRate  decimal.Decimal
	CommissionValue decimal.Decimal
	PretaxSubtotal  decimal.Decimal
	TaxRate         decimal.Decimal
	TaxValue        decimal.Decimal
	FinalPrice      decimal.Decimal
	Sources         map[string]string
}

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPlaces)
}

// CalculatePrice runs the layered computation, rounding to cents after every intermediate.
// Tax is applied on the pre-tax subtotal (costs plus margin plus commission).
func CalculatePrice(in PriceInput) (*PriceBreakdown, error) {
	out := &PriceBreakdown{
		UnitPrice:       in.UnitPrice,
		AdditionalCosts: in.AdditionalCosts,
		Sources:         make(map[string]string, 3),
	}

	out.PowerWp = in.PowerKW.Mul(wattsPerKilowatt)
	out.BasePrice = round2(out.PowerWp.Mul(in.UnitPrice))
	out.SubtotalCosts = round2(out.BasePrice.Add(in.AdditionalCosts))

	out.MarginRate, out.Sources[SourceKeyMargin] = pickRate(in.MarginOverride, in.DefaultMargin, SourceGlobalDefault)
	out.CommissionRate, out.Sources[SourceKeyCommission] = pickRate(in.CommissionOverride, in.DefaultCommission, SourceGlobalDefault)

	switch {
	case in.TaxOverride != nil:
		out.TaxRate, out.Sources[SourceKeyTax] = *in.TaxOverride, SourceOverride
	case in.RegionTaxRate != nil:
		out.TaxRate = *in.RegionTaxRate
		out.Sources[SourceKeyTax] = sourceRegionPrefix + models.NormalizeRegionCode(in.RegionCode)
	default:
		return nil, detailf(ErrComputation, "no tax rate source for region %s", models.NormalizeRegionCode(in.RegionCode))
	}

	out.MarginValue = round2(out.SubtotalCosts.Mul(out.MarginRate))
	out.CommissionValue = round2(out.SubtotalCosts.Mul(out.CommissionRate))
	out.PretaxSubtotal = round2(out.SubtotalCosts.Add(out.MarginValue).Add(out.CommissionValue))
	out.TaxValue = round2(out.PretaxSubtotal.Mul(out.TaxRate))
	out.FinalPrice = round2(out.PretaxSubtotal.Add(out.TaxValue))

	return out, nil
}

func pickRate(override *decimal.Decimal, fallback decimal.Decimal, fallbackSource string) (decimal.Decimal, string) {
	if override != nil {
		return *override, SourceOverride
	}
	return fallback, fallbackSource
}
