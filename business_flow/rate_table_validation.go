package businessflow

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sunops/sunops-backend/models"
	"github.com/sunops/sunops-backend/utils"
)

var fractionCeiling = decimal.NewFromInt(1)

// ValidateVigency fails when end is before start. Equal dates form a one-day window.
func ValidateVigency(start, end time.Time) error {
	if end.Before(start) {
		return detailf(ErrVigencyInvalid, "vigency end %s is before vigency start %s",
			utils.FormatDate(end), utils.FormatDate(start))
	}
	return nil
}

// ValidateNoOverlap checks a full band set of one rate table.
// Bands are ordered by PowerMin; an adjacent pair overlaps when prev.PowerMax > next.PowerMin.
// Touching boundaries (prev.PowerMax == next.PowerMin) are allowed.
func ValidateNoOverlap(bands []models.PowerBand) error {
	if len(bands) < 2 {
		return nil
	}

	sorted := make([]models.PowerBand, len(bands))
	copy(sorted, bands)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PowerMin.LessThan(sorted[j].PowerMin)
	})

	for i := 0; i < len(sorted)-1; i++ {
		prev, next := sorted[i], sorted[i+1]
		if prev.PowerMax.GreaterThan(next.PowerMin) {
			return detailf(ErrBandOverlap, "band '%s' %s overlaps band '%s' %s",
				prev.Label, prev.Range(), next.Label, next.Range())
		}
	}
	return nil
}

// ValidateBand checks the per-band value constraints
func ValidateBand(band models.PowerBand) error {
	if strings.TrimSpace(band.Label) == "" {
		return detailf(ErrBandInvalid, "label is required")
	}
	if band.PowerMin.IsNegative() {
		return detailf(ErrBandInvalid, "band '%s': power_min %s must not be negative", band.Label, band.PowerMin)
	}
	if !band.PowerMax.GreaterThan(band.PowerMin) {
		return detailf(ErrBandInvalid, "band '%s': power_max %s must be greater than power_min %s",
			band.Label, band.PowerMax, band.PowerMin)
	}
	if band.UnitPrice.IsNegative() {
		return detailf(ErrBandInvalid, "band '%s': unit_price %s must not be negative", band.Label, band.UnitPrice)
	}

	columns := []struct {
		field            string
		value            decimal.Decimal
		precision, scale int32
	}{
		{"power_min", band.PowerMin, models.PowerPrecision, models.PowerScale},
		{"power_max", band.PowerMax, models.PowerPrecision, models.PowerScale},
		{"unit_price", band.UnitPrice, models.UnitPricePrecision, models.UnitPriceScale},
	}
	for _, col := range columns {
		if !fitsScale(col.value, col.scale) {
			return detailf(ErrBandInvalid, "band '%s': %s %s has more than %d decimal places",
				band.Label, col.field, col.value, col.scale)
		}
		if !fitsPrecision(col.value, col.precision, col.scale) {
			return detailf(ErrBandInvalid, "band '%s': %s %s exceeds %d integer digits",
				band.Label, col.field, col.value, col.precision-col.scale)
		}
	}
	return nil
}

// ValidateBands runs ValidateBand on each band and then ValidateNoOverlap on the set
func ValidateBands(bands []models.PowerBand) error {
	for _, band := range bands {
		if err := ValidateBand(band); err != nil {
			return err
		}
	}
	return ValidateNoOverlap(bands)
}

// ValidateRegion checks the region code and that the tax rate lies in [0, 1)
func ValidateRegion(region models.RegionTax) error {
	code := models.NormalizeRegionCode(region.RegionCode)
	if code == "" {
		return detailf(ErrRegionInvalid, "region code is required")
	}
	if region.TaxRate.IsNegative() || region.TaxRate.GreaterThanOrEqual(fractionCeiling) {
		return detailf(ErrRegionInvalid, "region %s: tax_rate %s must be in [0, 1)", code, region.TaxRate)
	}
	if !fitsScale(region.TaxRate, models.RateScale) {
		return detailf(ErrRegionInvalid, "region %s: tax_rate %s has more than %d decimal places",
			code, region.TaxRate, models.RateScale)
	}
	return nil
}

// ValidateRegions validates each entry and rejects codes repeated within the set
func ValidateRegions(regions []models.RegionTax) error {
	seen := make(map[string]struct{}, len(regions))
	for _, region := range regions {
		if err := ValidateRegion(region); err != nil {
			return err
		}
		code := models.NormalizeRegionCode(region.RegionCode)
		if _, ok := seen[code]; ok {
			return detailf(ErrRegionAlreadyExists, "region %s is listed more than once", code)
		}
		seen[code] = struct{}{}
	}
	return nil
}

// fitsScale reports whether value is stored without rounding in a column with scale decimal places
func fitsScale(value decimal.Decimal, scale int32) bool {
	return value.Round(scale).Equal(value)
}

func fitsPrecision(value decimal.Decimal, precision, scale int32) bool {
	return value.Abs().LessThan(decimal.New(1, precision-scale))
}

// replaceBand returns siblings with the band of the same ID swapped for updated
func replaceBand(siblings []*models.PowerBand, updated models.PowerBand) []models.PowerBand {
	out := make([]models.PowerBand, 0, len(siblings))
	for _, b := range siblings {
		if b.ID == updated.ID {
			continue
		}
		out = append(out, *b)
	}
	return append(out, updated)
}
