package businessflow

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func baseInput() PriceInput {
	return PriceInput{
		PowerKW:           dec("5.5"),
		UnitPrice:         dec("0.23"),
		AdditionalCosts:   decimal.Zero,
		DefaultMargin:     dec("0.20"),
		DefaultCommission: dec("0.05"),
		RegionCode:        "sp",
		RegionTaxRate:     decPtr("0.16"),
	}
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.Equal(t, want, got.StringFixed(2), field)
}

func TestCalculatePrice(t *testing.T) {
	t.Run("EndToEndBreakdown", func(t *testing.T) {
		out, err := CalculatePrice(baseInput())
		require.NoError(t, err)

		assert.True(t, out.PowerWp.Equal(dec("5500")))
		assertMoney(t, "1265.00", out.BasePrice, "base")
		assertMoney(t, "0.00", out.AdditionalCosts, "additional")
		assertMoney(t, "1265.00", out.SubtotalCosts, "subtotal")
		assertMoney(t, "253.00", out.MarginValue, "margin")
		assertMoney(t, "63.25", out.CommissionValue, "commission")
		assertMoney(t, "1581.25", out.PretaxSubtotal, "pretax")
		assertMoney(t, "253.00", out.TaxValue, "tax")
		assertMoney(t, "1834.25", out.FinalPrice, "final")

		assert.Equal(t, SourceGlobalDefault, out.Sources[SourceKeyMargin])
		assert.Equal(t, SourceGlobalDefault, out.Sources[SourceKeyCommission])
		assert.Equal(t, "Region SP", out.Sources[SourceKeyTax])
	})

	t.Run("AdditionalCostsJoinSubtotal", func(t *testing.T) {
		in := baseInput()
		in.AdditionalCosts = dec("500")

		out, err := CalculatePrice(in)
		require.NoError(t, err)
		assertMoney(t, "1765.00", out.SubtotalCosts, "subtotal")
		assertMoney(t, "353.00", out.MarginValue, "margin")
		assertMoney(t, "88.25", out.CommissionValue, "commission")
		assertMoney(t, "2206.25", out.PretaxSubtotal, "pretax")
		assertMoney(t, "353.00", out.TaxValue, "tax")
		assertMoney(t, "2559.25", out.FinalPrice, "final")
	})

	t.Run("OverridesWinOverDefaultsAndRegion", func(t *testing.T) {
		in := baseInput()
		in.MarginOverride = decPtr("0.30")
		in.CommissionOverride = decPtr("0")
		in.TaxOverride = decPtr("0.10")

		out, err := CalculatePrice(in)
		require.NoError(t, err)
		assert.True(t, out.MarginRate.Equal(dec("0.30")))
		assert.True(t, out.CommissionRate.IsZero())
		assert.True(t, out.TaxRate.Equal(dec("0.10")))
		assertMoney(t, "379.50", out.MarginValue, "margin")
		assertMoney(t, "0.00", out.CommissionValue, "commission")
		assertMoney(t, "1644.50", out.PretaxSubtotal, "pretax")
		assertMoney(t, "164.45", out.TaxValue, "tax")
		assertMoney(t, "1808.95", out.FinalPrice, "final")

		for _, key := range []string{SourceKeyMargin, SourceKeyCommission, SourceKeyTax} {
			assert.Equal(t, SourceOverride, out.Sources[key], key)
		}
	})

	t.Run("TaxOverrideWithoutRegionEntry", func(t *testing.T) {
		in := baseInput()
		in.RegionTaxRate = nil
		in.TaxOverride = decPtr("0.12")

		out, err := CalculatePrice(in)
		require.NoError(t, err)
		assert.Equal(t, SourceOverride, out.Sources[SourceKeyTax])
	})

	t.Run("NoTaxSource", func(t *testing.T) {
		in := baseInput()
		in.RegionTaxRate = nil

		out, err := CalculatePrice(in)
		require.Error(t, err)
		assert.Nil(t, out)
		assert.True(t, IsComputationError(err))
	})

	t.Run("RoundsEveryStepHalfAwayFromZero", func(t *testing.T) {
		in := baseInput()
		in.PowerKW = dec("0.001")
		in.UnitPrice = dec("0.005")

		out, err := CalculatePrice(in)
		require.NoError(t, err)
		// 1 Wp * 0.005 = 0.005 rounds to 0.01
		assertMoney(t, "0.01", out.BasePrice, "base")
		assertMoney(t, "0.00", out.MarginValue, "margin")
		assertMoney(t, "0.01", out.FinalPrice, "final")
	})

	t.Run("Deterministic", func(t *testing.T) {
		first, err := CalculatePrice(baseInput())
		require.NoError(t, err)
		for i := 0; i < 50; i++ {
			again, err := CalculatePrice(baseInput())
			require.NoError(t, err)
			assert.True(t, first.FinalPrice.Equal(again.FinalPrice))
			assert.Equal(t, first.Sources, again.Sources)
		}
	})
}
