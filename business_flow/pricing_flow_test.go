package businessflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sunops/sunops-backend/app/dto"
	"github.com/sunops/sunops-backend/models"
	"github.com/sunops/sunops-backend/utils"
)

func priceRequest() *dto.CalculatePriceRequest {
	return &dto.CalculatePriceRequest{
		PowerKW: decPtr("5.5"),
		Region:  "SP",
		Date:    utils.ToPtr("2025-02-01"),
	}
}

func TestPricingFlowCalculatePrice(t *testing.T) {
	withFlowEnv(t, func(env *flowEnv) {
		ctx := context.Background()
		const tenantID uint = 1

		table, err := env.fixtures.CreateTestRateTable(standardTable(tenantID))
		require.NoError(t, err)

		t.Run("EndToEndWithFallbackDefaults", func(t *testing.T) {
			resp, err := env.pricing.CalculatePrice(ctx, tenantID, priceRequest())
			require.NoError(t, err)

			assert.Equal(t, "5.5", resp.PowerKW)
			assert.Equal(t, "SP", resp.Region)
			assert.Equal(t, "2025-02-01", resp.Date)
			assert.Equal(t, table.ID, resp.RateTableID)
			assert.Equal(t, "Q1", resp.RateTableName)
			assert.Equal(t, "Standard", resp.BandLabel)
			assert.Equal(t, "0.2300", resp.UnitPriceWp)
			assert.Equal(t, "1265.00", resp.BasePrice)
			assert.Equal(t, "0.00", resp.AdditionalCosts)
			assert.Equal(t, "1265.00", resp.SubtotalCosts)
			assert.Equal(t, "0.2000", resp.MarginRate)
			assert.Equal(t, "253.00", resp.MarginValue)
			assert.Equal(t, "0.0500", resp.CommissionRate)
			assert.Equal(t, "63.25", resp.CommissionValue)
			assert.Equal(t, "1581.25", resp.PretaxSubtotal)
			assert.Equal(t, "0.1600", resp.TaxRate)
			assert.Equal(t, "253.00", resp.TaxValue)
			assert.Equal(t, "1834.25", resp.FinalPrice)
			assert.Equal(t, map[string]string{
				SourceKeyMargin:     SourceGlobalDefault,
				SourceKeyCommission: SourceGlobalDefault,
				SourceKeyTax:        "Region SP",
			}, resp.Details)

			// First use persists the fallback for the tenant
			assert.Equal(t, int64(1), countRows(t, env, &models.PricingDefaults{}, "tenant_id = ?", tenantID))
		})

		t.Run("LowercaseRegion", func(t *testing.T) {
			req := priceRequest()
			req.Region = "sp"
			resp, err := env.pricing.CalculatePrice(ctx, tenantID, req)
			require.NoError(t, err)
			assert.Equal(t, "SP", resp.Region)
			assert.Equal(t, "1834.25", resp.FinalPrice)
		})

		t.Run("Overrides", func(t *testing.T) {
			req := priceRequest()
			req.MarginOverride = decPtr("0.30")
			req.CommissionOverride = decPtr("0")
			req.TaxOverride = decPtr("0.10")
			req.Region = "XX"

			resp, err := env.pricing.CalculatePrice(ctx, tenantID, req)
			require.NoError(t, err)
			assert.Equal(t, "1808.95", resp.FinalPrice)
			assert.Equal(t, SourceOverride, resp.Details[SourceKeyMargin])
			assert.Equal(t, SourceOverride, resp.Details[SourceKeyCommission])
			assert.Equal(t, SourceOverride, resp.Details[SourceKeyTax])
		})

		t.Run("Deterministic", func(t *testing.T) {
			first, err := env.pricing.CalculatePrice(ctx, tenantID, priceRequest())
			require.NoError(t, err)
			second, err := env.pricing.CalculatePrice(ctx, tenantID, priceRequest())
			require.NoError(t, err)
			assert.Equal(t, first, second)
		})

		t.Run("ValidationFailures", func(t *testing.T) {
			req := priceRequest()
			req.PowerKW = decPtr("0")
			_, err := env.pricing.CalculatePrice(ctx, tenantID, req)
			assert.True(t, IsPowerNotPositive(err))

			req = priceRequest()
			req.PowerKW = nil
			_, err = env.pricing.CalculatePrice(ctx, tenantID, req)
			assert.True(t, IsPowerNotPositive(err))

			req = priceRequest()
			req.MarginOverride = decPtr("1")
			_, err = env.pricing.CalculatePrice(ctx, tenantID, req)
			assert.True(t, IsOverrideOutOfRange(err))

			req = priceRequest()
			req.CommissionOverride = decPtr("0.12345")
			_, err = env.pricing.CalculatePrice(ctx, tenantID, req)
			assert.True(t, IsOverrideOutOfRange(err))

			req = priceRequest()
			req.TaxOverride = decPtr("-0.01")
			_, err = env.pricing.CalculatePrice(ctx, tenantID, req)
			assert.True(t, IsOverrideOutOfRange(err))

			req = priceRequest()
			req.AdditionalCosts = decPtr("-1")
			_, err = env.pricing.CalculatePrice(ctx, tenantID, req)
			assert.True(t, IsAdditionalCostsNegative(err))

			req = priceRequest()
			req.Date = utils.ToPtr("2025-02-30")
			_, err = env.pricing.CalculatePrice(ctx, tenantID, req)
			assert.True(t, IsInvalidDate(err))

			req = priceRequest()
			req.Region = "  "
			_, err = env.pricing.CalculatePrice(ctx, tenantID, req)
			assert.True(t, IsValidationError(err))
		})

		t.Run("ResolutionFailures", func(t *testing.T) {
			req := priceRequest()
			req.Date = utils.ToPtr("2024-12-31")
			_, err := env.pricing.CalculatePrice(ctx, tenantID, req)
			assert.True(t, IsNoActiveRateTable(err))

			req = priceRequest()
			req.PowerKW = decPtr("12")
			_, err = env.pricing.CalculatePrice(ctx, tenantID, req)
			assert.True(t, IsNoBandForPower(err))

			req = priceRequest()
			req.Region = "XX"
			resp, err := env.pricing.CalculatePrice(ctx, tenantID, req)
			assert.Nil(t, resp)
			assert.True(t, IsRegionNotFound(err))
		})

		t.Run("PinnedTableOfOtherTenant", func(t *testing.T) {
			req := priceRequest()
			req.RateTableID = &table.ID
			_, err := env.pricing.CalculatePrice(ctx, 2, req)
			assert.True(t, IsRateTableNotFound(err))
		})
	})
}

func TestPricingFlowDateDefaultsToToday(t *testing.T) {
	withFlowEnv(t, func(env *flowEnv) {
		seed := standardTable(1)
		seed.Start = utils.FormatDate(utils.UTCToday().AddDate(0, 0, -1))
		seed.End = utils.FormatDate(utils.UTCToday().AddDate(0, 0, 1))
		_, err := env.fixtures.CreateTestRateTable(seed)
		require.NoError(t, err)

		req := priceRequest()
		req.Date = nil
		resp, err := env.pricing.CalculatePrice(context.Background(), 1, req)
		require.NoError(t, err)
		assert.Equal(t, utils.FormatDate(utils.UTCToday()), resp.Date)
	})
}

func TestPricingFlowDefaults(t *testing.T) {
	withFlowEnv(t, func(env *flowEnv) {
		ctx := context.Background()
		actor := Actor{TenantID: 4, UserID: 1}

		_, err := env.fixtures.CreateTestRateTable(standardTable(actor.TenantID))
		require.NoError(t, err)

		t.Run("GetCreatesFallback", func(t *testing.T) {
			defaults, err := env.pricing.GetPricingDefaults(ctx, actor.TenantID)
			require.NoError(t, err)
			assert.Equal(t, "0.2000", defaults.MarginRate)
			assert.Equal(t, "0.0500", defaults.CommissionRate)

			_, err = env.pricing.GetPricingDefaults(ctx, actor.TenantID)
			require.NoError(t, err)
			assert.Equal(t, int64(1), countRows(t, env, &models.PricingDefaults{}, "tenant_id = ?", actor.TenantID))
		})

		t.Run("UpdateRequiresField", func(t *testing.T) {
			_, err := env.pricing.UpdatePricingDefaults(ctx, actor, &dto.UpdatePricingDefaultsRequest{}, nil)
			assert.True(t, IsRateTableUpdateRequired(err))
		})

		t.Run("UpdateOutOfRange", func(t *testing.T) {
			_, err := env.pricing.UpdatePricingDefaults(ctx, actor, &dto.UpdatePricingDefaultsRequest{MarginRate: decPtr("1.5")}, nil)
			assert.True(t, IsOverrideOutOfRange(err))
		})

		t.Run("UpdateTooManyPlaces", func(t *testing.T) {
			_, err := env.pricing.UpdatePricingDefaults(ctx, actor, &dto.UpdatePricingDefaultsRequest{CommissionRate: decPtr("0.05005")}, nil)
			require.Error(t, err)
			assert.True(t, IsOverrideOutOfRange(err))

			defaults, err := env.pricing.GetPricingDefaults(ctx, actor.TenantID)
			require.NoError(t, err)
			assert.Equal(t, "0.0500", defaults.CommissionRate)
		})

		t.Run("UpdateFeedsCalculation", func(t *testing.T) {
			updated, err := env.pricing.UpdatePricingDefaults(ctx, actor, &dto.UpdatePricingDefaultsRequest{MarginRate: decPtr("0.30")}, nil)
			require.NoError(t, err)
			assert.Equal(t, "0.3000", updated.MarginRate)
			assert.Equal(t, "0.0500", updated.CommissionRate)

			resp, err := env.pricing.CalculatePrice(ctx, actor.TenantID, priceRequest())
			require.NoError(t, err)
			assert.Equal(t, "0.3000", resp.MarginRate)
			assert.Equal(t, "379.50", resp.MarginValue)
			assert.Equal(t, SourceGlobalDefault, resp.Details[SourceKeyMargin])
		})

		t.Run("TenantsIndependent", func(t *testing.T) {
			_, err := env.fixtures.CreateTestPricingDefaults(5, "0.10", "0.02")
			require.NoError(t, err)

			mine, err := env.pricing.GetPricingDefaults(ctx, actor.TenantID)
			require.NoError(t, err)
			theirs, err := env.pricing.GetPricingDefaults(ctx, 5)
			require.NoError(t, err)
			assert.Equal(t, "0.3000", mine.MarginRate)
			assert.Equal(t, "0.1000", theirs.MarginRate)
		})
	})
}
