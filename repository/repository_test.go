package repository_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sunops/sunops-backend/models"
	"github.com/sunops/sunops-backend/repository"
	testingutil "github.com/sunops/sunops-backend/testing"
	"github.com/sunops/sunops-backend/utils"
	"gorm.io/gorm"
)

func TestRateTableRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewRateTableRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		q1, err := fixtures.CreateTestRateTable(testingutil.RateTableSpec{TenantID: 1, Name: "Q1", Start: "2025-01-01", End: "2025-03-31", Active: true})
		require.NoError(t, err)
		h1, err := fixtures.CreateTestRateTable(testingutil.RateTableSpec{TenantID: 1, Name: "H1", Start: "2025-01-01", End: "2025-06-30", Active: true})
		require.NoError(t, err)
		_, err = fixtures.CreateTestRateTable(testingutil.RateTableSpec{TenantID: 1, Name: "Draft", Start: "2025-01-01", End: "2025-12-31", Active: false})
		require.NoError(t, err)
		other, err := fixtures.CreateTestRateTable(testingutil.RateTableSpec{TenantID: 2, Name: "Other", Start: "2025-01-01", End: "2025-12-31", Active: true})
		require.NoError(t, err)

		t.Run("ByTenantAndID", func(t *testing.T) {
			table, err := repo.ByTenantAndID(ctx, 1, q1.ID)
			require.NoError(t, err)
			require.NotNil(t, table)
			assert.Equal(t, "Q1", table.Name)
		})

		t.Run("ByTenantAndIDOtherTenant", func(t *testing.T) {
			table, err := repo.ByTenantAndID(ctx, 1, other.ID)
			assert.NoError(t, err)
			assert.Nil(t, table)
		})

		t.Run("ActiveForDateOrdersByLatestEnd", func(t *testing.T) {
			tables, err := repo.ActiveForDate(ctx, 1, testingutil.Date("2025-02-01"))
			require.NoError(t, err)
			require.Len(t, tables, 2)
			assert.Equal(t, h1.ID, tables[0].ID)
			assert.Equal(t, q1.ID, tables[1].ID)
		})

		t.Run("ActiveForDateBoundsAreInclusive", func(t *testing.T) {
			tables, err := repo.ActiveForDate(ctx, 1, testingutil.Date("2025-03-31"))
			require.NoError(t, err)
			assert.Len(t, tables, 2)

			tables, err = repo.ActiveForDate(ctx, 1, testingutil.Date("2025-04-01"))
			require.NoError(t, err)
			require.Len(t, tables, 1)
			assert.Equal(t, h1.ID, tables[0].ID)
		})

		t.Run("ActiveForDateOutsideEveryWindow", func(t *testing.T) {
			tables, err := repo.ActiveForDate(ctx, 1, testingutil.Date("2026-01-01"))
			require.NoError(t, err)
			assert.Empty(t, tables)
		})

		t.Run("Count", func(t *testing.T) {
			tenant := uint(1)
			count, err := repo.Count(ctx, models.RateTableFilter{TenantID: &tenant})
			require.NoError(t, err)
			assert.Equal(t, int64(3), count)

			count, err = repo.Count(ctx, models.RateTableFilter{TenantID: &tenant, Active: utils.ToPtr(true)})
			require.NoError(t, err)
			assert.Equal(t, int64(2), count)
		})

		t.Run("LockByTenantAndIDInsideTransaction", func(t *testing.T) {
			err := repository.WithTransaction(ctx, testDB.DB, func(txCtx context.Context) error {
				table, err := repo.LockByTenantAndID(txCtx, 1, q1.ID)
				if err != nil {
					return err
				}
				if table == nil {
					return errors.New("locked table not found")
				}
				table.Name = "Q1 renamed"
				return repo.Update(txCtx, table)
			})
			require.NoError(t, err)

			table, err := repo.ByID(ctx, q1.ID)
			require.NoError(t, err)
			assert.Equal(t, "Q1 renamed", table.Name)
		})

		t.Run("TransactionRollsBack", func(t *testing.T) {
			sentinel := errors.New("abort")
			err := repository.WithTransaction(ctx, testDB.DB, func(txCtx context.Context) error {
				if err := repo.DeleteByID(txCtx, h1.ID); err != nil {
					return err
				}
				return sentinel
			})
			assert.ErrorIs(t, err, sentinel)

			table, err := repo.ByID(ctx, h1.ID)
			require.NoError(t, err)
			assert.NotNil(t, table)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestPowerBandRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewPowerBandRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		first, err := fixtures.CreateTestRateTable(testingutil.RateTableSpec{
			TenantID: 1, Name: "A", Start: "2025-01-01", End: "2025-12-31", Active: true,
			Bands: []testingutil.BandSpec{
				{Label: "Large", Min: "10", Max: "50", UnitPrice: "0.20"},
				{Label: "Small", Min: "0", Max: "10", UnitPrice: "0.25"},
			},
		})
		require.NoError(t, err)
		second, err := fixtures.CreateTestRateTable(testingutil.RateTableSpec{
			TenantID: 1, Name: "B", Start: "2025-01-01", End: "2025-12-31", Active: true,
			Bands: []testingutil.BandSpec{{Label: "Only", Min: "0", Max: "100", UnitPrice: "0.30"}},
		})
		require.NoError(t, err)

		t.Run("ListByRateTableOrdersByPowerMin", func(t *testing.T) {
			bands, err := repo.ListByRateTable(ctx, first.ID)
			require.NoError(t, err)
			require.Len(t, bands, 2)
			assert.Equal(t, "Small", bands[0].Label)
			assert.Equal(t, "Large", bands[1].Label)
		})

		t.Run("DecimalPrecisionSurvivesStorage", func(t *testing.T) {
			bands, err := repo.ListByRateTable(ctx, second.ID)
			require.NoError(t, err)
			require.Len(t, bands, 1)
			assert.True(t, bands[0].UnitPrice.Equal(decimal.RequireFromString("0.30")))
			assert.True(t, bands[0].PowerMax.Equal(decimal.NewFromInt(100)))
		})

		t.Run("ListByRateTables", func(t *testing.T) {
			bands, err := repo.ListByRateTables(ctx, []uint{first.ID, second.ID})
			require.NoError(t, err)
			assert.Len(t, bands, 3)

			bands, err = repo.ListByRateTables(ctx, nil)
			require.NoError(t, err)
			assert.Empty(t, bands)
		})

		t.Run("DeleteByRateTable", func(t *testing.T) {
			require.NoError(t, repo.DeleteByRateTable(ctx, first.ID))

			bands, err := repo.ListByRateTable(ctx, first.ID)
			require.NoError(t, err)
			assert.Empty(t, bands)

			bands, err = repo.ListByRateTable(ctx, second.ID)
			require.NoError(t, err)
			assert.Len(t, bands, 1)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestRegionTaxRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewRegionTaxRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		table, err := fixtures.CreateTestRateTable(testingutil.RateTableSpec{
			TenantID: 1, Name: "A", Start: "2025-01-01", End: "2025-12-31", Active: true,
			Regions: []testingutil.RegionSpec{{Code: "sp", TaxRate: "0.16"}, {Code: "MG", TaxRate: "0.18"}},
		})
		require.NoError(t, err)

		t.Run("ByRateTableAndCodeIsCaseInsensitive", func(t *testing.T) {
			region, err := repo.ByRateTableAndCode(ctx, table.ID, " Sp ")
			require.NoError(t, err)
			require.NotNil(t, region)
			assert.Equal(t, "SP", region.RegionCode)
			assert.True(t, region.TaxRate.Equal(decimal.RequireFromString("0.16")))
		})

		t.Run("ByRateTableAndCodeMissing", func(t *testing.T) {
			region, err := repo.ByRateTableAndCode(ctx, table.ID, "XX")
			assert.NoError(t, err)
			assert.Nil(t, region)
		})

		t.Run("ListByRateTableOrdersByCode", func(t *testing.T) {
			regions, err := repo.ListByRateTable(ctx, table.ID)
			require.NoError(t, err)
			require.Len(t, regions, 2)
			assert.Equal(t, "MG", regions[0].RegionCode)
			assert.Equal(t, "SP", regions[1].RegionCode)
		})

		t.Run("DuplicateCodeIsRejected", func(t *testing.T) {
			err := repo.Save(ctx, &models.RegionTax{
				RateTableID: table.ID,
				RegionCode:  "SP",
				TaxRate:     decimal.RequireFromString("0.10"),
			})
			require.Error(t, err)
			assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey), "expected duplicated key, got %v", err)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestPricingDefaultsRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewPricingDefaultsRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		_, err := fixtures.CreateTestPricingDefaults(1, "0.30", "0.04")
		require.NoError(t, err)

		t.Run("ByTenantID", func(t *testing.T) {
			row, err := repo.ByTenantID(ctx, 1)
			require.NoError(t, err)
			require.NotNil(t, row)
			assert.Equal(t, "0.3000", row.MarginRate.StringFixed(4))
			assert.Equal(t, "0.0400", row.CommissionRate.StringFixed(4))
		})

		t.Run("ByTenantIDMissing", func(t *testing.T) {
			row, err := repo.ByTenantID(ctx, 2)
			assert.NoError(t, err)
			assert.Nil(t, row)
		})

		t.Run("OneRowPerTenant", func(t *testing.T) {
			err := repo.Save(ctx, &models.PricingDefaults{
				TenantID:       1,
				MarginRate:     decimal.RequireFromString("0.10"),
				CommissionRate: decimal.RequireFromString("0.10"),
			})
			require.Error(t, err)
			assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey), "expected duplicated key, got %v", err)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestUserRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewUserRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		user, err := fixtures.CreateTestUser(7, models.UserRoleManager)
		require.NoError(t, err)

		t.Run("ByEmailNormalizes", func(t *testing.T) {
			found, err := repo.ByEmail(ctx, "  "+strings.ToUpper(user.Email)+" ")
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, user.ID, found.ID)
			assert.Equal(t, uint(7), found.TenantID)
		})

		t.Run("ByEmailMissing", func(t *testing.T) {
			found, err := repo.ByEmail(ctx, "nobody@example.com")
			assert.NoError(t, err)
			assert.Nil(t, found)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestAuditLogRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewAuditLogRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()

		entries := []*models.AuditLog{
			{TenantID: utils.ToPtr(uint(1)), Action: models.AuditActionRateTableCreated, Success: utils.ToPtr(true)},
			{TenantID: utils.ToPtr(uint(1)), Action: models.AuditActionBandCreated, Success: utils.ToPtr(false), ErrorMessage: utils.ToPtr("overlap")},
			{TenantID: utils.ToPtr(uint(2)), Action: models.AuditActionRateTableCreated, Success: utils.ToPtr(true)},
		}
		require.NoError(t, repo.SaveBatch(ctx, entries))

		t.Run("ListByTenant", func(t *testing.T) {
			rows, err := repo.ListByTenant(ctx, 1, 10, 0)
			require.NoError(t, err)
			assert.Len(t, rows, 2)
		})

		t.Run("ListByAction", func(t *testing.T) {
			rows, err := repo.ListByAction(ctx, models.AuditActionRateTableCreated, 10, 0)
			require.NoError(t, err)
			assert.Len(t, rows, 2)
		})

		t.Run("ListFailedActions", func(t *testing.T) {
			rows, err := repo.ListFailedActions(ctx, 10, 0)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.True(t, rows[0].IsFailed())
			assert.Equal(t, "overlap", *rows[0].ErrorMessage)
		})

		return nil
	})
	require.NoError(t, err)
}
