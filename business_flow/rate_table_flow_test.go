package businessflow

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sunops/sunops-backend/app/dto"
	"github.com/sunops/sunops-backend/models"
	testingutil "github.com/sunops/sunops-backend/testing"
	"github.com/sunops/sunops-backend/utils"
	"github.com/xuri/excelize/v2"
)

func createRequest() *dto.CreateRateTableRequest {
	return &dto.CreateRateTableRequest{
		Name:         "Tabela Q1 2025",
		VigencyStart: "2025-01-01",
		VigencyEnd:   "2025-03-31",
		Bands: []dto.PowerBandRequest{
			{Label: "Até 5 kWp", PowerMin: decPtr("0"), PowerMax: decPtr("5"), UnitPrice: decPtr("0.25")},
			{Label: "5 a 10 kWp", PowerMin: decPtr("5"), PowerMax: decPtr("10"), UnitPrice: decPtr("0.23")},
		},
		Regions: []dto.RegionTaxRequest{
			{RegionCode: "sp", TaxRate: decPtr("0.16")},
			{RegionCode: "RJ", TaxRate: decPtr("0.18")},
		},
	}
}

func bandRequest(label, min, max string) *dto.PowerBandRequest {
	return &dto.PowerBandRequest{Label: label, PowerMin: decPtr(min), PowerMax: decPtr(max), UnitPrice: decPtr("0.20")}
}

func countRows(t *testing.T, env *flowEnv, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, env.db.DB.Model(model).Where(where, args...).Count(&n).Error)
	return n
}

func TestRateTableFlowCreate(t *testing.T) {
	withFlowEnv(t, func(env *flowEnv) {
		ctx := context.Background()
		actor := Actor{TenantID: 1, UserID: 10}
		metadata := NewClientMetadata("127.0.0.1", "test-agent")

		t.Run("Success", func(t *testing.T) {
			created, err := env.rateFlow.CreateRateTable(ctx, actor, createRequest(), metadata)
			require.NoError(t, err)
			require.NotNil(t, created)

			assert.NotZero(t, created.ID)
			assert.True(t, created.Active, "active defaults to true")
			assert.Equal(t, "2025-01-01", created.VigencyStart)
			assert.Equal(t, "2025-03-31", created.VigencyEnd)
			require.Len(t, created.Bands, 2)
			assert.Equal(t, 0, created.Bands[0].SortOrder)
			assert.Equal(t, 1, created.Bands[1].SortOrder)
			assert.Equal(t, "0.2500", created.Bands[0].UnitPrice)
			require.Len(t, created.Regions, 2)
			assert.Equal(t, "SP", created.Regions[0].RegionCode)

			fetched, err := env.rateFlow.GetRateTable(ctx, actor.TenantID, created.ID)
			require.NoError(t, err)
			assert.Len(t, fetched.Bands, 2)
			assert.Len(t, fetched.Regions, 2)

			assert.Equal(t, int64(1), countRows(t, env, &models.AuditLog{}, "action = ? AND success = ?",
				models.AuditActionRateTableCreated, true))
		})

		t.Run("OverlappingBandsRejectedAtomically", func(t *testing.T) {
			req := createRequest()
			req.Name = "Broken"
			req.Bands = []dto.PowerBandRequest{*bandRequest("Small", "0", "4"), *bandRequest("Medium", "3", "6")}

			_, err := env.rateFlow.CreateRateTable(ctx, actor, req, metadata)
			require.Error(t, err)
			assert.True(t, IsBandOverlap(err))
			assert.Contains(t, err.Error(), "Small")
			assert.Contains(t, err.Error(), "Medium")
			assert.Equal(t, int64(0), countRows(t, env, &models.RateTable{}, "name = ?", "Broken"))
		})

		t.Run("ZeroWidthBandRejectedInAnyOrder", func(t *testing.T) {
			wide, point := *bandRequest("Wide", "3", "8"), *bandRequest("Point", "3", "3")
			for _, bands := range [][]dto.PowerBandRequest{{wide, point}, {point, wide}} {
				req := createRequest()
				req.Name = "ZeroWidth"
				req.Bands = bands

				_, err := env.rateFlow.CreateRateTable(ctx, actor, req, metadata)
				require.Error(t, err)
				assert.True(t, IsBandInvalid(err))
				assert.Contains(t, err.Error(), "Point")
			}
			assert.Equal(t, int64(0), countRows(t, env, &models.RateTable{}, "name = ?", "ZeroWidth"))
		})

		t.Run("ExcessPrecisionRejected", func(t *testing.T) {
			req := createRequest()
			req.Name = "Precise"
			req.Bands[0].UnitPrice = decPtr("0.23456")
			_, err := env.rateFlow.CreateRateTable(ctx, actor, req, metadata)
			assert.True(t, IsBandInvalid(err))

			req = createRequest()
			req.Name = "Precise"
			req.Regions[0].TaxRate = decPtr("0.16555")
			_, err = env.rateFlow.CreateRateTable(ctx, actor, req, metadata)
			assert.True(t, IsRegionInvalid(err))

			assert.Equal(t, int64(0), countRows(t, env, &models.RateTable{}, "name = ?", "Precise"))
		})

		t.Run("VigencyEndBeforeStart", func(t *testing.T) {
			req := createRequest()
			req.VigencyStart, req.VigencyEnd = "2025-03-31", "2025-01-01"

			_, err := env.rateFlow.CreateRateTable(ctx, actor, req, metadata)
			assert.True(t, IsVigencyInvalid(err))
		})

		t.Run("MalformedDate", func(t *testing.T) {
			req := createRequest()
			req.VigencyStart = "01/01/2025"

			_, err := env.rateFlow.CreateRateTable(ctx, actor, req, metadata)
			assert.True(t, IsInvalidDate(err))
		})

		t.Run("DuplicateRegionInPayload", func(t *testing.T) {
			req := createRequest()
			req.Regions = append(req.Regions, dto.RegionTaxRequest{RegionCode: "Sp", TaxRate: decPtr("0.10")})

			_, err := env.rateFlow.CreateRateTable(ctx, actor, req, metadata)
			require.Error(t, err)
			assert.True(t, IsConflictError(err))
		})

		t.Run("InactiveAndEmptyChildren", func(t *testing.T) {
			req := &dto.CreateRateTableRequest{
				Name:         "Draft",
				VigencyStart: "2025-04-01",
				VigencyEnd:   "2025-04-01",
				Active:       utils.ToPtr(false),
			}
			created, err := env.rateFlow.CreateRateTable(ctx, actor, req, metadata)
			require.NoError(t, err)
			assert.False(t, created.Active)
			assert.Empty(t, created.Bands)
			assert.Empty(t, created.Regions)
		})
	})
}

func TestRateTableFlowTenantIsolation(t *testing.T) {
	withFlowEnv(t, func(env *flowEnv) {
		ctx := context.Background()
		owner := Actor{TenantID: 1, UserID: 1}
		intruder := Actor{TenantID: 2, UserID: 2}

		table, err := env.fixtures.CreateTestRateTable(standardTable(owner.TenantID))
		require.NoError(t, err)
		bandID, regionID := table.Bands[0].ID, table.Regions[0].ID

		_, err = env.rateFlow.GetRateTable(ctx, intruder.TenantID, table.ID)
		assert.True(t, IsRateTableNotFound(err))

		_, err = env.rateFlow.UpdateRateTable(ctx, intruder, table.ID, &dto.UpdateRateTableRequest{Name: utils.ToPtr("Hijacked")}, nil)
		assert.True(t, IsRateTableNotFound(err))

		err = env.rateFlow.DeleteRateTable(ctx, intruder, table.ID, nil)
		assert.True(t, IsRateTableNotFound(err))

		_, err = env.rateFlow.GetBand(ctx, intruder.TenantID, table.ID, bandID)
		assert.True(t, IsRateTableNotFound(err))

		_, err = env.rateFlow.AddBand(ctx, intruder, table.ID, bandRequest("Extra", "20", "30"), nil)
		assert.True(t, IsRateTableNotFound(err))

		_, err = env.rateFlow.UpdateBand(ctx, intruder, table.ID, bandID, &dto.UpdatePowerBandRequest{Label: utils.ToPtr("X")}, nil)
		assert.True(t, IsRateTableNotFound(err))

		err = env.rateFlow.DeleteBand(ctx, intruder, table.ID, bandID, nil)
		assert.True(t, IsRateTableNotFound(err))

		_, err = env.rateFlow.GetRegion(ctx, intruder.TenantID, table.ID, regionID)
		assert.True(t, IsRateTableNotFound(err))

		_, err = env.rateFlow.AddRegion(ctx, intruder, table.ID, &dto.RegionTaxRequest{RegionCode: "MG", TaxRate: decPtr("0.1")}, nil)
		assert.True(t, IsRateTableNotFound(err))

		_, err = env.rateFlow.UpdateRegion(ctx, intruder, table.ID, regionID, &dto.UpdateRegionTaxRequest{TaxRate: decPtr("0.1")}, nil)
		assert.True(t, IsRateTableNotFound(err))

		err = env.rateFlow.DeleteRegion(ctx, intruder, table.ID, regionID, nil)
		assert.True(t, IsRateTableNotFound(err))

		listing, err := env.rateFlow.ListRateTables(ctx, intruder.TenantID, nil)
		require.NoError(t, err)
		assert.Zero(t, listing.Total)

		// Nothing changed for the owner
		fetched, err := env.rateFlow.GetRateTable(ctx, owner.TenantID, table.ID)
		require.NoError(t, err)
		assert.Equal(t, "Q1", fetched.Name)
		assert.Len(t, fetched.Bands, 1)
		assert.Len(t, fetched.Regions, 1)
	})
}

func TestRateTableFlowListAndExport(t *testing.T) {
	withFlowEnv(t, func(env *flowEnv) {
		ctx := context.Background()

		q1, err := env.fixtures.CreateTestRateTable(standardTable(1))
		require.NoError(t, err)

		q2 := standardTable(1)
		q2.Name, q2.Start, q2.End = "Q2", "2025-04-01", "2025-06-30"
		_, err = env.fixtures.CreateTestRateTable(q2)
		require.NoError(t, err)

		old := standardTable(1)
		old.Name, old.Active = "Old", false
		_, err = env.fixtures.CreateTestRateTable(old)
		require.NoError(t, err)

		t.Run("AllOrderedByVigencyEnd", func(t *testing.T) {
			listing, err := env.rateFlow.ListRateTables(ctx, 1, &dto.ListRateTablesRequest{})
			require.NoError(t, err)
			require.Equal(t, 3, listing.Total)
			assert.Equal(t, "Q2", listing.Items[0].Name)
			assert.Len(t, listing.Items[0].Bands, 1)
		})

		t.Run("ActiveOnlyAsOf", func(t *testing.T) {
			listing, err := env.rateFlow.ListRateTables(ctx, 1, &dto.ListRateTablesRequest{ActiveOnly: true, AsOf: "2025-02-15"})
			require.NoError(t, err)
			require.Equal(t, 1, listing.Total)
			assert.Equal(t, q1.ID, listing.Items[0].ID)
		})

		t.Run("BadAsOf", func(t *testing.T) {
			_, err := env.rateFlow.ListRateTables(ctx, 1, &dto.ListRateTablesRequest{AsOf: "2025-13-01"})
			assert.True(t, IsInvalidDate(err))
		})

		t.Run("Export", func(t *testing.T) {
			filename, content, err := env.rateFlow.ExportRateTables(ctx, 1, &dto.ListRateTablesRequest{ActiveOnly: true})
			require.NoError(t, err)
			assert.Regexp(t, `^premissas_\d{4}-\d{2}-\d{2}_[0-9a-f]{8}\.xlsx$`, filename)

			f, err := excelize.OpenReader(bytes.NewReader(content))
			require.NoError(t, err)
			defer f.Close()

			rows, err := f.GetRows("Premissas")
			require.NoError(t, err)
			assert.Len(t, rows, 3, "header plus two active tables")
		})
	})
}

func TestRateTableFlowUpdate(t *testing.T) {
	withFlowEnv(t, func(env *flowEnv) {
		ctx := context.Background()
		actor := Actor{TenantID: 1, UserID: 1}

		table, err := env.fixtures.CreateTestRateTable(standardTable(actor.TenantID))
		require.NoError(t, err)

		t.Run("NoFields", func(t *testing.T) {
			_, err := env.rateFlow.UpdateRateTable(ctx, actor, table.ID, &dto.UpdateRateTableRequest{}, nil)
			assert.True(t, IsRateTableUpdateRequired(err))
		})

		t.Run("MergedVigencyChecked", func(t *testing.T) {
			// New start alone lands after the stored end
			_, err := env.rateFlow.UpdateRateTable(ctx, actor, table.ID, &dto.UpdateRateTableRequest{VigencyStart: utils.ToPtr("2025-04-01")}, nil)
			require.Error(t, err)
			assert.True(t, IsVigencyInvalid(err))

			fetched, err := env.rateFlow.GetRateTable(ctx, actor.TenantID, table.ID)
			require.NoError(t, err)
			assert.Equal(t, "2025-01-01", fetched.VigencyStart)
		})

		t.Run("MergedVigencyAccepted", func(t *testing.T) {
			updated, err := env.rateFlow.UpdateRateTable(ctx, actor, table.ID, &dto.UpdateRateTableRequest{
				VigencyStart: utils.ToPtr("2025-04-01"),
				VigencyEnd:   utils.ToPtr("2025-12-31"),
			}, nil)
			require.NoError(t, err)
			assert.Equal(t, "2025-04-01", updated.VigencyStart)
			assert.Equal(t, "2025-12-31", updated.VigencyEnd)
			assert.Equal(t, "Q1", updated.Name)
			assert.Len(t, updated.Bands, 1)
		})

		t.Run("Deactivate", func(t *testing.T) {
			updated, err := env.rateFlow.UpdateRateTable(ctx, actor, table.ID, &dto.UpdateRateTableRequest{Active: utils.ToPtr(false)}, nil)
			require.NoError(t, err)
			assert.False(t, updated.Active)
		})
	})
}

func TestRateTableFlowDeleteCascades(t *testing.T) {
	withFlowEnv(t, func(env *flowEnv) {
		ctx := context.Background()
		actor := Actor{TenantID: 1, UserID: 1}

		table, err := env.fixtures.CreateTestRateTable(standardTable(actor.TenantID))
		require.NoError(t, err)
		keep, err := env.fixtures.CreateTestRateTable(standardTable(actor.TenantID))
		require.NoError(t, err)

		require.NoError(t, env.rateFlow.DeleteRateTable(ctx, actor, table.ID, nil))

		assert.Zero(t, countRows(t, env, &models.RateTable{}, "id = ?", table.ID))
		assert.Zero(t, countRows(t, env, &models.PowerBand{}, "rate_table_id = ?", table.ID))
		assert.Zero(t, countRows(t, env, &models.RegionTax{}, "rate_table_id = ?", table.ID))

		assert.Equal(t, int64(1), countRows(t, env, &models.PowerBand{}, "rate_table_id = ?", keep.ID))

		err = env.rateFlow.DeleteRateTable(ctx, actor, table.ID, nil)
		assert.True(t, IsRateTableNotFound(err))
	})
}

func TestRateTableFlowBands(t *testing.T) {
	withFlowEnv(t, func(env *flowEnv) {
		ctx := context.Background()
		actor := Actor{TenantID: 1, UserID: 1}

		seed := standardTable(actor.TenantID)
		seed.Bands = []testingutil.BandSpec{{Label: "Small", Min: "0", Max: "4", UnitPrice: "0.25"}}
		table, err := env.fixtures.CreateTestRateTable(seed)
		require.NoError(t, err)
		small := table.Bands[0]

		t.Run("OverlapRejected", func(t *testing.T) {
			_, err := env.rateFlow.AddBand(ctx, actor, table.ID, bandRequest("Medium", "3", "6"), nil)
			require.Error(t, err)
			assert.True(t, IsBandOverlap(err))
			assert.Contains(t, err.Error(), "'Small' [0, 4]")
			assert.Contains(t, err.Error(), "'Medium' [3, 6]")
			assert.Equal(t, int64(1), countRows(t, env, &models.PowerBand{}, "rate_table_id = ?", table.ID))
		})

		var medium *dto.PowerBandDTO
		t.Run("TouchingAccepted", func(t *testing.T) {
			var err error
			medium, err = env.rateFlow.AddBand(ctx, actor, table.ID, bandRequest("Medium", "4", "6"), nil)
			require.NoError(t, err)
			assert.Equal(t, 1, medium.SortOrder, "appended after existing siblings")
			assert.Equal(t, table.ID, medium.RateTableID)
		})

		t.Run("InvalidBand", func(t *testing.T) {
			_, err := env.rateFlow.AddBand(ctx, actor, table.ID, bandRequest("Inverted", "9", "7"), nil)
			assert.True(t, IsBandInvalid(err))
		})

		t.Run("UpdateExcludesSelf", func(t *testing.T) {
			require.NotNil(t, medium)
			updated, err := env.rateFlow.UpdateBand(ctx, actor, table.ID, medium.ID, &dto.UpdatePowerBandRequest{PowerMax: decPtr("8")}, nil)
			require.NoError(t, err)
			assert.Equal(t, "8", updated.PowerMax)
			assert.Equal(t, "Medium", updated.Label)
		})

		t.Run("UpdateIntoOverlap", func(t *testing.T) {
			_, err := env.rateFlow.UpdateBand(ctx, actor, table.ID, small.ID, &dto.UpdatePowerBandRequest{PowerMax: decPtr("5")}, nil)
			assert.True(t, IsBandOverlap(err))
		})

		t.Run("BandOfAnotherTable", func(t *testing.T) {
			other, err := env.fixtures.CreateTestRateTable(standardTable(actor.TenantID))
			require.NoError(t, err)

			_, err = env.rateFlow.GetBand(ctx, actor.TenantID, other.ID, small.ID)
			assert.True(t, IsBandNotFound(err))

			err = env.rateFlow.DeleteBand(ctx, actor, other.ID, small.ID, nil)
			assert.True(t, IsBandNotFound(err))
		})

		t.Run("Delete", func(t *testing.T) {
			require.NoError(t, env.rateFlow.DeleteBand(ctx, actor, table.ID, small.ID, nil))
			_, err := env.rateFlow.GetBand(ctx, actor.TenantID, table.ID, small.ID)
			assert.True(t, IsBandNotFound(err))
		})
	})
}

func TestRateTableFlowConcurrentAddBand(t *testing.T) {
	withFlowEnv(t, func(env *flowEnv) {
		ctx := context.Background()
		actor := Actor{TenantID: 1, UserID: 1}

		seed := standardTable(actor.TenantID)
		seed.Bands = nil
		table, err := env.fixtures.CreateTestRateTable(seed)
		require.NoError(t, err)

		// The exactly-one outcome holds on both backends. The parent row lock only runs on
		// PostgreSQL (TEST_DB_HOST); SQLite's single pooled connection serializes the two
		// transactions before either reaches the lock.
		requests := []*dto.PowerBandRequest{bandRequest("A", "0", "5"), bandRequest("B", "3", "8")}
		errs := make([]error, len(requests))

		var wg sync.WaitGroup
		for i, req := range requests {
			wg.Add(1)
			go func(i int, req *dto.PowerBandRequest) {
				defer wg.Done()
				_, errs[i] = env.rateFlow.AddBand(ctx, actor, table.ID, req, nil)
			}(i, req)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.True(t, IsBandOverlap(err), "unexpected error: %v", err)
		}
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, int64(1), countRows(t, env, &models.PowerBand{}, "rate_table_id = ?", table.ID))
	})
}

func TestRateTableFlowRegions(t *testing.T) {
	withFlowEnv(t, func(env *flowEnv) {
		ctx := context.Background()
		actor := Actor{TenantID: 1, UserID: 1}

		table, err := env.fixtures.CreateTestRateTable(standardTable(actor.TenantID))
		require.NoError(t, err)

		t.Run("DuplicateCodeConflict", func(t *testing.T) {
			_, err := env.rateFlow.AddRegion(ctx, actor, table.ID, &dto.RegionTaxRequest{RegionCode: "sp", TaxRate: decPtr("0.17")}, nil)
			require.Error(t, err)
			assert.True(t, IsRegionAlreadyExists(err))
			assert.True(t, IsConflictError(err))
		})

		t.Run("RateOutOfRange", func(t *testing.T) {
			_, err := env.rateFlow.AddRegion(ctx, actor, table.ID, &dto.RegionTaxRequest{RegionCode: "MG", TaxRate: decPtr("1")}, nil)
			assert.True(t, IsRegionInvalid(err))
		})

		var rj *dto.RegionTaxDTO
		t.Run("Add", func(t *testing.T) {
			var err error
			rj, err = env.rateFlow.AddRegion(ctx, actor, table.ID, &dto.RegionTaxRequest{
				RegionCode: "rj",
				TaxRate:    decPtr("0.18"),
				Notes:      utils.ToPtr("ICMS"),
			}, nil)
			require.NoError(t, err)
			assert.Equal(t, "RJ", rj.RegionCode)
			assert.Equal(t, "0.1800", rj.TaxRate)
		})

		t.Run("RenameOntoExistingCode", func(t *testing.T) {
			require.NotNil(t, rj)
			_, err := env.rateFlow.UpdateRegion(ctx, actor, table.ID, rj.ID, &dto.UpdateRegionTaxRequest{RegionCode: utils.ToPtr("SP")}, nil)
			assert.True(t, IsRegionAlreadyExists(err))
		})

		t.Run("UpdateRate", func(t *testing.T) {
			require.NotNil(t, rj)
			updated, err := env.rateFlow.UpdateRegion(ctx, actor, table.ID, rj.ID, &dto.UpdateRegionTaxRequest{TaxRate: decPtr("0.2")}, nil)
			require.NoError(t, err)
			assert.Equal(t, "0.2000", updated.TaxRate)
			assert.Equal(t, "RJ", updated.RegionCode)
		})

		t.Run("Delete", func(t *testing.T) {
			require.NotNil(t, rj)
			require.NoError(t, env.rateFlow.DeleteRegion(ctx, actor, table.ID, rj.ID, nil))
			_, err := env.rateFlow.GetRegion(ctx, actor.TenantID, table.ID, rj.ID)
			assert.True(t, IsRegionNotFound(err))
		})
	})
}
