package businessflow

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sunops/sunops-backend/models"
	"github.com/sunops/sunops-backend/repository"
	"github.com/sunops/sunops-backend/utils"
)

// Selection is the resolved pricing context for one calculation.
// Region is nil only when the tax rate was overridden and the table has no entry for the code.
type Selection struct {
	RateTable *models.RateTable
	Band      *models.PowerBand
	Region    *models.RegionTax
}

// RateTableSelector resolves which rate table, band and region tax apply to a request
type RateTableSelector struct {
	rateTableRepo repository.RateTableRepository
	bandRepo      repository.PowerBandRepository
	regionRepo    repository.RegionTaxRepository
}

// NewRateTableSelector creates a selector over the rate table store
func NewRateTableSelector(
	rateTableRepo repository.RateTableRepository,
	bandRepo repository.PowerBandRepository,
	regionRepo repository.RegionTaxRepository,
) *RateTableSelector {
	return &RateTableSelector{
		rateTableRepo: rateTableRepo,
		bandRepo:      bandRepo,
		regionRepo:    regionRepo,
	}
}

// ResolveRateTable returns the pinned table when rateTableID is set, ignoring active and vigency.
// Otherwise it returns the active table covering date with the latest vigency end; ties go to the highest id.
func (s *RateTableSelector) ResolveRateTable(ctx context.Context, tenantID uint, date time.Time, rateTableID *uint) (*models.RateTable, error) {
	if rateTableID != nil {
		table, err := s.rateTableRepo.ByTenantAndID(ctx, tenantID, *rateTableID)
		if err != nil {
			return nil, err
		}
		if table == nil {
			return nil, detailf(ErrRateTableNotFound, "rate table %d", *rateTableID)
		}
		return table, nil
	}

	candidates, err := s.rateTableRepo.ActiveForDate(ctx, tenantID, utils.DateOnly(date))
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, detailf(ErrNoActiveRateTable, "no active pricing policy for %s", utils.FormatDate(date))
	}
	return candidates[0], nil
}

// Resolve runs table, band and region resolution in order and stops at the first miss
func (s *RateTableSelector) Resolve(ctx context.Context, tenantID uint, date time.Time, rateTableID *uint, powerKW decimal.Decimal, regionCode string, taxOverridden bool) (*Selection, error) {
	table, err := s.ResolveRateTable(ctx, tenantID, date, rateTableID)
	if err != nil {
		return nil, err
	}

	bands, err := s.bandRepo.ListByRateTable(ctx, table.ID)
	if err != nil {
		return nil, err
	}
	band, err := ResolveBand(table, bands, powerKW)
	if err != nil {
		return nil, err
	}

	regions, err := s.regionRepo.ListByRateTable(ctx, table.ID)
	if err != nil {
		return nil, err
	}
	region, err := ResolveRegion(table, regions, regionCode, taxOverridden)
	if err != nil {
		return nil, err
	}

	return &Selection{RateTable: table, Band: band, Region: region}, nil
}

// ResolveBand returns the band with PowerMin <= powerKW <= PowerMax.
// On a shared boundary the band with the lowest PowerMin wins, then the lowest id.
func ResolveBand(table *models.RateTable, bands []*models.PowerBand, powerKW decimal.Decimal) (*models.PowerBand, error) {
	ordered := make([]*models.PowerBand, len(bands))
	copy(ordered, bands)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].PowerMin.Equal(ordered[j].PowerMin) {
			return ordered[i].PowerMin.LessThan(ordered[j].PowerMin)
		}
		return ordered[i].ID < ordered[j].ID
	})

	for _, band := range ordered {
		if band.Contains(powerKW) {
			return band, nil
		}
	}
	return nil, detailf(ErrNoBandForPower, "no band in rate table '%s' covers %s kW", table.Name, powerKW)
}

// ResolveRegion performs a case-insensitive lookup over a loaded region set.
// A missing entry is an error unless taxOverridden is set, in which case it returns nil.
func ResolveRegion(table *models.RateTable, regions []*models.RegionTax, regionCode string, taxOverridden bool) (*models.RegionTax, error) {
	code := models.NormalizeRegionCode(regionCode)
	for _, region := range regions {
		if models.NormalizeRegionCode(region.RegionCode) == code {
			return region, nil
		}
	}
	if taxOverridden {
		return nil, nil
	}
	return nil, detailf(ErrRegionNotFound, "region %s has no tax entry in rate table '%s'", code, table.Name)
}
