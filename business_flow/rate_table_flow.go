package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sunops/sunops-backend/app/dto"
	"github.com/sunops/sunops-backend/app/services"
	"github.com/sunops/sunops-backend/models"
	"github.com/sunops/sunops-backend/repository"
	"github.com/sunops/sunops-backend/utils"
	"gorm.io/gorm"
)

// RateTableFlow handles rate tables ("premissas") and their bands and regions
type RateTableFlow interface {
	ListRateTables(ctx context.Context, tenantID uint, req *dto.ListRateTablesRequest) (*dto.ListRateTablesResponse, error)
	ExportRateTables(ctx context.Context, tenantID uint, req *dto.ListRateTablesRequest) (filename string, content []byte, err error)
	GetRateTable(ctx context.Context, tenantID, id uint) (*dto.RateTableDTO, error)
	CreateRateTable(ctx context.Context, actor Actor, req *dto.CreateRateTableRequest, metadata *ClientMetadata) (*dto.RateTableDTO, error)
	UpdateRateTable(ctx context.Context, actor Actor, id uint, req *dto.UpdateRateTableRequest, metadata *ClientMetadata) (*dto.RateTableDTO, error)
	DeleteRateTable(ctx context.Context, actor Actor, id uint, metadata *ClientMetadata) error

	GetBand(ctx context.Context, tenantID, rateTableID, bandID uint) (*dto.PowerBandDTO, error)
	AddBand(ctx context.Context, actor Actor, rateTableID uint, req *dto.PowerBandRequest, metadata *ClientMetadata) (*dto.PowerBandDTO, error)
	UpdateBand(ctx context.Context, actor Actor, rateTableID, bandID uint, req *dto.UpdatePowerBandRequest, metadata *ClientMetadata) (*dto.PowerBandDTO, error)
	DeleteBand(ctx context.Context, actor Actor, rateTableID, bandID uint, metadata *ClientMetadata) error

	GetRegion(ctx context.Context, tenantID, rateTableID, regionID uint) (*dto.RegionTaxDTO, error)
	AddRegion(ctx context.Context, actor Actor, rateTableID uint, req *dto.RegionTaxRequest, metadata *ClientMetadata) (*dto.RegionTaxDTO, error)
	UpdateRegion(ctx context.Context, actor Actor, rateTableID, regionID uint, req *dto.UpdateRegionTaxRequest, metadata *ClientMetadata) (*dto.RegionTaxDTO, error)
	DeleteRegion(ctx context.Context, actor Actor, rateTableID, regionID uint, metadata *ClientMetadata) error
}

// RateTableFlowImpl implements the rate table business flow
type RateTableFlowImpl struct {
	rateTableRepo repository.RateTableRepository
	bandRepo      repository.PowerBandRepository
	regionRepo    repository.RegionTaxRepository
	auditRepo     repository.AuditLogRepository
	cache         services.RateTableCache
	exporter      services.RateTableExporter
	db            *gorm.DB
}

// NewRateTableFlow creates a new rate table flow instance
func NewRateTableFlow(
	rateTableRepo repository.RateTableRepository,
	bandRepo repository.PowerBandRepository,
	regionRepo repository.RegionTaxRepository,
	auditRepo repository.AuditLogRepository,
	cache services.RateTableCache,
	exporter services.RateTableExporter,
	db *gorm.DB,
) RateTableFlow {
	return &RateTableFlowImpl{
		rateTableRepo: rateTableRepo,
		bandRepo:      bandRepo,
		regionRepo:    regionRepo,
		auditRepo:     auditRepo,
		cache:         cache,
		exporter:      exporter,
		db:            db,
	}
}

// ListRateTables lists the tenant's tables, most recently expiring first
func (f *RateTableFlowImpl) ListRateTables(ctx context.Context, tenantID uint, req *dto.ListRateTablesRequest) (*dto.ListRateTablesResponse, error) {
	if req == nil {
		req = &dto.ListRateTablesRequest{}
	}
	cacheKey := services.ListFilterKey(req.ActiveOnly, strings.TrimSpace(req.AsOf))
	if f.cache != nil {
		if cached, ok := f.cache.Get(ctx, tenantID, cacheKey); ok {
			return cached, nil
		}
	}

	tables, err := f.listTables(ctx, tenantID, req)
	if err != nil {
		return nil, err
	}

	resp := &dto.ListRateTablesResponse{
		Items: make([]dto.RateTableDTO, 0, len(tables)),
		Total: len(tables),
	}
	for _, t := range tables {
		resp.Items = append(resp.Items, ToRateTableDTO(t))
	}

	if f.cache != nil {
		f.cache.Set(ctx, tenantID, cacheKey, resp)
	}
	return resp, nil
}

// ExportRateTables renders the filtered listing as an XLSX workbook
func (f *RateTableFlowImpl) ExportRateTables(ctx context.Context, tenantID uint, req *dto.ListRateTablesRequest) (string, []byte, error) {
	if req == nil {
		req = &dto.ListRateTablesRequest{}
	}
	tables, err := f.listTables(ctx, tenantID, req)
	if err != nil {
		return "", nil, err
	}

	items := make([]dto.RateTableDTO, 0, len(tables))
	for _, t := range tables {
		items = append(items, ToRateTableDTO(t))
	}

	content, err := f.exporter.Export(items)
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}

	filename := fmt.Sprintf("premissas_%s_%s.xlsx", utils.FormatDate(utils.UTCToday()), uuid.NewString()[:8])
	return filename, content, nil
}

func (f *RateTableFlowImpl) listTables(ctx context.Context, tenantID uint, req *dto.ListRateTablesRequest) ([]*models.RateTable, error) {
	filter := models.RateTableFilter{TenantID: &tenantID}
	if req.ActiveOnly {
		filter.Active = utils.ToPtr(true)
	}
	if asOf := strings.TrimSpace(req.AsOf); asOf != "" {
		date, err := utils.ParseDate(asOf)
		if err != nil {
			return nil, NewBusinessError("INVALID_DATE", "Invalid date filter", detailf(ErrInvalidDate, "%v", err))
		}
		filter.AsOf = &date
	}

	tables, err := f.rateTableRepo.ByFilter(ctx, filter, "vigency_end DESC, id DESC", 0, 0)
	if err != nil {
		return nil, NewBusinessError("LIST_RATE_TABLES_FAILED", "Failed to list rate tables", err)
	}
	if err := f.loadChildren(ctx, tables); err != nil {
		return nil, NewBusinessError("LIST_RATE_TABLES_FAILED", "Failed to load rate table children", err)
	}
	return tables, nil
}

// GetRateTable returns one table with its bands and regions
func (f *RateTableFlowImpl) GetRateTable(ctx context.Context, tenantID, id uint) (*dto.RateTableDTO, error) {
	table, err := f.findTable(ctx, tenantID, id, false)
	if err != nil {
		return nil, err
	}
	if err := f.loadChildren(ctx, []*models.RateTable{table}); err != nil {
		return nil, NewBusinessError("GET_RATE_TABLE_FAILED", "Failed to load rate table", err)
	}
	out := ToRateTableDTO(table)
	return &out, nil
}

// CreateRateTable validates the whole payload and persists table, bands and regions atomically
func (f *RateTableFlowImpl) CreateRateTable(ctx context.Context, actor Actor, req *dto.CreateRateTableRequest, metadata *ClientMetadata) (*dto.RateTableDTO, error) {
	table, err := f.buildRateTable(actor.TenantID, req)
	if err != nil {
		f.auditFailure(ctx, actor, models.AuditActionRateTableCreated, "Rate table creation failed", err, metadata, nil)
		return nil, NewBusinessError("RATE_TABLE_VALIDATION_FAILED", "Rate table validation failed", err)
	}

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		bands, regions := table.Bands, table.Regions

		if err := f.rateTableRepo.Save(txCtx, table); err != nil {
			return err
		}

		bandPtrs := make([]*models.PowerBand, 0, len(bands))
		for i := range bands {
			bands[i].RateTableID = table.ID
			bandPtrs = append(bandPtrs, &bands[i])
		}
		if err := f.bandRepo.SaveBatch(txCtx, bandPtrs); err != nil {
			return err
		}

		regionPtrs := make([]*models.RegionTax, 0, len(regions))
		for i := range regions {
			regions[i].RateTableID = table.ID
			regionPtrs = append(regionPtrs, &regions[i])
		}
		if err := f.regionRepo.SaveBatch(txCtx, regionPtrs); err != nil {
			return translateRegionConflict(err, "")
		}

		table.Bands, table.Regions = bands, regions
		return nil
	})
	if err != nil {
		f.auditFailure(ctx, actor, models.AuditActionRateTableCreated, "Rate table creation failed", err, metadata, nil)
		return nil, NewBusinessError("CREATE_RATE_TABLE_FAILED", "Failed to create rate table", err)
	}

	f.invalidate(ctx, actor.TenantID)
	f.auditSuccess(ctx, actor, models.AuditActionRateTableCreated,
		fmt.Sprintf("Rate table '%s' created with %d bands and %d regions", table.Name, len(table.Bands), len(table.Regions)),
		metadata, map[string]any{"rate_table_id": table.ID})

	out := ToRateTableDTO(table)
	return &out, nil
}

// UpdateRateTable applies a partial update of top-level fields; vigency is checked on the merged window
func (f *RateTableFlowImpl) UpdateRateTable(ctx context.Context, actor Actor, id uint, req *dto.UpdateRateTableRequest, metadata *ClientMetadata) (*dto.RateTableDTO, error) {
	if req == nil || (req.Name == nil && req.Description == nil && req.VigencyStart == nil && req.VigencyEnd == nil && req.Active == nil) {
		return nil, NewBusinessError("RATE_TABLE_UPDATE_REQUIRED", "At least one field must be provided for update", ErrRateTableUpdateRequired)
	}

	var table *models.RateTable
	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		var err error
		table, err = f.findTable(txCtx, actor.TenantID, id, true)
		if err != nil {
			return err
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return detailf(ErrValidation, "nome must not be empty")
			}
			table.Name = name
		}
		if req.Description != nil {
			table.Description = req.Description
		}
		if req.VigencyStart != nil {
			start, err := parseDateField("data_vigencia_inicio", *req.VigencyStart)
			if err != nil {
				return err
			}
			table.VigencyStart = start
		}
		if req.VigencyEnd != nil {
			end, err := parseDateField("data_vigencia_fim", *req.VigencyEnd)
			if err != nil {
				return err
			}
			table.VigencyEnd = end
		}
		if req.Active != nil {
			table.Active = *req.Active
		}

		if err := ValidateVigency(table.VigencyStart, table.VigencyEnd); err != nil {
			return err
		}

		table.UpdatedAt = utils.UTCNow()
		if err := f.rateTableRepo.Update(txCtx, table); err != nil {
			return err
		}
		return f.loadChildren(txCtx, []*models.RateTable{table})
	})
	if err != nil {
		f.auditFailure(ctx, actor, models.AuditActionRateTableUpdated, "Rate table update failed", err, metadata, map[string]any{"rate_table_id": id})
		return nil, NewBusinessError("UPDATE_RATE_TABLE_FAILED", "Failed to update rate table", err)
	}

	f.invalidate(ctx, actor.TenantID)
	f.auditSuccess(ctx, actor, models.AuditActionRateTableUpdated, fmt.Sprintf("Rate table '%s' updated", table.Name),
		metadata, map[string]any{"rate_table_id": id})

	out := ToRateTableDTO(table)
	return &out, nil
}

// DeleteRateTable removes regions, bands and then the table in one transaction
func (f *RateTableFlowImpl) DeleteRateTable(ctx context.Context, actor Actor, id uint, metadata *ClientMetadata) error {
	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		if _, err := f.findTable(txCtx, actor.TenantID, id, true); err != nil {
			return err
		}
		if err := f.regionRepo.DeleteByRateTable(txCtx, id); err != nil {
			return err
		}
		if err := f.bandRepo.DeleteByRateTable(txCtx, id); err != nil {
			return err
		}
		return f.rateTableRepo.DeleteByID(txCtx, id)
	})
	if err != nil {
		f.auditFailure(ctx, actor, models.AuditActionRateTableDeleted, "Rate table deletion failed", err, metadata, map[string]any{"rate_table_id": id})
		return NewBusinessError("DELETE_RATE_TABLE_FAILED", "Failed to delete rate table", err)
	}

	f.invalidate(ctx, actor.TenantID)
	f.auditSuccess(ctx, actor, models.AuditActionRateTableDeleted, fmt.Sprintf("Rate table %d deleted", id),
		metadata, map[string]any{"rate_table_id": id})
	return nil
}

// GetBand returns one band of a tenant's table
func (f *RateTableFlowImpl) GetBand(ctx context.Context, tenantID, rateTableID, bandID uint) (*dto.PowerBandDTO, error) {
	if _, err := f.findTable(ctx, tenantID, rateTableID, false); err != nil {
		return nil, err
	}
	band, err := f.findBand(ctx, rateTableID, bandID)
	if err != nil {
		return nil, err
	}
	out := ToPowerBandDTO(band)
	return &out, nil
}

// AddBand inserts a band after validating it against the current sibling set under the parent lock
func (f *RateTableFlowImpl) AddBand(ctx context.Context, actor Actor, rateTableID uint, req *dto.PowerBandRequest, metadata *ClientMetadata) (*dto.PowerBandDTO, error) {
	band, err := buildBand(req, 0)
	if err != nil {
		return nil, NewBusinessError("BAND_VALIDATION_FAILED", "Power band validation failed", err)
	}
	band.RateTableID = rateTableID

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		if _, err := f.findTable(txCtx, actor.TenantID, rateTableID, true); err != nil {
			return err
		}

		siblings, err := f.bandRepo.ListByRateTable(txCtx, rateTableID)
		if err != nil {
			return err
		}
		if req.SortOrder == nil {
			band.SortOrder = len(siblings)
		}

		set := make([]models.PowerBand, 0, len(siblings)+1)
		for _, s := range siblings {
			set = append(set, *s)
		}
		if err := ValidateNoOverlap(append(set, *band)); err != nil {
			return err
		}

		return f.bandRepo.Save(txCtx, band)
	})
	if err != nil {
		f.auditFailure(ctx, actor, models.AuditActionBandCreated, "Power band creation failed", err, metadata, map[string]any{"rate_table_id": rateTableID})
		return nil, NewBusinessError("ADD_BAND_FAILED", "Failed to add power band", err)
	}

	f.invalidate(ctx, actor.TenantID)
	f.auditSuccess(ctx, actor, models.AuditActionBandCreated, fmt.Sprintf("Power band '%s' %s added", band.Label, band.Range()),
		metadata, map[string]any{"rate_table_id": rateTableID, "band_id": band.ID})

	out := ToPowerBandDTO(band)
	return &out, nil
}

// UpdateBand merges the changes and re-validates against all siblings except the band itself
func (f *RateTableFlowImpl) UpdateBand(ctx context.Context, actor Actor, rateTableID, bandID uint, req *dto.UpdatePowerBandRequest, metadata *ClientMetadata) (*dto.PowerBandDTO, error) {
	if req == nil || (req.Label == nil && req.PowerMin == nil && req.PowerMax == nil && req.UnitPrice == nil && req.SortOrder == nil) {
		return nil, NewBusinessError("BAND_UPDATE_REQUIRED", "At least one field must be provided for update", ErrRateTableUpdateRequired)
	}

	var band *models.PowerBand
	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		if _, err := f.findTable(txCtx, actor.TenantID, rateTableID, true); err != nil {
			return err
		}

		var err error
		band, err = f.findBand(txCtx, rateTableID, bandID)
		if err != nil {
			return err
		}

		if req.Label != nil {
			band.Label = strings.TrimSpace(*req.Label)
		}
		if req.PowerMin != nil {
			band.PowerMin = *req.PowerMin
		}
		if req.PowerMax != nil {
			band.PowerMax = *req.PowerMax
		}
		if req.UnitPrice != nil {
			band.UnitPrice = *req.UnitPrice
		}
		if req.SortOrder != nil {
			band.SortOrder = *req.SortOrder
		}

		if err := ValidateBand(*band); err != nil {
			return err
		}

		siblings, err := f.bandRepo.ListByRateTable(txCtx, rateTableID)
		if err != nil {
			return err
		}
		if err := ValidateNoOverlap(replaceBand(siblings, *band)); err != nil {
			return err
		}

		band.UpdatedAt = utils.UTCNow()
		return f.bandRepo.Update(txCtx, band)
	})
	if err != nil {
		f.auditFailure(ctx, actor, models.AuditActionBandUpdated, "Power band update failed", err, metadata,
			map[string]any{"rate_table_id": rateTableID, "band_id": bandID})
		return nil, NewBusinessError("UPDATE_BAND_FAILED", "Failed to update power band", err)
	}

	f.invalidate(ctx, actor.TenantID)
	f.auditSuccess(ctx, actor, models.AuditActionBandUpdated, fmt.Sprintf("Power band '%s' %s updated", band.Label, band.Range()),
		metadata, map[string]any{"rate_table_id": rateTableID, "band_id": bandID})

	out := ToPowerBandDTO(band)
	return &out, nil
}

// DeleteBand removes one band of a tenant's table
func (f *RateTableFlowImpl) DeleteBand(ctx context.Context, actor Actor, rateTableID, bandID uint, metadata *ClientMetadata) error {
	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		if _, err := f.findTable(txCtx, actor.TenantID, rateTableID, true); err != nil {
			return err
		}
		if _, err := f.findBand(txCtx, rateTableID, bandID); err != nil {
			return err
		}
		return f.bandRepo.DeleteByID(txCtx, bandID)
	})
	if err != nil {
		f.auditFailure(ctx, actor, models.AuditActionBandDeleted, "Power band deletion failed", err, metadata,
			map[string]any{"rate_table_id": rateTableID, "band_id": bandID})
		return NewBusinessError("DELETE_BAND_FAILED", "Failed to delete power band", err)
	}

	f.invalidate(ctx, actor.TenantID)
	f.auditSuccess(ctx, actor, models.AuditActionBandDeleted, fmt.Sprintf("Power band %d deleted", bandID),
		metadata, map[string]any{"rate_table_id": rateTableID, "band_id": bandID})
	return nil
}

// GetRegion returns one region entry of a tenant's table
func (f *RateTableFlowImpl) GetRegion(ctx context.Context, tenantID, rateTableID, regionID uint) (*dto.RegionTaxDTO, error) {
	if _, err := f.findTable(ctx, tenantID, rateTableID, false); err != nil {
		return nil, err
	}
	region, err := f.findRegion(ctx, rateTableID, regionID)
	if err != nil {
		return nil, err
	}
	out := ToRegionTaxDTO(region)
	return &out, nil
}

// AddRegion inserts a region entry; a code already present in the table is a conflict
func (f *RateTableFlowImpl) AddRegion(ctx context.Context, actor Actor, rateTableID uint, req *dto.RegionTaxRequest, metadata *ClientMetadata) (*dto.RegionTaxDTO, error) {
	region, err := buildRegion(req)
	if err != nil {
		return nil, NewBusinessError("REGION_VALIDATION_FAILED", "Region tax validation failed", err)
	}
	region.RateTableID = rateTableID

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		if _, err := f.findTable(txCtx, actor.TenantID, rateTableID, true); err != nil {
			return err
		}

		existing, err := f.regionRepo.ByRateTableAndCode(txCtx, rateTableID, region.RegionCode)
		if err != nil {
			return err
		}
		if existing != nil {
			return detailf(ErrRegionAlreadyExists, "region %s already exists in rate table %d", region.RegionCode, rateTableID)
		}

		return translateRegionConflict(f.regionRepo.Save(txCtx, region), region.RegionCode)
	})
	if err != nil {
		f.auditFailure(ctx, actor, models.AuditActionRegionCreated, "Region tax creation failed", err, metadata, map[string]any{"rate_table_id": rateTableID})
		return nil, NewBusinessError("ADD_REGION_FAILED", "Failed to add region tax", err)
	}

	f.invalidate(ctx, actor.TenantID)
	f.auditSuccess(ctx, actor, models.AuditActionRegionCreated, fmt.Sprintf("Region %s added", region.RegionCode),
		metadata, map[string]any{"rate_table_id": rateTableID, "region_id": region.ID})

	out := ToRegionTaxDTO(region)
	return &out, nil
}

// UpdateRegion merges the changes; renaming onto another entry's code is a conflict
func (f *RateTableFlowImpl) UpdateRegion(ctx context.Context, actor Actor, rateTableID, regionID uint, req *dto.UpdateRegionTaxRequest, metadata *ClientMetadata) (*dto.RegionTaxDTO, error) {
	if req == nil || (req.RegionCode == nil && req.TaxRate == nil && req.Notes == nil) {
		return nil, NewBusinessError("REGION_UPDATE_REQUIRED", "At least one field must be provided for update", ErrRateTableUpdateRequired)
	}

	var region *models.RegionTax
	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		if _, err := f.findTable(txCtx, actor.TenantID, rateTableID, true); err != nil {
			return err
		}

		var err error
		region, err = f.findRegion(txCtx, rateTableID, regionID)
		if err != nil {
			return err
		}

		if req.RegionCode != nil {
			code := models.NormalizeRegionCode(*req.RegionCode)
			if code != region.RegionCode {
				other, err := f.regionRepo.ByRateTableAndCode(txCtx, rateTableID, code)
				if err != nil {
					return err
				}
				if other != nil {
					return detailf(ErrRegionAlreadyExists, "region %s already exists in rate table %d", code, rateTableID)
				}
			}
			region.RegionCode = code
		}
		if req.TaxRate != nil {
			region.TaxRate = *req.TaxRate
		}
		if req.Notes != nil {
			region.Notes = req.Notes
		}

		if err := ValidateRegion(*region); err != nil {
			return err
		}

		region.UpdatedAt = utils.UTCNow()
		return translateRegionConflict(f.regionRepo.Update(txCtx, region), region.RegionCode)
	})
	if err != nil {
		f.auditFailure(ctx, actor, models.AuditActionRegionUpdated, "Region tax update failed", err, metadata,
			map[string]any{"rate_table_id": rateTableID, "region_id": regionID})
		return nil, NewBusinessError("UPDATE_REGION_FAILED", "Failed to update region tax", err)
	}

	f.invalidate(ctx, actor.TenantID)
	f.auditSuccess(ctx, actor, models.AuditActionRegionUpdated, fmt.Sprintf("Region %s updated", region.RegionCode),
		metadata, map[string]any{"rate_table_id": rateTableID, "region_id": regionID})

	out := ToRegionTaxDTO(region)
	return &out, nil
}

// DeleteRegion removes one region entry of a tenant's table
func (f *RateTableFlowImpl) DeleteRegion(ctx context.Context, actor Actor, rateTableID, regionID uint, metadata *ClientMetadata) error {
	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		if _, err := f.findTable(txCtx, actor.TenantID, rateTableID, true); err != nil {
			return err
		}
		if _, err := f.findRegion(txCtx, rateTableID, regionID); err != nil {
			return err
		}
		return f.regionRepo.DeleteByID(txCtx, regionID)
	})
	if err != nil {
		f.auditFailure(ctx, actor, models.AuditActionRegionDeleted, "Region tax deletion failed", err, metadata,
			map[string]any{"rate_table_id": rateTableID, "region_id": regionID})
		return NewBusinessError("DELETE_REGION_FAILED", "Failed to delete region tax", err)
	}

	f.invalidate(ctx, actor.TenantID)
	f.auditSuccess(ctx, actor, models.AuditActionRegionDeleted, fmt.Sprintf("Region %d deleted", regionID),
		metadata, map[string]any{"rate_table_id": rateTableID, "region_id": regionID})
	return nil
}

// findTable resolves a table under tenant scope; lock takes the parent row lock for child writes
func (f *RateTableFlowImpl) findTable(ctx context.Context, tenantID, id uint, lock bool) (*models.RateTable, error) {
	var table *models.RateTable
	var err error
	if lock {
		table, err = f.rateTableRepo.LockByTenantAndID(ctx, tenantID, id)
	} else {
		table, err = f.rateTableRepo.ByTenantAndID(ctx, tenantID, id)
	}
	if err != nil {
		return nil, err
	}
	if table == nil {
		return nil, detailf(ErrRateTableNotFound, "rate table %d", id)
	}
	return table, nil
}

func (f *RateTableFlowImpl) findBand(ctx context.Context, rateTableID, bandID uint) (*models.PowerBand, error) {
	band, err := f.bandRepo.ByID(ctx, bandID)
	if err != nil {
		return nil, err
	}
	if band == nil || band.RateTableID != rateTableID {
		return nil, detailf(ErrBandNotFound, "power band %d", bandID)
	}
	return band, nil
}

func (f *RateTableFlowImpl) findRegion(ctx context.Context, rateTableID, regionID uint) (*models.RegionTax, error) {
	region, err := f.regionRepo.ByID(ctx, regionID)
	if err != nil {
		return nil, err
	}
	if region == nil || region.RateTableID != rateTableID {
		return nil, detailf(ErrRegionNotFound, "region entry %d", regionID)
	}
	return region, nil
}

// loadChildren attaches bands and regions to each table with one query per child type
func (f *RateTableFlowImpl) loadChildren(ctx context.Context, tables []*models.RateTable) error {
	if len(tables) == 0 {
		return nil
	}

	ids := make([]uint, 0, len(tables))
	byID := make(map[uint]*models.RateTable, len(tables))
	for _, t := range tables {
		ids = append(ids, t.ID)
		byID[t.ID] = t
		t.Bands = []models.PowerBand{}
		t.Regions = []models.RegionTax{}
	}

	bands, err := f.bandRepo.ListByRateTables(ctx, ids)
	if err != nil {
		return err
	}
	for _, b := range bands {
		if t, ok := byID[b.RateTableID]; ok {
			t.Bands = append(t.Bands, *b)
		}
	}

	regions, err := f.regionRepo.ListByRateTables(ctx, ids)
	if err != nil {
		return err
	}
	for _, r := range regions {
		if t, ok := byID[r.RateTableID]; ok {
			t.Regions = append(t.Regions, *r)
		}
	}
	return nil
}

func (f *RateTableFlowImpl) invalidate(ctx context.Context, tenantID uint) {
	if f.cache == nil {
		return
	}
	if err := f.cache.InvalidateTenant(ctx, tenantID); err != nil {
		log.Printf("rate table cache invalidation failed: %v", err)
	}
}

func (f *RateTableFlowImpl) auditSuccess(ctx context.Context, actor Actor, action, description string, metadata *ClientMetadata, details map[string]any) {
	_ = createAuditLog(ctx, f.auditRepo, actor, action, description, true, nil, metadata, details)
}

func (f *RateTableFlowImpl) auditFailure(ctx context.Context, actor Actor, action, description string, cause error, metadata *ClientMetadata, details map[string]any) {
	errMsg := cause.Error()
	_ = createAuditLog(ctx, f.auditRepo, actor, action, description, false, &errMsg, metadata, details)
}

// buildRateTable converts and validates a create payload without touching storage
func (f *RateTableFlowImpl) buildRateTable(tenantID uint, req *dto.CreateRateTableRequest) (*models.RateTable, error) {
	if req == nil {
		return nil, detailf(ErrValidation, "request body is required")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, detailf(ErrValidation, "nome is required")
	}

	start, err := parseDateField("data_vigencia_inicio", req.VigencyStart)
	if err != nil {
		return nil, err
	}
	end, err := parseDateField("data_vigencia_fim", req.VigencyEnd)
	if err != nil {
		return nil, err
	}
	if err := ValidateVigency(start, end); err != nil {
		return nil, err
	}

	table := &models.RateTable{
		TenantID:     tenantID,
		Name:         name,
		Description:  req.Description,
		VigencyStart: start,
		VigencyEnd:   end,
		Active:       req.Active == nil || *req.Active,
		Bands:        make([]models.PowerBand, 0, len(req.Bands)),
		Regions:      make([]models.RegionTax, 0, len(req.Regions)),
	}

	for i := range req.Bands {
		band, err := buildBand(&req.Bands[i], i)
		if err != nil {
			return nil, err
		}
		table.Bands = append(table.Bands, *band)
	}
	if err := ValidateNoOverlap(table.Bands); err != nil {
		return nil, err
	}

	for i := range req.Regions {
		region, err := buildRegion(&req.Regions[i])
		if err != nil {
			return nil, err
		}
		table.Regions = append(table.Regions, *region)
	}
	if err := ValidateRegions(table.Regions); err != nil {
		return nil, err
	}

	return table, nil
}

func buildBand(req *dto.PowerBandRequest, defaultOrder int) (*models.PowerBand, error) {
	if req == nil {
		return nil, detailf(ErrBandInvalid, "band payload is required")
	}
	band := &models.PowerBand{
		Label:     strings.TrimSpace(req.Label),
		SortOrder: defaultOrder,
	}
	var err error
	if band.PowerMin, err = requireDecimal(req.PowerMin, "potencia_min", band.Label); err != nil {
		return nil, err
	}
	if band.PowerMax, err = requireDecimal(req.PowerMax, "potencia_max", band.Label); err != nil {
		return nil, err
	}
	if band.UnitPrice, err = requireDecimal(req.UnitPrice, "preco_unitario", band.Label); err != nil {
		return nil, err
	}
	if req.SortOrder != nil {
		band.SortOrder = *req.SortOrder
	}
	if err := ValidateBand(*band); err != nil {
		return nil, err
	}
	return band, nil
}

func buildRegion(req *dto.RegionTaxRequest) (*models.RegionTax, error) {
	if req == nil {
		return nil, detailf(ErrRegionInvalid, "region payload is required")
	}
	region := &models.RegionTax{
		RegionCode: models.NormalizeRegionCode(req.RegionCode),
		Notes:      req.Notes,
	}
	if req.TaxRate == nil {
		return nil, detailf(ErrRegionInvalid, "region %s: aliquota_imposto is required", region.RegionCode)
	}
	region.TaxRate = *req.TaxRate
	if err := ValidateRegion(*region); err != nil {
		return nil, err
	}
	return region, nil
}

func requireDecimal(value *decimal.Decimal, field, label string) (decimal.Decimal, error) {
	if value == nil {
		return decimal.Zero, detailf(ErrBandInvalid, "band '%s': %s is required", label, field)
	}
	return *value, nil
}

func parseDateField(field, value string) (time.Time, error) {
	date, err := utils.ParseDate(strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, detailf(ErrInvalidDate, "%s: %v", field, err)
	}
	return date, nil
}

// translateRegionConflict maps a unique-index violation on (rate_table_id, region_code) to a conflict
func translateRegionConflict(err error, code string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		if code == "" {
			return detailf(ErrRegionAlreadyExists, "duplicate region code")
		}
		return detailf(ErrRegionAlreadyExists, "region %s already exists", code)
	}
	return err
}
