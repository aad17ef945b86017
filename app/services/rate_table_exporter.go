package services

import (
	"fmt"
	"strconv"

	"github.com/sunops/sunops-backend/app/dto"
	"github.com/xuri/excelize/v2"
)

// Sheet names of the exported workbook
const (
	SheetRateTables = "Premissas"
	SheetBands      = "Faixas"
	SheetRegions    = "Regioes"
)

// RateTableExporter renders rate tables into an XLSX workbook
type RateTableExporter interface {
	Export(tables []dto.RateTableDTO) ([]byte, error)
}

// RateTableExporterImpl implements RateTableExporter with excelize
type RateTableExporterImpl struct{}

// NewRateTableExporter creates a new exporter
func NewRateTableExporter() RateTableExporter {
	return &RateTableExporterImpl{}
}

// Export writes one sheet of tables, one of bands and one of regions. Decimal values keep their string form.
func (e *RateTableExporterImpl) Export(tables []dto.RateTableDTO) ([]byte, error) {
	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	if err := xl.SetSheetName(xl.GetSheetName(0), SheetRateTables); err != nil {
		return nil, fmt.Errorf("failed to rename default sheet: %w", err)
	}
	if _, err := xl.NewSheet(SheetBands); err != nil {
		return nil, fmt.Errorf("failed to create sheet %s: %w", SheetBands, err)
	}
	if _, err := xl.NewSheet(SheetRegions); err != nil {
		return nil, fmt.Errorf("failed to create sheet %s: %w", SheetRegions, err)
	}

	tableHeader := []string{"id", "nome", "descricao", "data_vigencia_inicio", "data_vigencia_fim", "ativa", "created_at", "updated_at"}
	bandHeader := []string{"premissa_id", "premissa_nome", "id", "nome_faixa", "potencia_min", "potencia_max", "preco_unitario", "ordem"}
	regionHeader := []string{"premissa_id", "premissa_nome", "id", "regiao", "aliquota_imposto", "observacoes"}

	if err := writeRow(xl, SheetRateTables, 1, tableHeader); err != nil {
		return nil, err
	}
	if err := writeRow(xl, SheetBands, 1, bandHeader); err != nil {
		return nil, err
	}
	if err := writeRow(xl, SheetRegions, 1, regionHeader); err != nil {
		return nil, err
	}

	bandRow, regionRow := 2, 2
	for i, t := range tables {
		description := ""
		if t.Description != nil {
			description = *t.Description
		}
		id := strconv.FormatUint(uint64(t.ID), 10)
		record := []string{id, t.Name, description, t.VigencyStart, t.VigencyEnd, strconv.FormatBool(t.Active), t.CreatedAt, t.UpdatedAt}
		if err := writeRow(xl, SheetRateTables, i+2, record); err != nil {
			return nil, err
		}

		for _, b := range t.Bands {
			record := []string{id, t.Name, strconv.FormatUint(uint64(b.ID), 10), b.Label, b.PowerMin, b.PowerMax, b.UnitPrice, strconv.Itoa(b.SortOrder)}
			if err := writeRow(xl, SheetBands, bandRow, record); err != nil {
				return nil, err
			}
			bandRow++
		}

		for _, r := range t.Regions {
			notes := ""
			if r.Notes != nil {
				notes = *r.Notes
			}
			record := []string{id, t.Name, strconv.FormatUint(uint64(r.ID), 10), r.RegionCode, r.TaxRate, notes}
			if err := writeRow(xl, SheetRegions, regionRow, record); err != nil {
				return nil, err
			}
			regionRow++
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(xl *excelize.File, sheet string, row int, values []string) error {
	cellRef, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := xl.SetSheetRow(sheet, cellRef, &values); err != nil {
		return fmt.Errorf("failed to write row %d of %s: %w", row, sheet, err)
	}
	return nil
}
