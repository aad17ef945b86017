package dto

import (
	"github.com/shopspring/decimal"
)

// PowerBandRequest is one band ("faixa") in a create payload or an add-band call
type PowerBandRequest struct {
	Label     string           `json:"nome_faixa" validate:"required,max=100" example:"Até 10 kWp"`
	PowerMin  *decimal.Decimal `json:"potencia_min" validate:"required" swaggertype:"string" example:"0"`
	PowerMax  *decimal.Decimal `json:"potencia_max" validate:"required" swaggertype:"string" example:"10"`
	UnitPrice *decimal.Decimal `json:"preco_unitario" validate:"required" swaggertype:"string" example:"0.23"`
	SortOrder *int             `json:"ordem,omitempty" validate:"omitempty,gte=0" example:"1"`
}

// UpdatePowerBandRequest carries the band fields to change; omitted fields keep their value
type UpdatePowerBandRequest struct {
	Label     *string          `json:"nome_faixa,omitempty" validate:"omitempty,min=1,max=100"`
	PowerMin  *decimal.Decimal `json:"potencia_min,omitempty" swaggertype:"string"`
	PowerMax  *decimal.Decimal `json:"potencia_max,omitempty" swaggertype:"string"`
	UnitPrice *decimal.Decimal `json:"preco_unitario,omitempty" swaggertype:"string"`
	SortOrder *int             `json:"ordem,omitempty" validate:"omitempty,gte=0"`
}

// RegionTaxRequest is one region entry ("região") in a create payload or an add-region call
type RegionTaxRequest struct {
	RegionCode string           `json:"regiao" validate:"required,min=2,max=10" example:"SP"`
	TaxRate    *decimal.Decimal `json:"aliquota_imposto" validate:"required" swaggertype:"string" example:"0.16"`
	Notes      *string          `json:"observacoes,omitempty" validate:"omitempty,max=1000"`
}

// UpdateRegionTaxRequest carries the region fields to change; omitted fields keep their value
type UpdateRegionTaxRequest struct {
	RegionCode *string          `json:"regiao,omitempty" validate:"omitempty,min=2,max=10"`
	TaxRate    *decimal.Decimal `json:"aliquota_imposto,omitempty" swaggertype:"string"`
	Notes      *string          `json:"observacoes,omitempty" validate:"omitempty,max=1000"`
}

// CreateRateTableRequest creates a rate table ("premissa") with its bands and regions
type CreateRateTableRequest struct {
	Name         string             `json:"nome" validate:"required,min=1,max=255" example:"Tabela Q1 2025"`
	Description  *string            `json:"descricao,omitempty" validate:"omitempty,max=2000"`
	VigencyStart string             `json:"data_vigencia_inicio" validate:"required,datetime=2006-01-02" example:"2025-01-01"`
	VigencyEnd   string             `json:"data_vigencia_fim" validate:"required,datetime=2006-01-02" example:"2025-03-31"`
	Active       *bool              `json:"ativa,omitempty" example:"true"`
	Bands        []PowerBandRequest `json:"faixas" validate:"omitempty,dive"`
	Regions      []RegionTaxRequest `json:"regioes" validate:"omitempty,dive"`
}

// UpdateRateTableRequest changes top-level rate table fields only
type UpdateRateTableRequest struct {
	Name         *string `json:"nome,omitempty" validate:"omitempty,min=1,max=255"`
	Description  *string `json:"descricao,omitempty" validate:"omitempty,max=2000"`
	VigencyStart *string `json:"data_vigencia_inicio,omitempty" validate:"omitempty,datetime=2006-01-02"`
	VigencyEnd   *string `json:"data_vigencia_fim,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Active       *bool   `json:"ativa,omitempty"`
}

// ListRateTablesRequest holds the list filters taken from the query string
type ListRateTablesRequest struct {
	ActiveOnly bool   `query:"ativa"`
	AsOf       string `query:"data" validate:"omitempty,datetime=2006-01-02"`
}

// PowerBandDTO is the wire shape of a band
type PowerBandDTO struct {
	ID          uint   `json:"id"`
	RateTableID uint   `json:"premissa_id"`
	Label       string `json:"nome_faixa"`
	PowerMin    string `json:"potencia_min"`
	PowerMax    string `json:"potencia_max"`
	UnitPrice   string `json:"preco_unitario"`
	SortOrder   int    `json:"ordem"`
}

// RegionTaxDTO is the wire shape of a region entry
type RegionTaxDTO struct {
	ID          uint    `json:"id"`
	RateTableID uint    `json:"premissa_id"`
	RegionCode  string  `json:"regiao"`
	TaxRate     string  `json:"aliquota_imposto"`
	Notes       *string `json:"observacoes,omitempty"`
}

// RateTableDTO is the wire shape of a rate table with its children
type RateTableDTO struct {
	ID           uint           `json:"id"`
	Name         string         `json:"nome"`
	Description  *string        `json:"descricao,omitempty"`
	VigencyStart string         `json:"data_vigencia_inicio"`
	VigencyEnd   string         `json:"data_vigencia_fim"`
	Active       bool           `json:"ativa"`
	CreatedAt    string         `json:"created_at"`
	UpdatedAt    string         `json:"updated_at"`
	Bands        []PowerBandDTO `json:"faixas"`
	Regions      []RegionTaxDTO `json:"regioes"`
}

// ListRateTablesResponse wraps a rate table listing
type ListRateTablesResponse struct {
	Items []RateTableDTO `json:"items"`
	Total int            `json:"total"`
}
