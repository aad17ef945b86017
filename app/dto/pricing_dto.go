package dto

import (
	"github.com/shopspring/decimal"
)

// CalculatePriceRequest is the input of a price calculation
type CalculatePriceRequest struct {
	PowerKW            *decimal.Decimal `json:"potencia_kw" validate:"required" swaggertype:"string" example:"5.5"`
	Region             string           `json:"regiao" validate:"required,min=2,max=10" example:"SP"`
	Date               *string          `json:"data,omitempty" validate:"omitempty,datetime=2006-01-02" example:"2025-02-01"`
	RateTableID        *uint            `json:"premissa_id,omitempty" validate:"omitempty,gt=0"`
	AdditionalCosts    *decimal.Decimal `json:"custos_adicionais,omitempty" swaggertype:"string" example:"0"`
	MarginOverride     *decimal.Decimal `json:"margem_lucro_override,omitempty" swaggertype:"string"`
	CommissionOverride *decimal.Decimal `json:"comissao_override,omitempty" swaggertype:"string"`
	TaxOverride        *decimal.Decimal `json:"imposto_override,omitempty" swaggertype:"string"`
}

// CalculatePriceResponse is the itemized price breakdown. Money and rates are decimal strings.
type CalculatePriceResponse struct {
	PowerKW         string            `json:"potencia_solicitada_kw" example:"5.5"`
	Region          string            `json:"regiao" example:"SP"`
	Date            string            `json:"data_calculo" example:"2025-02-01"`
	RateTableID     uint              `json:"premissa_usada_id" example:"1"`
	RateTableName   string            `json:"premissa_usada_nome" example:"Q1"`
	BandLabel       string            `json:"faixa_aplicada_nome" example:"Standard"`
	UnitPriceWp     string            `json:"preco_unitario_wp" example:"0.2300"`
	BasePrice       string            `json:"preco_base" example:"1265.00"`
	AdditionalCosts string            `json:"custos_adicionais" example:"0.00"`
	SubtotalCosts   string            `json:"subtotal_custos" example:"1265.00"`
	MarginRate      string            `json:"margem_lucro_percentual" example:"0.2000"`
	MarginValue     string            `json:"margem_lucro_valor" example:"253.00"`
	CommissionRate  string            `json:"comissao_percentual" example:"0.0500"`
	CommissionValue string            `json:"comissao_valor" example:"63.25"`
	PretaxSubtotal  string            `json:"subtotal_sem_imposto" example:"1581.25"`
	TaxRate         string            `json:"imposto_percentual" example:"0.1600"`
	TaxValue        string            `json:"imposto_valor" example:"253.00"`
	FinalPrice      string            `json:"preco_final" example:"1834.25"`
	Details         map[string]string `json:"detalhes"`
}

// PricingDefaultsDTO exposes a tenant's default margin and commission fractions
type PricingDefaultsDTO struct {
	MarginRate     string `json:"margem_lucro_padrao" example:"0.2000"`
	CommissionRate string `json:"percentual_comissao_padrao" example:"0.0500"`
	UpdatedAt      string `json:"updated_at"`
}

// UpdatePricingDefaultsRequest changes tenant defaults; omitted fields keep their value
type UpdatePricingDefaultsRequest struct {
	MarginRate     *decimal.Decimal `json:"margem_lucro_padrao,omitempty" swaggertype:"string" example:"0.20"`
	CommissionRate *decimal.Decimal `json:"percentual_comissao_padrao,omitempty" swaggertype:"string" example:"0.05"`
}
