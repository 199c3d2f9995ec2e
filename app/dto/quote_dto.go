package dto

import "github.com/shopspring/decimal"

// VehicleRequest represents the vehicle to quote
type VehicleRequest struct {
	Make         string          `json:"make" validate:"required,max=100"`
	Model        string          `json:"model" validate:"required,max=100"`
	Year         int             `json:"year" validate:"required,gte=1900,lte=2100"`
	InsuredValue decimal.Decimal `json:"insured_value"`
}

// QuoteResponse represents one indicative premium
type QuoteResponse struct {
	InsurerID       uint   `json:"insurer_id"`
	InsurerName     string `json:"insurer_name"`
	CoverageType    string `json:"coverage_type"`
	MonthlyPremium  string `json:"monthly_premium"`
	CoverageSummary string `json:"coverage_summary,omitempty"`
}

// ComputeQuotesResponse represents the ranked quotes for a vehicle
type ComputeQuotesResponse struct {
	Quotes []QuoteResponse `json:"quotes"`
	Count  int             `json:"count"`
	// Declined is true when the vehicle could not be quoted by any insurer.
	Declined bool `json:"declined"`
}
