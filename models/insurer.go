package models

import (
	"time"

	"github.com/cotizabot/cotizabot/utils"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// CoverageType identifies the product a premium is computed for
type CoverageType string

const (
	// CoverageTypeFullCoverage covers own damage plus liability and is priced from rate bands
	CoverageTypeFullCoverage CoverageType = "full_coverage"
	// CoverageTypeThirdParty covers liability only and is priced from a fixed net premium
	CoverageTypeThirdParty CoverageType = "third_party"
)

// Valid reports whether the coverage type is one of the known values
func (c CoverageType) Valid() bool {
	return c == CoverageTypeFullCoverage || c == CoverageTypeThirdParty
}

// Insurer is an insurance carrier whose rates feed the quote engine
type Insurer struct {
	ID       uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name     string `gorm:"size:255;not null;uniqueIndex" json:"name"`
	IsActive *bool  `gorm:"not null;default:true;index" json:"is_active"`
	// SortOrder fixes iteration order, which decides ties between equal premiums.
	SortOrder int `gorm:"not null;default:0" json:"sort_order"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	RateConfigs []InsurerRateConfig `gorm:"foreignKey:InsurerID" json:"rate_configs,omitempty"`
}

func (Insurer) TableName() string { return "insurers" }

// RateConfig returns the active configuration for a coverage type, if any
func (i *Insurer) RateConfig(coverage CoverageType) *InsurerRateConfig {
	for idx := range i.RateConfigs {
		cfg := &i.RateConfigs[idx]
		if cfg.CoverageType == coverage && utils.IsTrue(cfg.IsActive) {
			return cfg
		}
	}
	return nil
}

// RateBand maps an insured-sum range [From, To] to a percentage rate
type RateBand struct {
	From        decimal.Decimal `json:"from"`
	To          decimal.Decimal `json:"to"`
	RatePercent decimal.Decimal `json:"rate_percent"`
}

// InsurerRateConfig holds the pricing inputs of one insurer for one coverage type.
// FullCoverage is priced from RateBands and MinimumPremium, ThirdParty from FixedNetPremium.
type InsurerRateConfig struct {
	ID           uint         `gorm:"primaryKey;autoIncrement" json:"id"`
	InsurerID    uint         `gorm:"not null;uniqueIndex:idx_insurer_coverage" json:"insurer_id"`
	CoverageType CoverageType `gorm:"type:varchar(20);not null;uniqueIndex:idx_insurer_coverage" json:"coverage_type"`

	TaxRate         decimal.Decimal `gorm:"type:numeric(6,4);not null;default:0" json:"tax_rate"`
	Installments    int             `gorm:"not null;default:1" json:"installments"`
	EmissionCost    decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"emission_cost"`
	Assistance      decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"assistance"`
	MinimumPremium  decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"minimum_premium"`
	FixedNetPremium decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"fixed_net_premium"`

	RateBands datatypes.JSONSlice[RateBand] `gorm:"type:jsonb;not null;default:'[]'" json:"rate_bands"`

	// Insurable vehicle model years, inclusive on both ends.
	YearFrom int `gorm:"not null" json:"year_from"`
	YearTo   int `gorm:"not null" json:"year_to"`

	CoverageSummary string `gorm:"type:text" json:"coverage_summary"`
	IsActive        *bool  `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (InsurerRateConfig) TableName() string { return "insurer_rate_configs" }

// CoversYear reports whether a model year falls inside the insurable range
func (c *InsurerRateConfig) CoversYear(year int) bool {
	return year >= c.YearFrom && year <= c.YearTo
}

// InsurabilityBlacklistEntry excludes a make/model from quoting. A nil Year matches every year.
type InsurabilityBlacklistEntry struct {
	ID     uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Make   string `gorm:"size:100;not null;index:idx_blacklist_make_model" json:"make"`
	Model  string `gorm:"size:100;not null;index:idx_blacklist_make_model" json:"model"`
	Year   *int   `json:"year,omitempty"`
	Reason string `gorm:"type:text" json:"reason"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (InsurabilityBlacklistEntry) TableName() string { return "insurability_blacklist" }

// Matches reports whether the entry excludes the vehicle. Make and model compare case-insensitively.
func (e *InsurabilityBlacklistEntry) Matches(v Vehicle) bool {
	if utils.NormalizeKey(e.Make) != utils.NormalizeKey(v.Make) ||
		utils.NormalizeKey(e.Model) != utils.NormalizeKey(v.Model) {
		return false
	}
	return e.Year == nil || *e.Year == v.Year
}
