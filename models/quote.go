package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Vehicle is the insured object a quote is computed for
type Vehicle struct {
	Make         string          `json:"make"`
	Model        string          `json:"model"`
	Year         int             `json:"year"`
	InsuredValue decimal.Decimal `json:"insured_value"`
}

// Quote is a computed indicative premium. It is only persisted inside a LeadQuoteSnapshot.
type Quote struct {
	InsurerID       uint            `json:"insurer_id"`
	InsurerName     string          `json:"insurer_name"`
	CoverageType    CoverageType    `json:"coverage_type"`
	MonthlyPremium  decimal.Decimal `json:"monthly_premium"`
	CoverageSummary string          `json:"coverage_summary"`
}

// LeadQuoteSnapshot keeps the quotes a lead was shown at a point in time
type LeadQuoteSnapshot struct {
	ID      uint                        `gorm:"primaryKey;autoIncrement" json:"id"`
	LeadID  uint                        `gorm:"not null;index" json:"lead_id"`
	Vehicle datatypes.JSONType[Vehicle] `gorm:"type:jsonb;not null" json:"vehicle"`
	Quotes  datatypes.JSONSlice[Quote]  `gorm:"type:jsonb;not null;default:'[]'" json:"quotes"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

func (LeadQuoteSnapshot) TableName() string { return "lead_quote_snapshots" }

// Find returns the quote for an insurer and coverage type, if the snapshot contains one
func (s *LeadQuoteSnapshot) Find(insurerID uint, coverage CoverageType) (Quote, bool) {
	for _, q := range s.Quotes {
		if q.InsurerID == insurerID && q.CoverageType == coverage {
			return q, true
		}
	}
	return Quote{}, false
}
