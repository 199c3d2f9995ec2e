package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LeadStatus represents where a lead is in the intake flow
type LeadStatus string

const (
	LeadStatusPendingData        LeadStatus = "pending_data"         // Vehicle data or quotes still missing
	LeadStatusQuotedNoPreference LeadStatus = "quoted_no_preference" // Quotes shown, waiting for a broker
	LeadStatusAssignedToBroker   LeadStatus = "assigned_to_broker"   // A broker owns the lead
)

// Lead is a prospective insurance customer captured from an inbound channel.
// AssignedBrokerID is set if and only if Status is LeadStatusAssignedToBroker.
type Lead struct {
	ID    uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID  uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	Phone string    `gorm:"size:32;not null;uniqueIndex" json:"phone"`
	Name  string    `gorm:"size:255" json:"name"`

	VehicleMake  string              `gorm:"size:100" json:"vehicle_make"`
	VehicleModel string              `gorm:"size:100" json:"vehicle_model"`
	VehicleYear  int                 `gorm:"not null;default:0" json:"vehicle_year"`
	InsuredValue decimal.NullDecimal `gorm:"type:numeric(14,2)" json:"insured_value"`

	Status           LeadStatus `gorm:"type:varchar(30);not null;default:'pending_data';index" json:"status"`
	AssignedBrokerID *uint      `gorm:"index" json:"assigned_broker_id,omitempty"`
	AssignedAt       *time.Time `json:"assigned_at,omitempty"`

	// Set once at assignment and never cleared afterwards.
	SLAFirstContactDeadline *time.Time `gorm:"column:sla_first_contact_deadline" json:"sla_first_contact_deadline,omitempty"`
	SLAReassignmentDeadline *time.Time `gorm:"column:sla_reassignment_deadline" json:"sla_reassignment_deadline,omitempty"`

	SelectedInsurerID      *uint               `json:"selected_insurer_id,omitempty"`
	SelectedCoverageType   *CoverageType       `gorm:"type:varchar(20)" json:"selected_coverage_type,omitempty"`
	SelectedMonthlyPremium decimal.NullDecimal `gorm:"type:numeric(14,2)" json:"selected_monthly_premium"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	AssignedBroker *Broker             `gorm:"foreignKey:AssignedBrokerID" json:"assigned_broker,omitempty"`
	QuoteSnapshots []LeadQuoteSnapshot `gorm:"foreignKey:LeadID" json:"quote_snapshots,omitempty"`
}

func (Lead) TableName() string { return "leads" }

// BeforeCreate ensures UUID is set
func (l *Lead) BeforeCreate(tx *gorm.DB) error {
	if l.UUID == uuid.Nil {
		l.UUID = uuid.New()
	}
	return nil
}

// Vehicle returns the vehicle captured on the lead and whether it is complete enough to quote
func (l *Lead) Vehicle() (Vehicle, bool) {
	v := Vehicle{
		Make:         l.VehicleMake,
		Model:        l.VehicleModel,
		Year:         l.VehicleYear,
		InsuredValue: l.InsuredValue.Decimal,
	}
	complete := v.Make != "" && v.Model != "" && v.Year > 0 && l.InsuredValue.Valid && v.InsuredValue.IsPositive()
	return v, complete
}

// IsAssigned returns true once a broker owns the lead
func (l *Lead) IsAssigned() bool {
	return l.AssignedBrokerID != nil
}

// LeadFilter represents filter criteria for lead queries
type LeadFilter struct {
	ID               *uint       `json:"id,omitempty"`
	Phone            *string     `json:"phone,omitempty"`
	Status           *LeadStatus `json:"status,omitempty"`
	AssignedBrokerID *uint       `json:"assigned_broker_id,omitempty"`
}
