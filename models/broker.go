// Package models contains domain entities for the lead intake and broker billing system
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SubscriptionStatus represents the commercial state of a broker subscription
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusInactive SubscriptionStatus = "inactive"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// Valid reports whether the status is one of the known values
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusInactive, SubscriptionStatusPastDue, SubscriptionStatusCanceled:
		return true
	}
	return false
}

// Broker is an insurance broker that receives leads under a monthly quota
type Broker struct {
	ID    uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID  uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	Name  string    `gorm:"size:255;not null" json:"name"`
	Phone string    `gorm:"size:32;not null;index" json:"phone"`
	Email *string   `gorm:"size:255" json:"email,omitempty"`

	SubscriptionStatus SubscriptionStatus `gorm:"type:varchar(20);not null;default:'inactive';index" json:"subscription_status"`
	SubscriptionPlanID *uint              `gorm:"index" json:"subscription_plan_id,omitempty"`
	MonthlyLeadQuota   int                `gorm:"not null;default:0" json:"monthly_lead_quota"`
	// CurrentMonthLeads is only incremented by lead assignment; the monthly reset runs elsewhere.
	CurrentMonthLeads int   `gorm:"not null;default:0" json:"current_month_leads"`
	LoginActive       *bool `gorm:"not null;default:true" json:"login_active"`

	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	SubscriptionPlan *SubscriptionPlan `gorm:"foreignKey:SubscriptionPlanID" json:"subscription_plan,omitempty"`
}

func (Broker) TableName() string { return "brokers" }

// BeforeCreate ensures UUID is set
func (b *Broker) BeforeCreate(tx *gorm.DB) error {
	if b.UUID == uuid.Nil {
		b.UUID = uuid.New()
	}
	return nil
}

// IsEligibleForAssignment returns true if the broker may receive another lead this month
func (b *Broker) IsEligibleForAssignment() bool {
	return b.SubscriptionStatus == SubscriptionStatusActive && b.CurrentMonthLeads < b.MonthlyLeadQuota
}

// BrokerFilter represents filter criteria for broker queries
type BrokerFilter struct {
	ID                 *uint               `json:"id,omitempty"`
	Phone              *string             `json:"phone,omitempty"`
	SubscriptionStatus *SubscriptionStatus `json:"subscription_status,omitempty"`
	SubscriptionPlanID *uint               `json:"subscription_plan_id,omitempty"`
}
