package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PlanPeriod is the billing period of a subscription plan
type PlanPeriod string

const (
	PlanPeriodMonthly PlanPeriod = "monthly"
)

// SubscriptionPlan describes what a broker pays each period and what they get for it
type SubscriptionPlan struct {
	ID       uint                        `gorm:"primaryKey;autoIncrement" json:"id"`
	Name     string                      `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Amount   decimal.Decimal             `gorm:"type:numeric(14,2);not null" json:"amount"`
	Currency string                      `gorm:"type:varchar(3);not null;default:'MXN'" json:"currency"`
	Period   PlanPeriod                  `gorm:"type:varchar(20);not null;default:'monthly'" json:"period"`
	Benefits datatypes.JSONSlice[string] `gorm:"type:jsonb;not null;default:'[]'" json:"benefits"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (SubscriptionPlan) TableName() string { return "subscription_plans" }

// SubscriptionPlanFilter represents filter criteria for plan queries
type SubscriptionPlanFilter struct {
	ID   *uint   `json:"id,omitempty"`
	Name *string `json:"name,omitempty"`
}
