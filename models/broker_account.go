package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AccountStatus represents the billing state of a broker account
type AccountStatus string

const (
	AccountStatusActive      AccountStatus = "active"
	AccountStatusOverdue     AccountStatus = "overdue"
	AccountStatusGracePeriod AccountStatus = "grace_period"
	AccountStatusSuspended   AccountStatus = "suspended"
)

// BrokerAccount is the ledger header of a broker. CurrentBalance is a cached projection of the
// BalanceAfter of the latest BrokerTransaction; negative means the broker owes money.
type BrokerAccount struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID          uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	AccountNumber string    `gorm:"size:32;not null;uniqueIndex" json:"account_number"`
	BrokerID      uint      `gorm:"not null;uniqueIndex" json:"broker_id"`
	PlanID        uint      `gorm:"not null;index" json:"plan_id"`

	CurrentBalance decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"current_balance"`
	Currency       string          `gorm:"type:varchar(3);not null;default:'MXN'" json:"currency"`

	SubscriptionStartDate time.Time     `gorm:"not null" json:"subscription_start_date"`
	LastChargeDate        *time.Time    `json:"last_charge_date,omitempty"`
	NextDueDate           time.Time     `gorm:"not null;index" json:"next_due_date"`
	GracePeriodEnd        *time.Time    `json:"grace_period_end,omitempty"`
	AccountStatus         AccountStatus `gorm:"type:varchar(20);not null;default:'active';index" json:"account_status"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	Broker *Broker           `gorm:"foreignKey:BrokerID" json:"broker,omitempty"`
	Plan   *SubscriptionPlan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
}

func (BrokerAccount) TableName() string { return "broker_accounts" }

// BeforeCreate ensures UUID is set
func (a *BrokerAccount) BeforeCreate(tx *gorm.DB) error {
	if a.UUID == uuid.Nil {
		a.UUID = uuid.New()
	}
	return nil
}

// IsSuspended returns true if the account lost access for non-payment
func (a *BrokerAccount) IsSuspended() bool {
	return a.AccountStatus == AccountStatusSuspended
}

// IsOwing returns true if the broker owes money on the account
func (a *BrokerAccount) IsOwing() bool {
	return a.CurrentBalance.IsNegative()
}

// BrokerAccountFilter represents filter criteria for broker account queries
type BrokerAccountFilter struct {
	ID            *uint          `json:"id,omitempty"`
	BrokerID      *uint          `json:"broker_id,omitempty"`
	AccountNumber *string        `json:"account_number,omitempty"`
	AccountStatus *AccountStatus `json:"account_status,omitempty"`
}
