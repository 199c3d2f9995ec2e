package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BrokerTransactionType represents the kind of ledger entry
type BrokerTransactionType string

const (
	BrokerTransactionTypeCharge     BrokerTransactionType = "charge"     // Plan fee, negative amount
	BrokerTransactionTypePayment    BrokerTransactionType = "payment"    // Money received, positive amount
	BrokerTransactionTypeAdjustment BrokerTransactionType = "adjustment" // Manual correction, either sign
)

// BrokerTransaction is an append-only ledger entry.
// BalanceAfter equals the previous entry's BalanceAfter plus Amount for the same account.
type BrokerTransaction struct {
	ID        uint                  `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID      uuid.UUID             `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	AccountID uint                  `gorm:"not null;index:idx_broker_tx_account_created" json:"account_id"`
	BrokerID  uint                  `gorm:"not null;index" json:"broker_id"`
	Type      BrokerTransactionType `gorm:"type:varchar(20);not null;index" json:"type"`

	Amount       decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	BalanceAfter decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"balance_after"`

	Description     string     `gorm:"type:text" json:"description"`
	ReferenceNumber *string    `gorm:"size:255;index" json:"reference_number,omitempty"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	CreatedBy       *string    `gorm:"size:255" json:"created_by,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_broker_tx_account_created" json:"created_at"`
}

func (BrokerTransaction) TableName() string { return "broker_transactions" }

// BeforeCreate ensures UUID is set
func (t *BrokerTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.UUID == uuid.Nil {
		t.UUID = uuid.New()
	}
	return nil
}

// BrokerTransactionFilter represents filter criteria for ledger queries
type BrokerTransactionFilter struct {
	AccountID     *uint                  `json:"account_id,omitempty"`
	BrokerID      *uint                  `json:"broker_id,omitempty"`
	Type          *BrokerTransactionType `json:"type,omitempty"`
	CreatedAfter  *time.Time             `json:"created_after,omitempty"`
	CreatedBefore *time.Time             `json:"created_before,omitempty"`
}
