package dto

import "github.com/shopspring/decimal"

// CreateAccountRequest represents a plan assignment that opens a broker account
type CreateAccountRequest struct {
	PlanID uint `json:"plan_id" validate:"required"`
}

// ApplyPaymentRequest represents money received from a broker
type ApplyPaymentRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	ReferenceNumber *string         `json:"reference_number,omitempty" validate:"omitempty,max=255"`
	Description     *string         `json:"description,omitempty" validate:"omitempty,max=500"`
}

// ApplyAdjustmentRequest represents a signed manual correction
type ApplyAdjustmentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"required,max=500"`
}

// RunMonthlyChargesRequest represents an admin-triggered monthly charge run
type RunMonthlyChargesRequest struct {
	ForceManual bool `json:"force_manual"`
}

// BrokerAccountResponse represents a broker ledger header
type BrokerAccountResponse struct {
	ID                    uint    `json:"id"`
	UUID                  string  `json:"uuid"`
	AccountNumber         string  `json:"account_number"`
	BrokerID              uint    `json:"broker_id"`
	PlanID                uint    `json:"plan_id"`
	CurrentBalance        string  `json:"current_balance"`
	Currency              string  `json:"currency"`
	SubscriptionStartDate string  `json:"subscription_start_date"`
	LastChargeDate        *string `json:"last_charge_date,omitempty"`
	NextDueDate           string  `json:"next_due_date"`
	GracePeriodEnd        *string `json:"grace_period_end,omitempty"`
	AccountStatus         string  `json:"account_status"`
}

// BrokerTransactionResponse represents one ledger entry
type BrokerTransactionResponse struct {
	ID              uint    `json:"id"`
	UUID            string  `json:"uuid"`
	Type            string  `json:"type"`
	Amount          string  `json:"amount"`
	BalanceAfter    string  `json:"balance_after"`
	Description     string  `json:"description"`
	ReferenceNumber *string `json:"reference_number,omitempty"`
	DueDate         *string `json:"due_date,omitempty"`
	CreatedBy       *string `json:"created_by,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

// StatementResponse represents an account with its ledger
type StatementResponse struct {
	Account      BrokerAccountResponse       `json:"account"`
	PlanName     string                      `json:"plan_name,omitempty"`
	Transactions []BrokerTransactionResponse `json:"transactions"`
}

// BalanceResponse represents the balance after a ledger append
type BalanceResponse struct {
	BrokerID       uint   `json:"broker_id"`
	CurrentBalance string `json:"current_balance"`
}

// ReleaseLeadsResponse represents leads returned to the unassigned pool
type ReleaseLeadsResponse struct {
	BrokerID uint  `json:"broker_id"`
	Released int64 `json:"released"`
}

// ReconciliationResponse represents a ledger replay
type ReconciliationResponse struct {
	AccountID          uint   `json:"account_id"`
	HeaderBalance      string `json:"header_balance"`
	ReplayedBalance    string `json:"replayed_balance"`
	LastBalanceAfter   string `json:"last_balance_after"`
	EntryCount         int    `json:"entry_count"`
	FirstBrokenEntryID *uint  `json:"first_broken_entry_id,omitempty"`
	Consistent         bool   `json:"consistent"`
}
