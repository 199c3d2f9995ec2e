package models

import (
	"encoding/json"
	"time"
)

type AuditLog struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	BrokerID     *uint           `gorm:"index:idx_audit_broker_id" json:"broker_id,omitempty"`
	LeadID       *uint           `gorm:"index:idx_audit_lead_id" json:"lead_id,omitempty"`
	AccountID    *uint           `gorm:"index:idx_audit_account_id" json:"account_id,omitempty"`
	Action       string          `gorm:"size:64;not null;index:idx_audit_action" json:"action"`
	Description  *string         `gorm:"type:text" json:"description,omitempty"`
	IPAddress    *string         `gorm:"size:64" json:"ip_address,omitempty"`
	UserAgent    *string         `gorm:"type:text" json:"user_agent,omitempty"`
	RequestID    *string         `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Metadata     json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	Success      *bool           `gorm:"default:true;index:idx_audit_success" json:"success"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time       `gorm:"default:CURRENT_TIMESTAMP;index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// Audit action constants
const (
	AuditActionLeadCaptured        = "lead_captured"
	AuditActionLeadQuoted          = "lead_quoted"
	AuditActionLeadQuoteSelected   = "lead_quote_selected"
	AuditActionLeadAssigned        = "lead_assigned"
	AuditActionLeadUnassigned      = "lead_unassigned"
	AuditActionAccountCreated      = "account_created"
	AuditActionAccountCreateFailed = "account_create_failed"
	AuditActionMonthlyChargePosted = "monthly_charge_posted"
	AuditActionPaymentApplied      = "payment_applied"
	AuditActionAdjustmentApplied   = "adjustment_applied"
	AuditActionAccountGracePeriod  = "account_grace_period"
	AuditActionAccountSuspended    = "account_suspended"
	AuditActionAccountReactivated  = "account_reactivated"
	AuditActionStatementExported   = "statement_exported"
	AuditActionBillingJobCompleted = "billing_job_completed"
)

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	ID            *uint
	BrokerID      *uint
	LeadID        *uint
	AccountID     *uint
	Action        *string
	Success       *bool
	RequestID     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
