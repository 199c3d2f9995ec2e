// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/cotizabot/cotizabot/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
}

// BrokerRepository defines operations for brokers
type BrokerRepository interface {
	Repository[models.Broker, models.BrokerFilter]
	Update(ctx context.Context, broker *models.Broker) error
	// ListEligibleForAssignment returns active brokers under quota, least loaded first.
	ListEligibleForAssignment(ctx context.Context, limit int) ([]*models.Broker, error)
	// IncrementLeadCountIfBelowQuota re-checks eligibility at write time and reports whether the increment happened.
	IncrementLeadCountIfBelowQuota(ctx context.Context, brokerID uint) (bool, error)
	UpdateSubscription(ctx context.Context, brokerID uint, status models.SubscriptionStatus, planID *uint) error
	SetLoginActive(ctx context.Context, brokerID uint, active bool) error
}

// LeadRepository defines operations for leads
type LeadRepository interface {
	Repository[models.Lead, models.LeadFilter]
	ByPhone(ctx context.Context, phone string) (*models.Lead, error)
	ByIDForUpdate(ctx context.Context, id uint) (*models.Lead, error)
	Update(ctx context.Context, lead *models.Lead) error
	// AssignIfUnassigned writes the assignment only if no broker owns the lead yet.
	AssignIfUnassigned(ctx context.Context, leadID, brokerID uint, assignedAt, firstContactDeadline, reassignmentDeadline time.Time) (bool, error)
	UnassignByBroker(ctx context.Context, brokerID uint) (int64, error)
}

// LeadQuoteSnapshotRepository defines operations for lead quote history
type LeadQuoteSnapshotRepository interface {
	Save(ctx context.Context, snapshot *models.LeadQuoteSnapshot) error
	LatestByLead(ctx context.Context, leadID uint) (*models.LeadQuoteSnapshot, error)
	ListByLead(ctx context.Context, leadID uint) ([]*models.LeadQuoteSnapshot, error)
}

// InsurerRepository defines read access to the insurer rate catalog
type InsurerRepository interface {
	// ListActiveWithRates returns active insurers with their active rate configs in catalog order.
	ListActiveWithRates(ctx context.Context) ([]*models.Insurer, error)
}

// InsurabilityBlacklistRepository defines read access to the insurability blacklist
type InsurabilityBlacklistRepository interface {
	// ByMakeModel matches make and model case-insensitively across all years.
	ByMakeModel(ctx context.Context, vehicleMake, vehicleModel string) ([]*models.InsurabilityBlacklistEntry, error)
}

// SubscriptionPlanRepository defines operations for subscription plans
type SubscriptionPlanRepository interface {
	Repository[models.SubscriptionPlan, models.SubscriptionPlanFilter]
	ByName(ctx context.Context, name string) (*models.SubscriptionPlan, error)
}

// BrokerAccountRepository defines operations for broker ledger headers
type BrokerAccountRepository interface {
	Repository[models.BrokerAccount, models.BrokerAccountFilter]
	ByBrokerID(ctx context.Context, brokerID uint) (*models.BrokerAccount, error)
	ByIDForUpdate(ctx context.Context, id uint) (*models.BrokerAccount, error)
	ByBrokerIDForUpdate(ctx context.Context, brokerID uint) (*models.BrokerAccount, error)
	Update(ctx context.Context, account *models.BrokerAccount) error
	ListIDsForMonthlyCharge(ctx context.Context) ([]uint, error)
	ListIDsForOverdueCheck(ctx context.Context) ([]uint, error)
}

// BrokerTransactionRepository defines operations for the append-only broker ledger
type BrokerTransactionRepository interface {
	Save(ctx context.Context, tx *models.BrokerTransaction) error
	// ListByAccount returns entries in ledger order (creation time, then id).
	ListByAccount(ctx context.Context, accountID uint) ([]*models.BrokerTransaction, error)
	Latest(ctx context.Context, accountID uint) (*models.BrokerTransaction, error)
}

// SequenceCounterRepository defines operations for named monotonic counters
type SequenceCounterRepository interface {
	// Next atomically increments the named counter and returns the new value.
	Next(ctx context.Context, name string) (int64, error)
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	ListByBroker(ctx context.Context, brokerID uint, limit, offset int) ([]*models.AuditLog, error)
	ListByAction(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error)
}
