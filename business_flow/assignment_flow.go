package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cotizabot/cotizabot/app/services"
	"github.com/cotizabot/cotizabot/config"
	"github.com/cotizabot/cotizabot/models"
	"github.com/cotizabot/cotizabot/repository"
	"github.com/cotizabot/cotizabot/utils"
)

// AssignmentFlow hands leads to brokers under their monthly quota
type AssignmentFlow interface {
	// AssignBroker picks the least loaded eligible broker for the lead. It returns nil without
	// error when no broker is eligible, the lead does not exist, or the lead is already assigned.
	AssignBroker(ctx context.Context, leadID uint, metadata *ClientMetadata) (*uint, error)
	// ReleaseBrokerLeads unassigns every lead owned by a broker without deleting them.
	ReleaseBrokerLeads(ctx context.Context, brokerID uint, metadata *ClientMetadata) (int64, error)
}

// AssignmentFlowImpl implements the assignment engine
type AssignmentFlowImpl struct {
	leadRepo   repository.LeadRepository
	brokerRepo repository.BrokerRepository
	auditRepo  repository.AuditLogRepository
	tx         repository.Transactor
	notifier   services.NotificationService
	events     services.EventPublisher
	cfg        config.AssignmentConfig
	logger     *slog.Logger
	now        func() time.Time
}

// NewAssignmentFlow creates a new assignment flow
func NewAssignmentFlow(
	leadRepo repository.LeadRepository,
	brokerRepo repository.BrokerRepository,
	auditRepo repository.AuditLogRepository,
	tx repository.Transactor,
	notifier services.NotificationService,
	events services.EventPublisher,
	cfg config.AssignmentConfig,
	logger *slog.Logger,
) AssignmentFlow {
	if cfg.FirstContactSLA <= 0 {
		cfg.FirstContactSLA = utils.FirstContactSLA
	}
	if cfg.ReassignmentSLA <= 0 {
		cfg.ReassignmentSLA = utils.ReassignmentSLA
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = 5
	}
	return &AssignmentFlowImpl{
		leadRepo:   leadRepo,
		brokerRepo: brokerRepo,
		auditRepo:  auditRepo,
		tx:         tx,
		notifier:   notifier,
		events:     events,
		cfg:        cfg,
		logger:     logger,
		now:        utils.UTCNow,
	}
}

type assignmentResult struct {
	lead    *models.Lead
	broker  *models.Broker
	outcome string
	at      time.Time
}

// AssignBroker runs eligibility, choice and both writes in one transaction. The lead row is
// locked first so a second attempt for the same lead waits and then sees it assigned. The
// broker counter is bumped with a conditional update, so a candidate filled in the meantime
// is skipped instead of exceeding its quota.
func (a *AssignmentFlowImpl) AssignBroker(ctx context.Context, leadID uint, metadata *ClientMetadata) (*uint, error) {
	var res assignmentResult

	err := a.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		res = assignmentResult{}

		lead, err := a.leadRepo.ByIDForUpdate(txCtx, leadID)
		if err != nil {
			return err
		}
		if lead == nil {
			res.outcome = "lead_not_found"
			return nil
		}
		res.lead = lead
		if lead.IsAssigned() {
			res.outcome = "already_assigned"
			return nil
		}

		// A batch can be used up by concurrent assignments while other brokers still have room,
		// so fetch a fresh one until a broker accepts or none is left to try.
		tried := make(map[uint]bool)
		for {
			candidates, err := a.brokerRepo.ListEligibleForAssignment(txCtx, a.cfg.CandidateLimit)
			if err != nil {
				return err
			}

			fresh := 0
			for _, candidate := range candidates {
				if tried[candidate.ID] {
					continue
				}
				tried[candidate.ID] = true
				fresh++

				ok, err := a.brokerRepo.IncrementLeadCountIfBelowQuota(txCtx, candidate.ID)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}

				now := a.now()
				won, err := a.leadRepo.AssignIfUnassigned(txCtx, lead.ID, candidate.ID, now,
					now.Add(a.cfg.FirstContactSLA), now.Add(a.cfg.ReassignmentSLA))
				if err != nil {
					return err
				}
				if !won {
					// Roll back the quota increment
					return ErrLeadAssignmentConflict
				}

				candidate.CurrentMonthLeads++
				res.broker = candidate
				res.at = now
				res.outcome = "assigned"
				return nil
			}

			if fresh == 0 {
				break
			}
		}

		res.outcome = "no_eligible_broker"
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrLeadAssignmentConflict) {
			leadAssignmentsTotal.WithLabelValues("lost_race").Inc()
			a.logger.Info("lead assignment lost a concurrent race", "lead_id", leadID)
			return nil, nil
		}
		return nil, NewBusinessError("LEAD_ASSIGNMENT_FAILED", "Failed to assign lead", err)
	}

	leadAssignmentsTotal.WithLabelValues(res.outcome).Inc()

	if res.broker == nil {
		if res.outcome == "no_eligible_broker" {
			a.logger.Info("no eligible broker for lead", "lead_id", leadID)
		}
		return nil, nil
	}

	a.afterAssignment(ctx, res, metadata)

	return &res.broker.ID, nil
}

// afterAssignment runs the side effects of a committed assignment. None of them can undo it.
func (a *AssignmentFlowImpl) afterAssignment(ctx context.Context, res assignmentResult, metadata *ClientMetadata) {
	lead, broker := res.lead, res.broker
	firstContact := res.at.Add(a.cfg.FirstContactSLA)

	vehicle := fmt.Sprintf("%s %s %d", lead.VehicleMake, lead.VehicleModel, lead.VehicleYear)
	err := a.notifier.Notify(ctx, broker.Phone, services.NotificationLeadAssigned, map[string]string{
		"lead_name":              lead.Name,
		"lead_phone":             lead.Phone,
		"vehicle":                vehicle,
		"first_contact_deadline": formatDeadline(firstContact),
	})
	if err != nil {
		a.logger.Warn("failed to notify broker of assigned lead", "lead_id", lead.ID, "broker_id", broker.ID, "error", err)
	}

	event := services.NewDomainEvent(services.EventLeadAssigned, lead.ID, map[string]any{
		"lead_id":                    lead.ID,
		"broker_id":                  broker.ID,
		"sla_first_contact_deadline": firstContact,
		"sla_reassignment_deadline":  res.at.Add(a.cfg.ReassignmentSLA),
	})
	if err = a.events.Publish(ctx, event); err != nil {
		a.logger.Warn("failed to publish lead assignment event", "lead_id", lead.ID, "error", err)
	}

	msg := fmt.Sprintf("Lead %d assigned to broker %d (%d/%d leads this month)",
		lead.ID, broker.ID, broker.CurrentMonthLeads, broker.MonthlyLeadQuota)
	createAuditLog(ctx, a.auditRepo, a.logger, auditSubject{BrokerID: &broker.ID, LeadID: &lead.ID},
		models.AuditActionLeadAssigned, msg, true, nil, nil, metadata)

	a.logger.Info("lead assigned", "lead_id", lead.ID, "broker_id", broker.ID)
}

func (a *AssignmentFlowImpl) ReleaseBrokerLeads(ctx context.Context, brokerID uint, metadata *ClientMetadata) (int64, error) {
	broker, err := a.brokerRepo.ByID(ctx, brokerID)
	if err != nil {
		return 0, NewBusinessError("BROKER_LOOKUP_FAILED", "Failed to load broker", err)
	}
	if broker == nil {
		return 0, NewBusinessError("BROKER_NOT_FOUND", "Broker not found", ErrBrokerNotFound)
	}

	released, err := a.leadRepo.UnassignByBroker(ctx, brokerID)
	if err != nil {
		return 0, NewBusinessError("RELEASE_LEADS_FAILED", "Failed to release broker leads", err)
	}

	msg := fmt.Sprintf("Released %d leads of broker %d", released, brokerID)
	createAuditLog(ctx, a.auditRepo, a.logger, auditSubject{BrokerID: &brokerID},
		models.AuditActionLeadUnassigned, msg, true, nil, map[string]any{"released": released}, metadata)

	return released, nil
}
