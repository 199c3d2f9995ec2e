package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cotizabot/cotizabot/models"
	"github.com/cotizabot/cotizabot/repository"
	"github.com/cotizabot/cotizabot/utils"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CommandType is the closed vocabulary of intents an inbound conversation can produce
type CommandType string

const (
	CommandSetVehicle    CommandType = "set_vehicle"
	CommandRequestQuotes CommandType = "request_quotes"
	CommandSelectQuote   CommandType = "select_quote"
	CommandRequestBroker CommandType = "request_broker"
)

// Command is a structured intent for one lead. Only the fields of its Type are read.
type Command struct {
	Type         CommandType         `json:"type"`
	Vehicle      *models.Vehicle     `json:"vehicle,omitempty"`
	InsurerID    uint                `json:"insurer_id,omitempty"`
	CoverageType models.CoverageType `json:"coverage_type,omitempty"`
}

// QuoteResult is the outcome of a quote request for a lead
type QuoteResult struct {
	Lead   *models.Lead   `json:"lead"`
	Quotes []models.Quote `json:"quotes"`
}

// SelectionResult is the outcome of a quote selection. BrokerID is nil when no broker was eligible.
type SelectionResult struct {
	Lead     *models.Lead `json:"lead"`
	Quote    models.Quote `json:"quote"`
	BrokerID *uint        `json:"broker_id,omitempty"`
}

// CommandResult carries whichever result the applied command produced
type CommandResult struct {
	Lead      *models.Lead     `json:"lead"`
	Quotes    []models.Quote   `json:"quotes,omitempty"`
	Selection *SelectionResult `json:"selection,omitempty"`
	BrokerID  *uint            `json:"broker_id,omitempty"`
}

// LeadFlow moves a lead through intake: vehicle data, quotes, selection and assignment
type LeadFlow interface {
	// CaptureLead is idempotent per phone number.
	CaptureLead(ctx context.Context, phone, name string, metadata *ClientMetadata) (*models.Lead, error)
	GetLead(ctx context.Context, leadID uint) (*models.Lead, error)
	UpdateVehicle(ctx context.Context, leadID uint, vehicle models.Vehicle, metadata *ClientMetadata) (*models.Lead, error)
	RequestQuotes(ctx context.Context, leadID uint, metadata *ClientMetadata) (*QuoteResult, error)
	SelectQuote(ctx context.Context, leadID, insurerID uint, coverage models.CoverageType, metadata *ClientMetadata) (*SelectionResult, error)
	ApplyCommand(ctx context.Context, leadID uint, cmd Command, metadata *ClientMetadata) (*CommandResult, error)
}

// LeadFlowImpl implements the lead intake state machine
type LeadFlowImpl struct {
	leadRepo        repository.LeadRepository
	snapshotRepo    repository.LeadQuoteSnapshotRepository
	auditRepo       repository.AuditLogRepository
	tx              repository.Transactor
	quotes          QuoteFlow
	assignment      AssignmentFlow
	maxInsuredValue decimal.Decimal
	logger          *slog.Logger
}

// NewLeadFlow creates a new lead flow
func NewLeadFlow(
	leadRepo repository.LeadRepository,
	snapshotRepo repository.LeadQuoteSnapshotRepository,
	auditRepo repository.AuditLogRepository,
	tx repository.Transactor,
	quotes QuoteFlow,
	assignment AssignmentFlow,
	maxInsuredValue decimal.Decimal,
	logger *slog.Logger,
) LeadFlow {
	return &LeadFlowImpl{
		leadRepo:        leadRepo,
		snapshotRepo:    snapshotRepo,
		auditRepo:       auditRepo,
		tx:              tx,
		quotes:          quotes,
		assignment:      assignment,
		maxInsuredValue: maxInsuredValue,
		logger:          logger,
	}
}

func (l *LeadFlowImpl) CaptureLead(ctx context.Context, phone, name string, metadata *ClientMetadata) (*models.Lead, error) {
	phone = strings.TrimSpace(phone)
	name = strings.TrimSpace(name)
	if phone == "" {
		return nil, NewBusinessError("INVALID_PHONE", "Phone number is required", ErrInvalidPhone)
	}

	existing, err := l.leadRepo.ByPhone(ctx, phone)
	if err != nil {
		return nil, NewBusinessError("LEAD_LOOKUP_FAILED", "Failed to load lead", err)
	}
	if existing != nil {
		if existing.Name != "" || name == "" {
			return existing, nil
		}
		lead, err := l.updateLocked(ctx, existing.ID, func(txCtx context.Context, lead *models.Lead) (bool, error) {
			if lead.Name != "" {
				return false, nil
			}
			lead.Name = name
			return true, nil
		})
		if err != nil {
			return nil, leadWriteError(err, "Failed to update lead")
		}
		return lead, nil
	}

	lead := &models.Lead{
		Phone:  phone,
		Name:   name,
		Status: models.LeadStatusPendingData,
	}
	if err := l.leadRepo.Save(ctx, lead); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Captured concurrently from another message
			if existing, lookupErr := l.leadRepo.ByPhone(ctx, phone); lookupErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, NewBusinessError("LEAD_CAPTURE_FAILED", "Failed to capture lead", err)
	}

	createAuditLog(ctx, l.auditRepo, l.logger, auditSubject{LeadID: &lead.ID},
		models.AuditActionLeadCaptured, fmt.Sprintf("Captured lead %d", lead.ID), true, nil, nil, metadata)

	return lead, nil
}

func (l *LeadFlowImpl) GetLead(ctx context.Context, leadID uint) (*models.Lead, error) {
	lead, err := l.leadRepo.ByID(ctx, leadID)
	if err != nil {
		return nil, NewBusinessError("LEAD_LOOKUP_FAILED", "Failed to load lead", err)
	}
	if lead == nil {
		return nil, NewBusinessError("LEAD_NOT_FOUND", "Lead not found", ErrLeadNotFound)
	}
	return lead, nil
}

// UpdateVehicle stores the vehicle of a lead. Changing the vehicle of an unassigned, quoted
// lead invalidates its quotes and selection, so the lead goes back to pending data.
func (l *LeadFlowImpl) UpdateVehicle(ctx context.Context, leadID uint, vehicle models.Vehicle, metadata *ClientMetadata) (*models.Lead, error) {
	vehicle.Make = strings.TrimSpace(vehicle.Make)
	vehicle.Model = strings.TrimSpace(vehicle.Model)
	if err := ValidateVehicle(vehicle, l.maxInsuredValue); err != nil {
		return nil, NewBusinessError("INVALID_VEHICLE", "Invalid vehicle data", err)
	}

	lead, err := l.updateLocked(ctx, leadID, func(txCtx context.Context, lead *models.Lead) (bool, error) {
		lead.VehicleMake = vehicle.Make
		lead.VehicleModel = vehicle.Model
		lead.VehicleYear = vehicle.Year
		lead.InsuredValue = decimal.NewNullDecimal(vehicle.InsuredValue.Round(2))

		if !lead.IsAssigned() {
			lead.Status = models.LeadStatusPendingData
			lead.SelectedInsurerID = nil
			lead.SelectedCoverageType = nil
			lead.SelectedMonthlyPremium = decimal.NullDecimal{}
		}
		return true, nil
	})
	if err != nil {
		return nil, leadWriteError(err, "Failed to update lead vehicle")
	}

	return lead, nil
}

// RequestQuotes prices the lead's vehicle and keeps the result as a snapshot. The lead becomes
// quoted only when at least one quote came back.
func (l *LeadFlowImpl) RequestQuotes(ctx context.Context, leadID uint, metadata *ClientMetadata) (*QuoteResult, error) {
	lead, err := l.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}

	vehicle, complete := lead.Vehicle()
	if !complete {
		return nil, NewBusinessError("VEHICLE_INCOMPLETE", "Lead vehicle data is incomplete", ErrVehicleIncomplete)
	}

	quotes, err := l.quotes.ComputeQuotes(ctx, vehicle)
	if err != nil {
		return nil, err
	}

	snapshot := &models.LeadQuoteSnapshot{
		LeadID:    lead.ID,
		Vehicle:   datatypes.NewJSONType(vehicle),
		Quotes:    datatypes.JSONSlice[models.Quote](quotes),
		CreatedAt: utils.UTCNow(),
	}
	if err := l.snapshotRepo.Save(ctx, snapshot); err != nil {
		return nil, NewBusinessError("SNAPSHOT_SAVE_FAILED", "Failed to store quotes", err)
	}

	if len(quotes) > 0 {
		// The status is re-read under the row lock; the lead may have moved on while pricing ran.
		lead, err = l.updateLocked(ctx, lead.ID, func(txCtx context.Context, lead *models.Lead) (bool, error) {
			if lead.Status != models.LeadStatusPendingData {
				return false, nil
			}
			lead.Status = models.LeadStatusQuotedNoPreference
			return true, nil
		})
		if err != nil {
			return nil, leadWriteError(err, "Failed to update lead status")
		}
	}

	msg := fmt.Sprintf("Computed %d quotes for lead %d", len(quotes), lead.ID)
	createAuditLog(ctx, l.auditRepo, l.logger, auditSubject{LeadID: &lead.ID},
		models.AuditActionLeadQuoted, msg, true, nil, map[string]any{"snapshot_id": snapshot.ID}, metadata)

	return &QuoteResult{Lead: lead, Quotes: quotes}, nil
}

// SelectQuote records the quote the customer chose from the latest snapshot and asks the
// assignment engine for a broker. An already assigned lead keeps its broker.
func (l *LeadFlowImpl) SelectQuote(ctx context.Context, leadID, insurerID uint, coverage models.CoverageType, metadata *ClientMetadata) (*SelectionResult, error) {
	if !coverage.Valid() || insurerID == 0 {
		return nil, NewBusinessError("INVALID_SELECTION", "Invalid insurer or coverage type", ErrInvalidCoverageSelection)
	}

	var quote models.Quote
	lead, err := l.updateLocked(ctx, leadID, func(txCtx context.Context, lead *models.Lead) (bool, error) {
		snapshot, err := l.snapshotRepo.LatestByLead(txCtx, lead.ID)
		if err != nil {
			return false, NewBusinessError("SNAPSHOT_LOOKUP_FAILED", "Failed to load quotes", err)
		}
		if snapshot == nil {
			return false, NewBusinessError("QUOTES_NOT_FOUND", "No quotes have been computed for this lead", ErrSnapshotNotFound)
		}

		var ok bool
		quote, ok = snapshot.Find(insurerID, coverage)
		if !ok {
			return false, NewBusinessError("INVALID_SELECTION", "Selected quote was not offered to this lead", ErrInvalidCoverageSelection)
		}

		lead.SelectedInsurerID = &quote.InsurerID
		lead.SelectedCoverageType = &quote.CoverageType
		lead.SelectedMonthlyPremium = decimal.NewNullDecimal(quote.MonthlyPremium)
		if !lead.IsAssigned() {
			lead.Status = models.LeadStatusQuotedNoPreference
		}
		return true, nil
	})
	if err != nil {
		return nil, leadWriteError(err, "Failed to record selection")
	}

	msg := fmt.Sprintf("Lead %d selected %s from insurer %d", lead.ID, quote.CoverageType, quote.InsurerID)
	createAuditLog(ctx, l.auditRepo, l.logger, auditSubject{LeadID: &lead.ID},
		models.AuditActionLeadQuoteSelected, msg, true, nil, map[string]any{"monthly_premium": quote.MonthlyPremium}, metadata)

	result := &SelectionResult{Lead: lead, Quote: quote}
	if lead.IsAssigned() {
		result.BrokerID = lead.AssignedBrokerID
		return result, nil
	}

	brokerID, err := l.assignment.AssignBroker(ctx, lead.ID, metadata)
	if err != nil {
		return nil, err
	}
	result.BrokerID = brokerID

	if brokerID != nil {
		// Reflect the committed assignment without another round trip
		lead.AssignedBrokerID = brokerID
		lead.Status = models.LeadStatusAssignedToBroker
	}

	return result, nil
}

// updateLocked loads the lead under a row lock and writes it back when mutate reports a change.
// A concurrent assignment either commits before the read or waits for the write.
func (l *LeadFlowImpl) updateLocked(ctx context.Context, leadID uint, mutate func(txCtx context.Context, lead *models.Lead) (bool, error)) (*models.Lead, error) {
	var lead *models.Lead
	err := l.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		lead, err = l.leadRepo.ByIDForUpdate(txCtx, leadID)
		if err != nil {
			return err
		}
		if lead == nil {
			return ErrLeadNotFound
		}

		changed, err := mutate(txCtx, lead)
		if err != nil || !changed {
			return err
		}
		return l.leadRepo.Update(txCtx, lead)
	})
	if err != nil {
		return nil, err
	}
	return lead, nil
}

// leadWriteError maps an error out of updateLocked to the error returned to callers
func leadWriteError(err error, message string) error {
	var be *BusinessError
	switch {
	case errors.As(err, &be):
		return be
	case errors.Is(err, ErrLeadNotFound):
		return NewBusinessError("LEAD_NOT_FOUND", "Lead not found", err)
	}
	return NewBusinessError("LEAD_UPDATE_FAILED", message, err)
}

func (l *LeadFlowImpl) ApplyCommand(ctx context.Context, leadID uint, cmd Command, metadata *ClientMetadata) (*CommandResult, error) {
	switch cmd.Type {
	case CommandSetVehicle:
		if cmd.Vehicle == nil {
			return nil, NewBusinessError("INVALID_VEHICLE", "Vehicle is required", ErrVehicleIncomplete)
		}
		lead, err := l.UpdateVehicle(ctx, leadID, *cmd.Vehicle, metadata)
		if err != nil {
			return nil, err
		}
		return &CommandResult{Lead: lead}, nil

	case CommandRequestQuotes:
		res, err := l.RequestQuotes(ctx, leadID, metadata)
		if err != nil {
			return nil, err
		}
		return &CommandResult{Lead: res.Lead, Quotes: res.Quotes}, nil

	case CommandSelectQuote:
		res, err := l.SelectQuote(ctx, leadID, cmd.InsurerID, cmd.CoverageType, metadata)
		if err != nil {
			return nil, err
		}
		return &CommandResult{Lead: res.Lead, Selection: res, BrokerID: res.BrokerID}, nil

	case CommandRequestBroker:
		lead, err := l.GetLead(ctx, leadID)
		if err != nil {
			return nil, err
		}
		brokerID, err := l.assignment.AssignBroker(ctx, lead.ID, metadata)
		if err != nil {
			return nil, err
		}
		if brokerID == nil {
			brokerID = lead.AssignedBrokerID
		} else {
			lead.AssignedBrokerID = brokerID
			lead.Status = models.LeadStatusAssignedToBroker
		}
		return &CommandResult{Lead: lead, BrokerID: brokerID}, nil
	}

	return nil, NewBusinessErrorf("UNKNOWN_COMMAND", "Unknown command %q", ErrUnknownCommand, cmd.Type)
}
