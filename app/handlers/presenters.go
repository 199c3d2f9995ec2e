package handlers

import (
	"time"

	"github.com/cotizabot/cotizabot/app/dto"
	businessflow "github.com/cotizabot/cotizabot/business_flow"
	"github.com/cotizabot/cotizabot/models"
	"github.com/shopspring/decimal"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func formatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func formatNullMoney(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := formatMoney(d.Decimal)
	return &s
}

func toVehicle(req dto.VehicleRequest) models.Vehicle {
	return models.Vehicle{
		Make:         req.Make,
		Model:        req.Model,
		Year:         req.Year,
		InsuredValue: req.InsuredValue,
	}
}

func toQuoteResponse(q models.Quote) dto.QuoteResponse {
	return dto.QuoteResponse{
		InsurerID:       q.InsurerID,
		InsurerName:     q.InsurerName,
		CoverageType:    string(q.CoverageType),
		MonthlyPremium:  formatMoney(q.MonthlyPremium),
		CoverageSummary: q.CoverageSummary,
	}
}

func toQuoteResponses(quotes []models.Quote) []dto.QuoteResponse {
	out := make([]dto.QuoteResponse, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, toQuoteResponse(q))
	}
	return out
}

func toLeadResponse(l *models.Lead) dto.LeadResponse {
	resp := dto.LeadResponse{
		ID:                      l.ID,
		UUID:                    l.UUID.String(),
		Phone:                   l.Phone,
		Name:                    l.Name,
		VehicleMake:             l.VehicleMake,
		VehicleModel:            l.VehicleModel,
		VehicleYear:             l.VehicleYear,
		InsuredValue:            formatNullMoney(l.InsuredValue),
		Status:                  string(l.Status),
		AssignedBrokerID:        l.AssignedBrokerID,
		SLAFirstContactDeadline: formatTimePtr(l.SLAFirstContactDeadline),
		SLAReassignmentDeadline: formatTimePtr(l.SLAReassignmentDeadline),
		SelectedInsurerID:       l.SelectedInsurerID,
		SelectedMonthlyPremium:  formatNullMoney(l.SelectedMonthlyPremium),
		CreatedAt:               formatTime(l.CreatedAt),
	}
	if l.SelectedCoverageType != nil {
		ct := string(*l.SelectedCoverageType)
		resp.SelectedCoverageType = &ct
	}
	return resp
}

func toAccountResponse(a *models.BrokerAccount) dto.BrokerAccountResponse {
	return dto.BrokerAccountResponse{
		ID:                    a.ID,
		UUID:                  a.UUID.String(),
		AccountNumber:         a.AccountNumber,
		BrokerID:              a.BrokerID,
		PlanID:                a.PlanID,
		CurrentBalance:        formatMoney(a.CurrentBalance),
		Currency:              a.Currency,
		SubscriptionStartDate: formatTime(a.SubscriptionStartDate),
		LastChargeDate:        formatTimePtr(a.LastChargeDate),
		NextDueDate:           formatTime(a.NextDueDate),
		GracePeriodEnd:        formatTimePtr(a.GracePeriodEnd),
		AccountStatus:         string(a.AccountStatus),
	}
}

func toTransactionResponse(t *models.BrokerTransaction) dto.BrokerTransactionResponse {
	return dto.BrokerTransactionResponse{
		ID:              t.ID,
		UUID:            t.UUID.String(),
		Type:            string(t.Type),
		Amount:          formatMoney(t.Amount),
		BalanceAfter:    formatMoney(t.BalanceAfter),
		Description:     t.Description,
		ReferenceNumber: t.ReferenceNumber,
		DueDate:         formatTimePtr(t.DueDate),
		CreatedBy:       t.CreatedBy,
		CreatedAt:       formatTime(t.CreatedAt),
	}
}

func toStatementResponse(s *businessflow.Statement) dto.StatementResponse {
	resp := dto.StatementResponse{
		Account:      toAccountResponse(s.Account),
		Transactions: make([]dto.BrokerTransactionResponse, 0, len(s.Transactions)),
	}
	if s.Plan != nil {
		resp.PlanName = s.Plan.Name
	}
	for _, t := range s.Transactions {
		resp.Transactions = append(resp.Transactions, toTransactionResponse(t))
	}
	return resp
}

func toReconciliationResponse(r *businessflow.Reconciliation) dto.ReconciliationResponse {
	return dto.ReconciliationResponse{
		AccountID:          r.AccountID,
		HeaderBalance:      formatMoney(r.HeaderBalance),
		ReplayedBalance:    formatMoney(r.ReplayedBalance),
		LastBalanceAfter:   formatMoney(r.LastBalanceAfter),
		EntryCount:         r.EntryCount,
		FirstBrokenEntryID: r.FirstBrokenEntryID,
		Consistent:         r.Consistent,
	}
}
