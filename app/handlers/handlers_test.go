package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	businessflow "github.com/cotizabot/cotizabot/business_flow"
	"github.com/cotizabot/cotizabot/models"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.DiscardHandler)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Details any    `json:"details"`
	} `json:"error"`
}

type stubQuoteFlow struct {
	quotes []models.Quote
	err    error
	got    models.Vehicle
}

func (s *stubQuoteFlow) ComputeQuotes(ctx context.Context, vehicle models.Vehicle) ([]models.Quote, error) {
	s.got = vehicle
	return s.quotes, s.err
}

type stubLeadFlow struct {
	lead      *models.Lead
	quotes    []models.Quote
	selection *businessflow.SelectionResult
	command   *businessflow.CommandResult
	err       error

	gotPhone   string
	gotCommand businessflow.Command
	gotActor   string
}

func (s *stubLeadFlow) record(metadata *businessflow.ClientMetadata) {
	if metadata != nil {
		s.gotActor = metadata.Actor
	}
}

func (s *stubLeadFlow) CaptureLead(ctx context.Context, phone, name string, metadata *businessflow.ClientMetadata) (*models.Lead, error) {
	s.gotPhone = phone
	s.record(metadata)
	return s.lead, s.err
}

func (s *stubLeadFlow) GetLead(ctx context.Context, leadID uint) (*models.Lead, error) {
	return s.lead, s.err
}

func (s *stubLeadFlow) UpdateVehicle(ctx context.Context, leadID uint, vehicle models.Vehicle, metadata *businessflow.ClientMetadata) (*models.Lead, error) {
	s.record(metadata)
	return s.lead, s.err
}

func (s *stubLeadFlow) RequestQuotes(ctx context.Context, leadID uint, metadata *businessflow.ClientMetadata) (*businessflow.QuoteResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &businessflow.QuoteResult{Lead: s.lead, Quotes: s.quotes}, nil
}

func (s *stubLeadFlow) SelectQuote(ctx context.Context, leadID, insurerID uint, coverage models.CoverageType, metadata *businessflow.ClientMetadata) (*businessflow.SelectionResult, error) {
	return s.selection, s.err
}

func (s *stubLeadFlow) ApplyCommand(ctx context.Context, leadID uint, cmd businessflow.Command, metadata *businessflow.ClientMetadata) (*businessflow.CommandResult, error) {
	s.gotCommand = cmd
	return s.command, s.err
}

type stubAssignmentFlow struct {
	brokerID *uint
	released int64
	err      error
}

func (s *stubAssignmentFlow) AssignBroker(ctx context.Context, leadID uint, metadata *businessflow.ClientMetadata) (*uint, error) {
	return s.brokerID, s.err
}

func (s *stubAssignmentFlow) ReleaseBrokerLeads(ctx context.Context, brokerID uint, metadata *businessflow.ClientMetadata) (int64, error) {
	return s.released, s.err
}

type stubBillingFlow struct {
	account   *models.BrokerAccount
	balance   decimal.Decimal
	statement *businessflow.Statement
	export    *businessflow.StatementExport
	recon     *businessflow.Reconciliation
	monthly   *businessflow.MonthlyChargeResult
	overdue   *businessflow.OverdueCheckResult
	err       error

	gotForce   bool
	gotPayment businessflow.PaymentInput
	gotActor   string
}

func (s *stubBillingFlow) CreateAccount(ctx context.Context, brokerID, planID uint, metadata *businessflow.ClientMetadata) (*models.BrokerAccount, error) {
	return s.account, s.err
}

func (s *stubBillingFlow) GenerateMonthlyCharges(ctx context.Context, forceManual bool, metadata *businessflow.ClientMetadata) (*businessflow.MonthlyChargeResult, error) {
	s.gotForce = forceManual
	if metadata != nil {
		s.gotActor = metadata.Actor
	}
	return s.monthly, s.err
}

func (s *stubBillingFlow) CheckOverdueAccounts(ctx context.Context, metadata *businessflow.ClientMetadata) (*businessflow.OverdueCheckResult, error) {
	return s.overdue, s.err
}

func (s *stubBillingFlow) ApplyPayment(ctx context.Context, req businessflow.PaymentInput, metadata *businessflow.ClientMetadata) (decimal.Decimal, error) {
	s.gotPayment = req
	return s.balance, s.err
}

func (s *stubBillingFlow) ApplyAdjustment(ctx context.Context, req businessflow.AdjustmentInput, metadata *businessflow.ClientMetadata) (decimal.Decimal, error) {
	return s.balance, s.err
}

func (s *stubBillingFlow) ReconcileAccount(ctx context.Context, accountID uint) (*businessflow.Reconciliation, error) {
	return s.recon, s.err
}

func (s *stubBillingFlow) GetStatement(ctx context.Context, brokerID uint) (*businessflow.Statement, error) {
	return s.statement, s.err
}

func (s *stubBillingFlow) ExportStatement(ctx context.Context, brokerID uint, metadata *businessflow.ClientMetadata) (*businessflow.StatementExport, error) {
	return s.export, s.err
}

// newTestApp mounts the handlers the way the router does, with a fixed admin actor.
func newTestApp(quotes businessflow.QuoteFlow, leads businessflow.LeadFlow, assignment businessflow.AssignmentFlow, billing businessflow.BillingFlow) *fiber.App {
	app := fiber.New(fiber.Config{JSONEncoder: json.Marshal, JSONDecoder: json.Unmarshal})
	app.Use(func(c fiber.Ctx) error {
		c.Locals(ActorLocalKey, "ops")
		return c.Next()
	})

	api := app.Group("/api/v1")
	if quotes != nil {
		h := NewQuoteHandler(quotes, testLogger)
		api.Post("/quotes", h.ComputeQuotes)
	}
	if leads != nil {
		h := NewLeadHandler(leads, assignment, testLogger)
		api.Post("/leads", h.CaptureLead)
		api.Get("/leads/:id", h.GetLead)
		api.Put("/leads/:id/vehicle", h.UpdateVehicle)
		api.Post("/leads/:id/quotes", h.RequestQuotes)
		api.Post("/leads/:id/selection", h.SelectQuote)
		api.Post("/leads/:id/assign", h.AssignBroker)
		api.Post("/leads/:id/commands", h.ApplyCommand)
	}
	if billing != nil {
		h := NewBillingHandler(billing, assignment, testLogger)
		brokers := api.Group("/admin/brokers")
		brokers.Post("/:id/account", h.CreateAccount)
		brokers.Post("/:id/payments", h.ApplyPayment)
		brokers.Post("/:id/adjustments", h.ApplyAdjustment)
		brokers.Get("/:id/statement.xlsx", h.ExportStatement)
		brokers.Get("/:id/statement", h.GetStatement)
		brokers.Delete("/:id/leads", h.ReleaseBrokerLeads)
		api.Get("/admin/accounts/:id/reconciliation", h.ReconcileAccount)
		api.Post("/admin/jobs/monthly-charges", h.RunMonthlyCharges)
		api.Post("/admin/jobs/overdue-check", h.RunOverdueCheck)
	}
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, target, body string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func decodeEnvelope(t *testing.T, raw []byte) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	return env
}

func sampleLead() *models.Lead {
	return &models.Lead{
		ID:        7,
		UUID:      uuid.New(),
		Phone:     "+5215512345678",
		Name:      "Ana",
		Status:    models.LeadStatusPendingData,
		CreatedAt: time.Date(2025, time.May, 14, 15, 0, 0, 0, time.UTC),
	}
}

func sampleQuotes() []models.Quote {
	return []models.Quote{
		{InsurerID: 2, InsurerName: "GNP", CoverageType: models.CoverageTypeThirdParty, MonthlyPremium: decimal.RequireFromString("60.666")},
		{InsurerID: 1, InsurerName: "Qualitas", CoverageType: models.CoverageTypeFullCoverage, MonthlyPremium: decimal.RequireFromString("282.33")},
	}
}

func TestBusinessErrorResponse(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"NotFound", businessflow.NewBusinessError("LEAD_NOT_FOUND", "Lead not found", businessflow.ErrLeadNotFound), fiber.StatusNotFound, "LEAD_NOT_FOUND"},
		{"Conflict", businessflow.NewBusinessError("LEAD_ALREADY_ASSIGNED", "Lead already assigned", businessflow.ErrLeadAlreadyAssigned), fiber.StatusConflict, "LEAD_ALREADY_ASSIGNED"},
		{"InvalidInput", businessflow.NewBusinessError("VEHICLE_INCOMPLETE", "Vehicle incomplete", businessflow.ErrVehicleIncomplete), fiber.StatusBadRequest, "VEHICLE_INCOMPLETE"},
		{"Unclassified", errors.New("connection reset"), fiber.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(nil, &stubLeadFlow{err: tc.err}, &stubAssignmentFlow{}, nil)

			resp, raw := doRequest(t, app, http.MethodPost, "/api/v1/leads/7/quotes", "")
			require.Equal(t, tc.status, resp.StatusCode)

			env := decodeEnvelope(t, raw)
			require.False(t, env.Success)
			require.Equal(t, tc.code, env.Error.Code)
		})
	}
}
