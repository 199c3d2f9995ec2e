package handlers

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cotizabot/cotizabot/app/dto"
	businessflow "github.com/cotizabot/cotizabot/business_flow"
	"github.com/gofiber/fiber/v3"
)

// Billing jobs walk every account, so they get more time than a single request.
const jobRequestTimeout = 5 * time.Minute

// BillingHandlerInterface defines the contract for broker billing handlers
type BillingHandlerInterface interface {
	CreateAccount(c fiber.Ctx) error
	ApplyPayment(c fiber.Ctx) error
	ApplyAdjustment(c fiber.Ctx) error
	GetStatement(c fiber.Ctx) error
	ExportStatement(c fiber.Ctx) error
	ReconcileAccount(c fiber.Ctx) error
	ReleaseBrokerLeads(c fiber.Ctx) error
	RunMonthlyCharges(c fiber.Ctx) error
	RunOverdueCheck(c fiber.Ctx) error
}

// BillingHandler handles admin requests on broker accounts and billing jobs
type BillingHandler struct {
	baseHandler
	billingFlow    businessflow.BillingFlow
	assignmentFlow businessflow.AssignmentFlow
}

// NewBillingHandler creates a new billing handler
func NewBillingHandler(billingFlow businessflow.BillingFlow, assignmentFlow businessflow.AssignmentFlow, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		baseHandler:    newBaseHandler(logger),
		billingFlow:    billingFlow,
		assignmentFlow: assignmentFlow,
	}
}

// CreateAccount handles opening a broker account on a plan
// @Summary Create Broker Account
// @Description Open the broker ledger, post the first plan charge and activate the subscription
// @Tags Billing
// @Accept json
// @Produce json
// @Param id path int true "Broker ID"
// @Param request body dto.CreateAccountRequest true "Plan"
// @Success 201 {object} dto.APIResponse{data=dto.BrokerAccountResponse} "Account created"
// @Failure 404 {object} dto.APIResponse "Broker or plan not found"
// @Failure 409 {object} dto.APIResponse "Account already exists"
// @Router /api/v1/admin/brokers/{id}/account [post]
func (h *BillingHandler) CreateAccount(c fiber.Ctx) error {
	brokerID, ok, err := h.idParam(c, "id")
	if !ok {
		return err
	}

	var req dto.CreateAccountRequest
	if ok, err := h.bindAndValidate(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/brokers/:id/account")
	defer cancel()

	account, err := h.billingFlow.CreateAccount(ctx, brokerID, req.PlanID, h.metadata(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "Account creation")
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Account created successfully", toAccountResponse(account))
}

// ApplyPayment handles money received from a broker
// @Summary Apply Payment
// @Tags Billing
// @Accept json
// @Produce json
// @Param id path int true "Broker ID"
// @Param request body dto.ApplyPaymentRequest true "Payment"
// @Success 200 {object} dto.APIResponse{data=dto.BalanceResponse} "Payment applied"
// @Failure 400 {object} dto.APIResponse "Amount must be positive"
// @Failure 404 {object} dto.APIResponse "Account not found"
// @Router /api/v1/admin/brokers/{id}/payments [post]
func (h *BillingHandler) ApplyPayment(c fiber.Ctx) error {
	brokerID, ok, err := h.idParam(c, "id")
	if !ok {
		return err
	}

	var req dto.ApplyPaymentRequest
	if ok, err := h.bindAndValidate(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/brokers/:id/payments")
	defer cancel()

	balance, err := h.billingFlow.ApplyPayment(ctx, businessflow.PaymentInput{
		BrokerID:        brokerID,
		Amount:          req.Amount,
		ReferenceNumber: req.ReferenceNumber,
		Description:     req.Description,
	}, h.metadata(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "Payment")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Payment applied successfully", dto.BalanceResponse{
		BrokerID:       brokerID,
		CurrentBalance: formatMoney(balance),
	})
}

// ApplyAdjustment handles a signed manual correction
// @Summary Apply Adjustment
// @Tags Billing
// @Accept json
// @Produce json
// @Param id path int true "Broker ID"
// @Param request body dto.ApplyAdjustmentRequest true "Adjustment"
// @Success 200 {object} dto.APIResponse{data=dto.BalanceResponse} "Adjustment applied"
// @Failure 400 {object} dto.APIResponse "Amount must not be zero"
// @Router /api/v1/admin/brokers/{id}/adjustments [post]
func (h *BillingHandler) ApplyAdjustment(c fiber.Ctx) error {
	brokerID, ok, err := h.idParam(c, "id")
	if !ok {
		return err
	}

	var req dto.ApplyAdjustmentRequest
	if ok, err := h.bindAndValidate(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/brokers/:id/adjustments")
	defer cancel()

	balance, err := h.billingFlow.ApplyAdjustment(ctx, businessflow.AdjustmentInput{
		BrokerID:    brokerID,
		Amount:      req.Amount,
		Description: req.Description,
	}, h.metadata(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "Adjustment")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Adjustment applied successfully", dto.BalanceResponse{
		BrokerID:       brokerID,
		CurrentBalance: formatMoney(balance),
	})
}

// GetStatement handles statement retrieval. format=xlsx returns the workbook instead of JSON.
// @Summary Get Statement
// @Tags Billing
// @Produce json
// @Param id path int true "Broker ID"
// @Param format query string false "json or xlsx"
// @Success 200 {object} dto.APIResponse{data=dto.StatementResponse} "Statement retrieved"
// @Failure 404 {object} dto.APIResponse "Account not found"
// @Router /api/v1/admin/brokers/{id}/statement [get]
func (h *BillingHandler) GetStatement(c fiber.Ctx) error {
	if strings.EqualFold(c.Query("format"), "xlsx") {
		return h.ExportStatement(c)
	}

	brokerID, ok, err := h.idParam(c, "id")
	if !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/brokers/:id/statement")
	defer cancel()

	statement, err := h.billingFlow.GetStatement(ctx, brokerID)
	if err != nil {
		return h.businessErrorResponse(c, err, "Statement retrieval")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Statement retrieved successfully", toStatementResponse(statement))
}

// ExportStatement handles statement download as an Excel workbook
// @Summary Export Statement
// @Tags Billing
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path int true "Broker ID"
// @Success 200 {file} file "Statement workbook"
// @Failure 404 {object} dto.APIResponse "Account not found"
// @Router /api/v1/admin/brokers/{id}/statement.xlsx [get]
func (h *BillingHandler) ExportStatement(c fiber.Ctx) error {
	brokerID, ok, err := h.idParam(c, "id")
	if !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/brokers/:id/statement.xlsx")
	defer cancel()

	export, err := h.billingFlow.ExportStatement(ctx, brokerID, h.metadata(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "Statement export")
	}

	c.Set(fiber.HeaderContentType, export.ContentType)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+export.FileName+`"`)
	if export.Location != "" {
		c.Set("X-Statement-Location", export.Location)
	}
	return c.Status(fiber.StatusOK).Send(export.Content)
}

// ReconcileAccount handles a ledger replay check
// @Summary Reconcile Account
// @Tags Billing
// @Produce json
// @Param id path int true "Account ID"
// @Success 200 {object} dto.APIResponse{data=dto.ReconciliationResponse} "Reconciliation computed"
// @Failure 404 {object} dto.APIResponse "Account not found"
// @Router /api/v1/admin/accounts/{id}/reconciliation [get]
func (h *BillingHandler) ReconcileAccount(c fiber.Ctx) error {
	accountID, ok, err := h.idParam(c, "id")
	if !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/accounts/:id/reconciliation")
	defer cancel()

	result, err := h.billingFlow.ReconcileAccount(ctx, accountID)
	if err != nil {
		return h.businessErrorResponse(c, err, "Reconciliation")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Reconciliation computed successfully", toReconciliationResponse(result))
}

// ReleaseBrokerLeads handles returning a broker's leads to the unassigned pool
// @Summary Release Broker Leads
// @Tags Billing
// @Produce json
// @Param id path int true "Broker ID"
// @Success 200 {object} dto.APIResponse{data=dto.ReleaseLeadsResponse} "Leads released"
// @Router /api/v1/admin/brokers/{id}/leads [delete]
func (h *BillingHandler) ReleaseBrokerLeads(c fiber.Ctx) error {
	brokerID, ok, err := h.idParam(c, "id")
	if !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/brokers/:id/leads")
	defer cancel()

	released, err := h.assignmentFlow.ReleaseBrokerLeads(ctx, brokerID, h.metadata(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "Lead release")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Leads released successfully", dto.ReleaseLeadsResponse{
		BrokerID: brokerID,
		Released: released,
	})
}

// RunMonthlyCharges handles a manual monthly charge run
// @Summary Run Monthly Charges
// @Description Charge every active account once for the current month. Outside the 1st the run is skipped unless force_manual is set.
// @Tags Jobs
// @Accept json
// @Produce json
// @Param request body dto.RunMonthlyChargesRequest false "Run options"
// @Param force_manual query bool false "Run even when today is not the 1st"
// @Success 200 {object} dto.APIResponse{data=businessflow.MonthlyChargeResult} "Run completed"
// @Router /api/v1/admin/jobs/monthly-charges [post]
func (h *BillingHandler) RunMonthlyCharges(c fiber.Ctx) error {
	var req dto.RunMonthlyChargesRequest
	if len(c.Body()) > 0 {
		if ok, err := h.bindAndValidate(c, &req); !ok {
			return err
		}
	}
	if q := c.Query("force_manual"); q != "" {
		force, err := strconv.ParseBool(q)
		if err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid force_manual", "INVALID_REQUEST", q)
		}
		req.ForceManual = req.ForceManual || force
	}

	ctx, cancel := h.createRequestContextWithTimeout(c, "/api/v1/admin/jobs/monthly-charges", jobRequestTimeout)
	defer cancel()

	result, err := h.billingFlow.GenerateMonthlyCharges(ctx, req.ForceManual, h.metadata(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "Monthly charge run")
	}

	message := "Monthly charges generated successfully"
	if result.Skipped {
		message = "Monthly charges skipped: today is not the first of the month"
	}
	return h.SuccessResponse(c, fiber.StatusOK, message, result)
}

// RunOverdueCheck handles a manual overdue check run
// @Summary Run Overdue Check
// @Tags Jobs
// @Produce json
// @Success 200 {object} dto.APIResponse{data=businessflow.OverdueCheckResult} "Run completed"
// @Router /api/v1/admin/jobs/overdue-check [post]
func (h *BillingHandler) RunOverdueCheck(c fiber.Ctx) error {
	ctx, cancel := h.createRequestContextWithTimeout(c, "/api/v1/admin/jobs/overdue-check", jobRequestTimeout)
	defer cancel()

	result, err := h.billingFlow.CheckOverdueAccounts(ctx, h.metadata(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "Overdue check")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Overdue check completed successfully", result)
}
