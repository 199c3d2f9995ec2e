package handlers

import (
	"log/slog"

	"github.com/cotizabot/cotizabot/app/dto"
	businessflow "github.com/cotizabot/cotizabot/business_flow"
	"github.com/cotizabot/cotizabot/models"
	"github.com/gofiber/fiber/v3"
)

// LeadHandlerInterface defines the contract for lead handlers
type LeadHandlerInterface interface {
	CaptureLead(c fiber.Ctx) error
	GetLead(c fiber.Ctx) error
	UpdateVehicle(c fiber.Ctx) error
	RequestQuotes(c fiber.Ctx) error
	SelectQuote(c fiber.Ctx) error
	AssignBroker(c fiber.Ctx) error
	ApplyCommand(c fiber.Ctx) error
}

// LeadHandler handles lead intake requests coming from the conversation layer
type LeadHandler struct {
	baseHandler
	leadFlow       businessflow.LeadFlow
	assignmentFlow businessflow.AssignmentFlow
}

// NewLeadHandler creates a new lead handler
func NewLeadHandler(leadFlow businessflow.LeadFlow, assignmentFlow businessflow.AssignmentFlow, logger *slog.Logger) *LeadHandler {
	return &LeadHandler{
		baseHandler:    newBaseHandler(logger),
		leadFlow:       leadFlow,
		assignmentFlow: assignmentFlow,
	}
}

// CaptureLead handles the first contact of a prospective customer
// @Summary Capture Lead
// @Description Create a lead for a phone number, or return the existing one
// @Tags Leads
// @Accept json
// @Produce json
// @Param request body dto.CaptureLeadRequest true "Lead contact data"
// @Success 200 {object} dto.APIResponse{data=dto.LeadResponse} "Lead captured"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/leads [post]
func (h *LeadHandler) CaptureLead(c fiber.Ctx) error {
	var req dto.CaptureLeadRequest
	if ok, err := h.bindAndValidate(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/leads")
	defer cancel()

	lead, err := h.leadFlow.CaptureLead(ctx, req.Phone, req.Name, h.metadata(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "Lead capture")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Lead captured successfully", toLeadResponse(lead))
}

// GetLead handles lead retrieval
// @Summary Get Lead
// @Tags Leads
// @Produce json
// @Param id path int true "Lead ID"
// @Success 200 {object} dto.APIResponse{data=dto.LeadResponse} "Lead retrieved"
// @Failure 404 {object} dto.APIResponse "Lead not found"
// @Router /api/v1/leads/{id} [get]
func (h *LeadHandler) GetLead(c fiber.Ctx) error {
	leadID, ok, err := h.idParam(c, "id")
	if !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/leads/:id")
	defer cancel()

	lead, err := h.leadFlow.GetLead(ctx, leadID)
	if err != nil {
		return h.businessErrorResponse(c, err, "Lead retrieval")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Lead retrieved successfully", toLeadResponse(lead))
}

// UpdateVehicle handles vehicle data for a lead
// @Summary Update Lead Vehicle
// @Description Store the vehicle to quote. Quotes and selection of an unassigned lead are reset.
// @Tags Leads
// @Accept json
// @Produce json
// @Param id path int true "Lead ID"
// @Param request body dto.VehicleRequest true "Vehicle data"
// @Success 200 {object} dto.APIResponse{data=dto.LeadResponse} "Vehicle stored"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid vehicle"
// @Failure 404 {object} dto.APIResponse "Lead not found"
// @Router /api/v1/leads/{id}/vehicle [put]
func (h *LeadHandler) UpdateVehicle(c fiber.Ctx) error {
	leadID, ok, err := h.idParam(c, "id")
	if !ok {
		return err
	}

	var req dto.VehicleRequest
	if ok, err := h.bindAndValidate(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/leads/:id/vehicle")
	defer cancel()

	lead, err := h.leadFlow.UpdateVehicle(ctx, leadID, toVehicle(req), h.metadata(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "Vehicle update")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Vehicle updated successfully", toLeadResponse(lead))
}

// RequestQuotes handles quoting the vehicle stored on a lead
// @Summary Request Lead Quotes
// @Tags Leads
// @Produce json
// @Param id path int true "Lead ID"
// @Success 200 {object} dto.APIResponse{data=dto.LeadQuotesResponse} "Quotes computed"
// @Failure 400 {object} dto.APIResponse "Vehicle data incomplete"
// @Failure 404 {object} dto.APIResponse "Lead not found"
// @Router /api/v1/leads/{id}/quotes [post]
func (h *LeadHandler) RequestQuotes(c fiber.Ctx) error {
	leadID, ok, err := h.idParam(c, "id")
	if !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/leads/:id/quotes")
	defer cancel()

	result, err := h.leadFlow.RequestQuotes(ctx, leadID, h.metadata(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "Quote request")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Quotes computed successfully", dto.LeadQuotesResponse{
		Lead:   toLeadResponse(result.Lead),
		Quotes: toQuoteResponses(result.Quotes),
	})
}

// SelectQuote handles the customer's choice of quote
// @Summary Select Quote
// @Description Record the chosen quote and assign the lead to an eligible broker
// @Tags Leads
// @Accept json
// @Produce json
// @Param id path int true "Lead ID"
// @Param request body dto.SelectQuoteRequest true "Selected quote"
// @Success 200 {object} dto.APIResponse{data=dto.LeadSelectionResponse} "Selection recorded"
// @Failure 400 {object} dto.APIResponse "Selection was not quoted"
// @Failure 404 {object} dto.APIResponse "Lead or quotes not found"
// @Router /api/v1/leads/{id}/selection [post]
func (h *LeadHandler) SelectQuote(c fiber.Ctx) error {
	leadID, ok, err := h.idParam(c, "id")
	if !ok {
		return err
	}

	var req dto.SelectQuoteRequest
	if ok, err := h.bindAndValidate(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/leads/:id/selection")
	defer cancel()

	result, err := h.leadFlow.SelectQuote(ctx, leadID, req.InsurerID, models.CoverageType(req.CoverageType), h.metadata(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "Quote selection")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Quote selected successfully", dto.LeadSelectionResponse{
		Lead:     toLeadResponse(result.Lead),
		Quote:    toQuoteResponse(result.Quote),
		BrokerID: result.BrokerID,
		Assigned: result.BrokerID != nil,
	})
}

// AssignBroker handles an explicit broker assignment attempt
// @Summary Assign Broker
// @Description Assign the lead to the least loaded eligible broker. A null broker means nobody was eligible.
// @Tags Leads
// @Produce json
// @Param id path int true "Lead ID"
// @Success 200 {object} dto.APIResponse{data=dto.AssignLeadResponse} "Assignment attempted"
// @Router /api/v1/leads/{id}/assign [post]
func (h *LeadHandler) AssignBroker(c fiber.Ctx) error {
	leadID, ok, err := h.idParam(c, "id")
	if !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/leads/:id/assign")
	defer cancel()

	brokerID, err := h.assignmentFlow.AssignBroker(ctx, leadID, h.metadata(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "Broker assignment")
	}

	message := "Lead assigned successfully"
	if brokerID == nil {
		message = "No broker assigned"
	}

	return h.SuccessResponse(c, fiber.StatusOK, message, dto.AssignLeadResponse{
		LeadID:   leadID,
		BrokerID: brokerID,
		Assigned: brokerID != nil,
	})
}

// ApplyCommand handles a structured intent produced by the conversation layer
// @Summary Apply Lead Command
// @Tags Leads
// @Accept json
// @Produce json
// @Param id path int true "Lead ID"
// @Param request body dto.LeadCommandRequest true "Command"
// @Success 200 {object} dto.APIResponse{data=dto.LeadCommandResponse} "Command applied"
// @Failure 400 {object} dto.APIResponse "Invalid command"
// @Router /api/v1/leads/{id}/commands [post]
func (h *LeadHandler) ApplyCommand(c fiber.Ctx) error {
	leadID, ok, err := h.idParam(c, "id")
	if !ok {
		return err
	}

	var req dto.LeadCommandRequest
	if ok, err := h.bindAndValidate(c, &req); !ok {
		return err
	}

	cmd := businessflow.Command{
		Type:         businessflow.CommandType(req.Type),
		InsurerID:    req.InsurerID,
		CoverageType: models.CoverageType(req.CoverageType),
	}
	if req.Vehicle != nil {
		v := toVehicle(*req.Vehicle)
		cmd.Vehicle = &v
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/leads/:id/commands")
	defer cancel()

	result, err := h.leadFlow.ApplyCommand(ctx, leadID, cmd, h.metadata(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "Lead command")
	}

	resp := dto.LeadCommandResponse{
		Lead:     toLeadResponse(result.Lead),
		BrokerID: result.BrokerID,
	}
	if result.Quotes != nil {
		resp.Quotes = toQuoteResponses(result.Quotes)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Command applied successfully", resp)
}
