package handlers

import (
	"log/slog"

	"github.com/cotizabot/cotizabot/app/dto"
	businessflow "github.com/cotizabot/cotizabot/business_flow"
	"github.com/gofiber/fiber/v3"
)

// QuoteHandlerInterface defines the contract for quote handlers
type QuoteHandlerInterface interface {
	ComputeQuotes(c fiber.Ctx) error
}

// QuoteHandler handles quote requests that are not tied to a lead
type QuoteHandler struct {
	baseHandler
	quoteFlow businessflow.QuoteFlow
}

// NewQuoteHandler creates a new quote handler
func NewQuoteHandler(quoteFlow businessflow.QuoteFlow, logger *slog.Logger) *QuoteHandler {
	return &QuoteHandler{
		baseHandler: newBaseHandler(logger),
		quoteFlow:   quoteFlow,
	}
}

// ComputeQuotes handles an ad hoc quote for a vehicle
// @Summary Compute Quotes
// @Description Rank the indicative monthly premiums of every active insurer for a vehicle
// @Tags Quotes
// @Accept json
// @Produce json
// @Param request body dto.VehicleRequest true "Vehicle to quote"
// @Success 200 {object} dto.APIResponse{data=dto.ComputeQuotesResponse} "Quotes computed"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid vehicle"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/quotes [post]
func (h *QuoteHandler) ComputeQuotes(c fiber.Ctx) error {
	var req dto.VehicleRequest
	if ok, err := h.bindAndValidate(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/quotes")
	defer cancel()

	quotes, err := h.quoteFlow.ComputeQuotes(ctx, toVehicle(req))
	if err != nil {
		return h.businessErrorResponse(c, err, "Quote computation")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Quotes computed successfully", dto.ComputeQuotesResponse{
		Quotes:   toQuoteResponses(quotes),
		Count:    len(quotes),
		Declined: len(quotes) == 0,
	})
}
