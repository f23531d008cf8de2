package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-inventory/models"
)

type Ledger interface {
	Reserve(ctx context.Context, productID, sessionID string) (*models.Ticket, error)
	Availability(ctx context.Context, productID string) (*models.Availability, error)
}

type TicketHandler struct {
	ledger Ledger
	logger *slog.Logger
}

func NewTicketHandler(ledger Ledger, logger *slog.Logger) *TicketHandler {
	return &TicketHandler{ledger: ledger, logger: logger}
}

// GetAvailability - Sold-out pre-check for a product page
func (h *TicketHandler) GetAvailability(e *core.RequestEvent) error {
	productID := e.Request.PathValue("productId")

	avail, err := h.ledger.Availability(e.Request.Context(), productID)
	if err != nil {
		return respondError(e, h.logger, "availability", err)
	}
	return e.JSON(http.StatusOK, avail)
}

// Reserve - Hold one unit of a product while the buyer pays
func (h *TicketHandler) Reserve(e *core.RequestEvent) error {
	var req struct {
		ProductID string `json:"product_id"`
		SessionID string `json:"session_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if strings.TrimSpace(req.ProductID) == "" {
		return apis.NewBadRequestError("product_id is required", nil)
	}

	ticket, err := h.ledger.Reserve(e.Request.Context(), req.ProductID, req.SessionID)
	if err != nil {
		return respondError(e, h.logger, "reserve", err)
	}
	return e.JSON(http.StatusCreated, ticket)
}
