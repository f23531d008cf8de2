package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-inventory/models"
)

type Reservations interface {
	Refund(ctx context.Context, ticketID, reason string) (*models.Ticket, error)
	ExpireStale(ctx context.Context) (int64, error)
}

type AdminHandler struct {
	reservations Reservations
	logger       *slog.Logger
}

func NewAdminHandler(reservations Reservations, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{reservations: reservations, logger: logger}
}

// Refund - Move an active or used ticket to refunded
func (h *AdminHandler) Refund(e *core.RequestEvent) error {
	ticketID := e.Request.PathValue("ticketId")

	var req struct {
		Reason string `json:"reason"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	ticket, err := h.reservations.Refund(e.Request.Context(), ticketID, req.Reason)
	if err != nil {
		return respondError(e, h.logger, "refund", err)
	}
	return e.JSON(http.StatusOK, ticket)
}

// Sweep - Expire abandoned reservations now instead of waiting for cron
func (h *AdminHandler) Sweep(e *core.RequestEvent) error {
	n, err := h.reservations.ExpireStale(e.Request.Context())
	if err != nil {
		return respondError(e, h.logger, "sweep", err)
	}
	return e.JSON(http.StatusOK, map[string]any{"expired": n})
}
