package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-inventory/models"
)

type CheckInService interface {
	CheckIn(ctx context.Context, ticketID string) (*models.Admission, error)
}

type CheckInHandler struct {
	checkin CheckInService
	logger  *slog.Logger
}

func NewCheckInHandler(checkin CheckInService, logger *slog.Logger) *CheckInHandler {
	return &CheckInHandler{checkin: checkin, logger: logger}
}

// CheckIn - Door scan. Routed behind the scanner key middleware.
func (h *CheckInHandler) CheckIn(e *core.RequestEvent) error {
	var req struct {
		TicketID string `json:"ticket_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	admission, err := h.checkin.CheckIn(e.Request.Context(), req.TicketID)
	if err != nil {
		return respondError(e, h.logger, "checkin", err)
	}
	return e.JSON(http.StatusOK, admission)
}
