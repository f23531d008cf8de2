package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"

	"ticket-inventory/internal/status"
)

// respondError maps engine errors onto HTTP responses. Rejections that door
// staff need to act on are written with a body; the rest become api errors.
func respondError(e *core.RequestEvent, logger *slog.Logger, op string, err error) error {
	var used *status.AlreadyUsedError
	var notActive *status.NotActiveError

	switch {
	case errors.As(err, &used):
		return e.JSON(http.StatusConflict, map[string]any{
			"error":     "already_used",
			"message":   "Ticket already used",
			"admission": used.Admission,
		})
	case errors.As(err, &notActive):
		return e.JSON(http.StatusUnprocessableEntity, map[string]any{
			"error":   "not_active",
			"message": "Ticket is not active",
			"status":  notActive.Status,
		})
	case errors.Is(err, status.ErrSoldOut):
		return router.NewApiError(http.StatusConflict, "Sold out", nil)
	case errors.Is(err, status.ErrProductNotFound):
		return apis.NewNotFoundError("Product not found", nil)
	case errors.Is(err, status.ErrNotFound):
		return apis.NewNotFoundError("Ticket not found", nil)
	case errors.Is(err, status.ErrExpiredBeforePayment):
		return router.NewApiError(http.StatusConflict, "Reservation expired", nil)
	case errors.Is(err, status.ErrInvalidTransition):
		return router.NewApiError(http.StatusConflict, "Invalid status transition", nil)
	}

	logger.Error(op+" failed", "error", err)
	return apis.NewInternalServerError("Something went wrong", nil)
}
