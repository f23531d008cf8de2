package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-inventory/internal/status"
	"ticket-inventory/models"
)

// maxWebhookBody bounds a single processor delivery.
const maxWebhookBody = 64 << 10

type Reconciler interface {
	Reconcile(ctx context.Context, sessionID string) (*models.ReconcileResult, error)
}

type WebhookProcessor interface {
	Handle(ctx context.Context, payload []byte, headers http.Header) (*models.PaymentNotification, error)
}

type PaymentHandler struct {
	reconciler Reconciler
	webhooks   WebhookProcessor
	logger     *slog.Logger
}

func NewPaymentHandler(reconciler Reconciler, webhooks WebhookProcessor, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{reconciler: reconciler, webhooks: webhooks, logger: logger}
}

// Reconcile - Called by the success page and retries; safe to repeat
func (h *PaymentHandler) Reconcile(e *core.RequestEvent) error {
	sessionID := e.Request.PathValue("sessionId")

	res, err := h.reconciler.Reconcile(e.Request.Context(), sessionID)
	if err != nil {
		return respondError(e, h.logger, "reconcile", err)
	}
	return e.JSON(http.StatusOK, res)
}

// StripeWebhook - Processor callback. Only a 2xx stops redelivery, so
// internal failures answer 500.
func (h *PaymentHandler) StripeWebhook(e *core.RequestEvent) error {
	payload, err := io.ReadAll(http.MaxBytesReader(e.Response, e.Request.Body, maxWebhookBody))
	if err != nil {
		return apis.NewBadRequestError("Invalid body", err)
	}

	n, err := h.webhooks.Handle(e.Request.Context(), payload, e.Request.Header)
	switch {
	case err == nil:
		return e.JSON(http.StatusOK, map[string]any{"received": true, "event_id": n.EventID})
	case errors.Is(err, status.ErrEventIgnored):
		return e.JSON(http.StatusOK, map[string]any{"received": true, "ignored": true})
	case errors.Is(err, status.ErrInvalidSignature):
		h.logger.Warn("webhook signature rejected", "ip", e.Request.RemoteAddr)
		return apis.NewBadRequestError("Invalid signature", nil)
	case errors.Is(err, status.ErrInvalidPayload):
		return apis.NewBadRequestError("Invalid payload", nil)
	}
	return respondError(e, h.logger, "webhook", err)
}
