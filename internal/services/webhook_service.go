package services

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"ticket-inventory/internal/services/gateway"
	"ticket-inventory/internal/status"
	"ticket-inventory/models"
	"ticket-inventory/monitoring"
)

// WebhookService applies processor callbacks. It is the fast path; Reconcile
// covers deliveries that never arrive.
type WebhookService struct {
	decoder      gateway.WebhookDecoder
	reconcile    *ReconcileService
	reservations *ReservationService
	monitor      *monitoring.Monitor
	logger       *slog.Logger
}

func NewWebhookService(decoder gateway.WebhookDecoder, reconcile *ReconcileService, reservations *ReservationService, monitor *monitoring.Monitor, logger *slog.Logger) *WebhookService {
	return &WebhookService{
		decoder:      decoder,
		reconcile:    reconcile,
		reservations: reservations,
		monitor:      monitor,
		logger:       logger,
	}
}

// Handle verifies and applies one delivery. status.ErrEventIgnored is
// returned for event types the engine does not act on.
func (s *WebhookService) Handle(ctx context.Context, payload []byte, headers http.Header) (*models.PaymentNotification, error) {
	if err := s.decoder.Verify(payload, headers); err != nil {
		s.monitor.TrackWebhook("unknown", "invalid_signature")
		return nil, err
	}

	n, err := s.decoder.Parse(payload)
	if err != nil {
		outcome := "invalid_payload"
		if errors.Is(err, status.ErrEventIgnored) {
			outcome = "ignored"
		}
		s.monitor.TrackWebhook("unknown", outcome)
		return nil, err
	}

	err = s.apply(ctx, n)
	switch {
	case err == nil:
		s.monitor.TrackWebhook(n.Type, "applied")
	case errors.Is(err, status.ErrNotFound):
		// Sessions created outside this engine are not ours to track.
		s.monitor.TrackWebhook(n.Type, "unknown_session")
		s.logger.Info("webhook for unknown session", "event_id", n.EventID, "session_id", n.Session.ID)
		return n, nil
	default:
		s.monitor.TrackWebhook(n.Type, "error")
		s.logger.Error("webhook apply failed", "event_id", n.EventID, "type", n.Type, "session_id", n.Session.ID, "error", err)
	}
	return n, err
}

func (s *WebhookService) apply(ctx context.Context, n *models.PaymentNotification) error {
	switch n.Type {
	case gateway.EventCheckoutCompleted, gateway.EventCheckoutAsyncSucceeded:
		if !n.Session.Paid() {
			// Delayed payment methods follow up with async_payment_succeeded.
			return nil
		}
		_, err := s.reconcile.ConfirmSession(ctx, &n.Session)
		if status.IsLatePayment(err) {
			// Logged for refund by the reservation service; redelivery cannot help.
			return nil
		}
		return err

	case gateway.EventCheckoutExpired, gateway.EventCheckoutAsyncFailed:
		_, err := s.reservations.ExpireSession(ctx, n.Session.ID)
		if errors.Is(err, status.ErrInvalidTransition) {
			// Already settled another way.
			return nil
		}
		return err
	}
	return status.ErrEventIgnored
}
