package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ticket-inventory/internal/status"
	"ticket-inventory/internal/store"
	"ticket-inventory/models"
	"ticket-inventory/monitoring"
)

// ReservationService drives a ticket through its lifecycle after it has been
// reserved. Every write goes through a guarded store update.
type ReservationService struct {
	store    *store.Store
	notifier Notifier
	monitor  *monitoring.Monitor
	logger   *slog.Logger
}

func NewReservationService(st *store.Store, notifier Notifier, monitor *monitoring.Monitor, logger *slog.Logger) *ReservationService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &ReservationService{store: st, notifier: notifier, monitor: monitor, logger: logger}
}

// Activate confirms payment for a ticket. Calling it again for an active
// ticket is a successful no-op. A payment that can no longer be honoured
// returns the ticket with an error satisfying status.IsLatePayment.
func (s *ReservationService) Activate(ctx context.Context, ticketID, amountPaid string) (*models.Ticket, error) {
	ticket, activated, err := s.store.Activate(ctx, ticketID, amountPaid)
	if errors.Is(err, status.ErrSoldOut) {
		s.monitor.TrackTransition(models.StatusPending, models.StatusExpired)
		s.logger.Warn("paid ticket arrived after capacity was reused; needs refund",
			"ticket_id", ticketID, "amount_paid", amountPaid)
		return ticket, err
	}

	var te *status.TransitionError
	if errors.As(err, &te) && te.From == models.StatusExpired {
		// The sweep got there first. Expired is terminal, so the payment stays unapplied.
		expired, findErr := s.store.FindTicket(ctx, ticketID)
		if findErr != nil {
			return nil, findErr
		}
		s.monitor.TrackTransition(models.StatusPending, models.StatusExpired)
		s.logger.Warn("paid ticket had already expired; needs refund",
			"ticket_id", ticketID, "amount_paid", amountPaid)
		return expired, fmt.Errorf("activate %s: %w", ticketID, status.ErrExpiredBeforePayment)
	}
	if err != nil {
		return nil, fmt.Errorf("activate %s: %w", ticketID, err)
	}

	if activated {
		s.monitor.TrackTransition(models.StatusPending, models.StatusActive)
		s.logger.Info("ticket activated", "ticket_id", ticket.ID, "product_id", ticket.ProductID)
		s.notifier.TicketActivated(ctx, ticket)
	}
	return ticket, nil
}

// Expire marks a pending ticket expired, for example when the processor
// reports the checkout session expired.
func (s *ReservationService) Expire(ctx context.Context, ticketID string) (*models.Ticket, error) {
	return s.transition(ctx, ticketID, models.StatusExpired, "")
}

func (s *ReservationService) ExpireSession(ctx context.Context, sessionID string) (*models.Ticket, error) {
	ticket, err := s.store.FindTicketBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.Expire(ctx, ticket.ID)
}

// Refund records reason and moves an active or used ticket to refunded.
func (s *ReservationService) Refund(ctx context.Context, ticketID, reason string) (*models.Ticket, error) {
	return s.transition(ctx, ticketID, models.StatusRefunded, reason)
}

func (s *ReservationService) transition(ctx context.Context, ticketID string, to models.TicketStatus, reason string) (*models.Ticket, error) {
	before, err := s.store.FindTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(before.Status, to) {
		return before, &status.TransitionError{TicketID: ticketID, From: before.Status, To: to}
	}

	ticket, err := s.store.Transition(ctx, ticketID, to, reason)
	if err != nil {
		return ticket, err
	}

	s.monitor.TrackTransition(before.Status, to)
	s.logger.Info("ticket transition", "ticket_id", ticketID, "from", before.Status, "to", to, "reason", reason)
	return ticket, nil
}

// ExpireStale is housekeeping. Capacity is already correct without it.
func (s *ReservationService) ExpireStale(ctx context.Context) (int64, error) {
	n, err := s.store.ExpireStale(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired stale reservations", "count", n)
	}
	return n, nil
}

// AttachSession links a checkout session to a ticket reserved before the
// session was created.
func (s *ReservationService) AttachSession(ctx context.Context, ticketID, sessionID string) (*models.Ticket, error) {
	return s.store.AttachSession(ctx, ticketID, sessionID)
}
