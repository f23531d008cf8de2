package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"ticket-inventory/internal/status"
	"ticket-inventory/internal/store"
	"ticket-inventory/models"
	"ticket-inventory/monitoring"
)

type CheckInService struct {
	store    *store.Store
	notifier Notifier
	monitor  *monitoring.Monitor
	logger   *slog.Logger
}

func NewCheckInService(st *store.Store, notifier Notifier, monitor *monitoring.Monitor, logger *slog.Logger) *CheckInService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &CheckInService{store: st, notifier: notifier, monitor: monitor, logger: logger}
}

// CheckIn admits a ticket exactly once. Concurrent scans of the same ticket
// race on a single conditional update; every loser gets an
// *status.AlreadyUsedError carrying the winning admission.
func (s *CheckInService) CheckIn(ctx context.Context, ticketID string) (*models.Admission, error) {
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return nil, status.ErrNotFound
	}

	// A second pass covers a ticket that was activated between our update
	// and the re-read.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.store.MarkUsed(ctx, ticketID)
		if err != nil {
			s.monitor.TrackCheckIn("error")
			return nil, fmt.Errorf("checkin %s: %w", ticketID, err)
		}
		if ok {
			return s.admitted(ctx, ticketID)
		}

		ticket, err := s.store.FindTicket(ctx, ticketID)
		if err != nil {
			s.monitor.TrackCheckIn("not_found")
			return nil, err
		}

		switch ticket.Status {
		case models.StatusActive:
			continue
		case models.StatusUsed:
			s.monitor.TrackCheckIn("already_used")
			admission, err := s.store.Admission(ctx, ticketID)
			if err != nil {
				return nil, err
			}
			s.logger.Info("checkin rejected, already used", "ticket_id", ticketID, "admitted_at", admission.AdmittedAt)
			return nil, &status.AlreadyUsedError{Admission: admission}
		default:
			s.monitor.TrackCheckIn("not_active")
			return nil, &status.NotActiveError{TicketID: ticketID, Status: ticket.Status}
		}
	}

	s.monitor.TrackCheckIn("error")
	return nil, fmt.Errorf("checkin %s: ticket changed during scan", ticketID)
}

func (s *CheckInService) admitted(ctx context.Context, ticketID string) (*models.Admission, error) {
	s.monitor.TrackCheckIn("admitted")
	s.monitor.TrackTransition(models.StatusActive, models.StatusUsed)

	admission, err := s.store.Admission(ctx, ticketID)
	if err != nil {
		// The ticket is already used; only the enrichment failed.
		return nil, fmt.Errorf("checkin %s admitted, details unavailable: %w", ticketID, err)
	}

	s.logger.Info("checkin", "ticket_id", ticketID, "event_id", admission.EventID, "holder", admission.HolderEmail)
	s.notifier.TicketCheckedIn(ctx, admission)
	return admission, nil
}
