package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ticket-inventory/internal/status"
	"ticket-inventory/internal/store"
	"ticket-inventory/models"
	"ticket-inventory/monitoring"
)

// LedgerService is the only way tickets are created. The capacity decision
// itself is made by store.Reserve.
type LedgerService struct {
	store   *store.Store
	monitor *monitoring.Monitor
	logger  *slog.Logger
}

func NewLedgerService(st *store.Store, monitor *monitoring.Monitor, logger *slog.Logger) *LedgerService {
	return &LedgerService{store: st, monitor: monitor, logger: logger}
}

// Reserve creates one pending ticket for productID, or returns
// status.ErrSoldOut without writing anything.
func (s *LedgerService) Reserve(ctx context.Context, productID, sessionID string) (*models.Ticket, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, status.ErrProductNotFound
	}

	start := time.Now()
	ticket, err := s.store.Reserve(ctx, productID, strings.TrimSpace(sessionID))
	took := time.Since(start)

	switch {
	case err == nil:
		s.monitor.TrackReservation("reserved", took)
		s.logger.Info("reserve", "product_id", productID, "ticket_id", ticket.ID, "session_id", sessionID)
		return ticket, nil
	case errors.Is(err, status.ErrSoldOut):
		s.monitor.TrackReservation("sold_out", took)
		s.logger.Info("reserve sold out", "product_id", productID)
		return nil, err
	case errors.Is(err, status.ErrProductNotFound):
		s.monitor.TrackReservation("unknown_product", took)
		return nil, err
	case errors.Is(err, status.ErrInvalidTransition):
		s.monitor.TrackReservation("session_conflict", took)
		return nil, err
	default:
		s.monitor.TrackReservation("error", took)
		return nil, fmt.Errorf("reserve %s: %w", productID, err)
	}
}

func (s *LedgerService) Availability(ctx context.Context, productID string) (*models.Availability, error) {
	return s.store.Availability(ctx, strings.TrimSpace(productID))
}
