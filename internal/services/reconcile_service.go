package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"ticket-inventory/internal/services/gateway"
	"ticket-inventory/internal/status"
	"ticket-inventory/internal/store"
	"ticket-inventory/models"
	"ticket-inventory/monitoring"
	"ticket-inventory/utils"
)

// ReconcileService repairs tickets whose payment webhook was late or lost.
// It is safe to call any number of times, from any number of callers.
type ReconcileService struct {
	store        *store.Store
	lookup       gateway.SessionLookup
	profiles     *ProfileService
	reservations *ReservationService
	redis        redis.Cmdable
	lockTTL      time.Duration
	monitor      *monitoring.Monitor
	logger       *slog.Logger
}

type ReconcileDeps struct {
	Store        *store.Store
	Lookup       gateway.SessionLookup
	Profiles     *ProfileService
	Reservations *ReservationService
	Redis        redis.Cmdable // optional
	LockTTL      time.Duration
	Monitor      *monitoring.Monitor
	Logger       *slog.Logger
}

func NewReconcileService(d ReconcileDeps) *ReconcileService {
	ttl := d.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &ReconcileService{
		store:        d.Store,
		lookup:       d.Lookup,
		profiles:     d.Profiles,
		reservations: d.Reservations,
		redis:        d.Redis,
		lockTTL:      ttl,
		monitor:      d.Monitor,
		logger:       d.Logger,
	}
}

// Reconcile brings the ticket for sessionID up to date with the processor.
// A failed processor lookup is not an error: the ticket stays pending and
// LookupFailed is set so the caller can retry later.
func (s *ReconcileService) Reconcile(ctx context.Context, sessionID string) (*models.ReconcileResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, status.ErrNotFound
	}

	ticket, err := s.store.FindTicketBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if ticket.ProfileID != "" {
		return s.promoteLinked(ctx, ticket)
	}
	if ticket.Status.Terminal() {
		s.monitor.TrackReconcile("terminal")
		return resultFor(ticket), nil
	}

	if s.redis != nil {
		lock, err := utils.AcquireLock(ctx, s.redis, "reconcile:lock:"+sessionID, s.lockTTL)
		switch {
		case errors.Is(err, utils.ErrLockHeld):
			s.monitor.TrackReconcile("in_progress")
			return s.current(ctx, ticket.ID)
		case err != nil:
			s.logger.Warn("reconcile lock unavailable, continuing", "session_id", sessionID, "error", err)
		default:
			defer func() {
				if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
					s.logger.Warn("reconcile lock release", "session_id", sessionID, "error", err)
				}
			}()
		}
	}

	session, err := s.lookup.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		s.monitor.TrackReconcile("lookup_failed")
		s.logger.Warn("reconcile lookup failed", "session_id", sessionID, "provider", s.lookup.Provider(), "error", err)
		res := resultFor(ticket)
		res.LookupFailed = true
		return res, nil
	}

	if !session.Paid() || session.Buyer.NormalizedEmail() == "" {
		s.monitor.TrackReconcile("unpaid")
		return resultFor(ticket), nil
	}

	confirmed, err := s.ConfirmSession(ctx, session)
	if status.IsLatePayment(err) && confirmed != nil {
		s.monitor.TrackReconcile("late_payment")
		return resultFor(confirmed), nil
	}
	if err != nil {
		s.monitor.TrackReconcile("error")
		return nil, err
	}

	s.monitor.TrackReconcile("activated")
	return resultFor(confirmed), nil
}

// ConfirmSession applies a paid checkout session: upsert the buyer's profile,
// link it to the ticket if none is linked yet, then activate. Both the
// webhook and Reconcile land here, so every step is idempotent.
func (s *ReconcileService) ConfirmSession(ctx context.Context, session *models.CheckoutSession) (*models.Ticket, error) {
	ticket, err := s.ticketForSession(ctx, session)
	if err != nil {
		return nil, err
	}

	if session.Buyer.NormalizedEmail() != "" {
		profile, err := s.profiles.Upsert(ctx, session.Buyer)
		switch {
		case errors.Is(err, status.ErrInvalidEmail):
			// Payment is confirmed either way; the ticket just stays unlinked.
			s.logger.Warn("confirm without profile", "session_id", session.ID, "ticket_id", ticket.ID, "error", err)
		case err != nil:
			return nil, fmt.Errorf("confirm %s: %w", session.ID, err)
		default:
			if err := s.store.LinkProfile(ctx, ticket.ID, profile.ID); err != nil {
				return nil, fmt.Errorf("confirm %s: %w", session.ID, err)
			}
		}
	}

	amount := ""
	if !session.AmountTotal.IsZero() {
		amount = session.AmountTotal.StringFixed(2)
	}
	return s.reservations.Activate(ctx, ticket.ID, amount)
}

// ticketForSession finds the ticket by session id, falling back to the
// ticket_id metadata for tickets reserved before the session existed.
func (s *ReconcileService) ticketForSession(ctx context.Context, session *models.CheckoutSession) (*models.Ticket, error) {
	ticket, err := s.store.FindTicketBySession(ctx, session.ID)
	if err == nil || !errors.Is(err, status.ErrNotFound) {
		return ticket, err
	}

	ticketID := strings.TrimSpace(session.Metadata["ticket_id"])
	if ticketID == "" {
		return nil, err
	}
	return s.reservations.AttachSession(ctx, ticketID, session.ID)
}

func (s *ReconcileService) promoteLinked(ctx context.Context, ticket *models.Ticket) (*models.ReconcileResult, error) {
	if ticket.Status != models.StatusPending {
		s.monitor.TrackReconcile("up_to_date")
		return resultFor(ticket), nil
	}

	activated, err := s.reservations.Activate(ctx, ticket.ID, "")
	if status.IsLatePayment(err) && activated != nil {
		s.monitor.TrackReconcile("late_payment")
		return resultFor(activated), nil
	}
	if err != nil {
		return nil, err
	}
	s.monitor.TrackReconcile("activated")
	return resultFor(activated), nil
}

func (s *ReconcileService) current(ctx context.Context, ticketID string) (*models.ReconcileResult, error) {
	ticket, err := s.store.FindTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	return resultFor(ticket), nil
}

func resultFor(t *models.Ticket) *models.ReconcileResult {
	return &models.ReconcileResult{TicketID: t.ID, Status: t.Status}
}
