package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pocketbase/dbx"

	"ticket-inventory/internal/status"
	"ticket-inventory/models"
)

// A NULL or empty status is a pending row.
var (
	pendingGuard   = fmt.Sprintf("COALESCE(%%s, '') IN ('%s', '')", models.StatusPending)
	consumingGuard = fmt.Sprintf("t.status IN ('%s', '%s')", models.StatusActive, models.StatusUsed)

	// graceCutoff resolves the product's own window, falling back to the
	// store default. Both sides are unix milliseconds.
	graceCutoff = "{:now} - COALESCE(p.grace_window_seconds * 1000, {:grace_ms})"

	// occupancySQL counts tickets holding capacity for products row p.
	occupancySQL = `(SELECT COUNT(*) FROM tickets t WHERE t.product_id = p.id AND (` +
		consumingGuard + ` OR (` + fmt.Sprintf(pendingGuard, "t.status") + ` AND t.created_at >= ` + graceCutoff + `)))`
)

const ticketColumns = `id, product_id, profile_id, status, created_at, stripe_session_id, refund_reason, amount_paid, checked_in_at`

func (s *Store) clockParams() dbx.Params {
	return dbx.Params{
		"now":      s.now().UnixMilli(),
		"grace_ms": s.graceWindow.Milliseconds(),
	}
}

// touchProduct takes the write lock on the product row so that concurrent
// capacity decisions for the same product are serialised by the database.
func touchProduct(ctx context.Context, tx dbx.Builder, productID string, now int64) error {
	res, err := tx.NewQuery(`UPDATE products SET updated_at = {:now} WHERE id = {:product}`).
		WithContext(ctx).
		Bind(dbx.Params{"now": now, "product": productID}).
		Execute()
	if err != nil {
		return fmt.Errorf("store: touch product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return status.ErrProductNotFound
	}
	return nil
}

// Reserve atomically checks capacity and inserts one pending ticket. A
// non-empty sessionID makes the call idempotent per checkout session: the
// session's ticket is returned as stored, whatever its status, so an expired
// one tells the caller to start a new checkout. A session already holding a
// ticket for another product is a TransitionError.
func (s *Store) Reserve(ctx context.Context, productID, sessionID string) (*models.Ticket, error) {
	params := s.clockParams()
	params["id"] = uuid.NewString()
	params["product"] = productID
	params["session"] = nullable(sessionID)
	params["pending"] = string(models.StatusPending)

	var ticket *models.Ticket
	err := s.db.TransactionalContext(ctx, nil, func(tx *dbx.Tx) error {
		if err := touchProduct(ctx, tx, productID, params["now"].(int64)); err != nil {
			return err
		}

		if sessionID != "" {
			existing, err := findTicketBy(ctx, tx, "stripe_session_id", sessionID)
			if err == nil {
				if existing.ProductID != productID {
					return fmt.Errorf("%w: session %s belongs to product %s",
						status.ErrInvalidTransition, sessionID, existing.ProductID)
				}
				ticket = existing
				return nil
			}
			if !errors.Is(err, status.ErrNotFound) {
				return err
			}
		}

		res, err := tx.NewQuery(`
			INSERT INTO tickets (id, product_id, status, created_at, stripe_session_id)
			SELECT {:id}, p.id, {:pending}, {:now}, {:session}
			FROM products p
			WHERE p.id = {:product}
			  AND (p.stock_limit IS NULL OR p.stock_limit > ` + occupancySQL + `)`).
			WithContext(ctx).
			Bind(params).
			Execute()
		if err != nil {
			return fmt.Errorf("store: reserve: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return status.ErrSoldOut
		}

		ticket, err = findTicketBy(ctx, tx, "id", params["id"].(string))
		return err
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// Activate moves a pending ticket to active and is a no-op for a ticket that
// is already active. A pending ticket whose grace window has passed no longer
// holds capacity, so it is only activated if the product still has room;
// otherwise it is marked expired and ErrSoldOut is returned. activated is
// true only for the call that performed the pending to active write.
func (s *Store) Activate(ctx context.Context, ticketID, amountPaid string) (ticket *models.Ticket, activated bool, err error) {
	params := s.clockParams()
	params["id"] = ticketID
	params["amount"] = nullable(amountPaid)
	params["active"] = string(models.StatusActive)
	params["expired"] = string(models.StatusExpired)

	var lateSoldOut bool
	err = s.db.TransactionalContext(ctx, nil, func(tx *dbx.Tx) error {
		current, err := findTicketBy(ctx, tx, "id", ticketID)
		if err != nil {
			return err
		}
		switch current.Status {
		case models.StatusActive:
			ticket = current
			return nil
		case models.StatusPending:
		default:
			return &status.TransitionError{TicketID: ticketID, From: current.Status, To: models.StatusActive}
		}

		if err := touchProduct(ctx, tx, current.ProductID, params["now"].(int64)); err != nil {
			return err
		}

		res, err := tx.NewQuery(`
			UPDATE tickets SET status = {:active}, amount_paid = COALESCE({:amount}, amount_paid)
			WHERE id = {:id} AND ` + fmt.Sprintf(pendingGuard, "status") + `
			  AND EXISTS (
				SELECT 1 FROM products p WHERE p.id = tickets.product_id AND (
					p.stock_limit IS NULL
					OR tickets.created_at >= ` + graceCutoff + `
					OR p.stock_limit > ` + occupancySQL + `))`).
			WithContext(ctx).
			Bind(params).
			Execute()
		if err != nil {
			return fmt.Errorf("store: activate: %w", err)
		}

		n, _ := res.RowsAffected()
		activated = n == 1
		if n == 0 {
			lateSoldOut = true
			if _, err := tx.NewQuery(`UPDATE tickets SET status = {:expired} WHERE id = {:id} AND ` + fmt.Sprintf(pendingGuard, "status")).
				WithContext(ctx).
				Bind(params).
				Execute(); err != nil {
				return fmt.Errorf("store: expire late ticket: %w", err)
			}
		}

		ticket, err = findTicketBy(ctx, tx, "id", ticketID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if lateSoldOut {
		return ticket, false, status.ErrSoldOut
	}
	return ticket, activated, nil
}

// Transition performs a guarded single-row status change to expired or
// refunded. Activation and check-in have dedicated methods because they carry
// extra conditions.
func (s *Store) Transition(ctx context.Context, ticketID string, to models.TicketStatus, reason string) (*models.Ticket, error) {
	if to != models.StatusExpired && to != models.StatusRefunded {
		return nil, fmt.Errorf("store: transition to %s is not a plain status change", to)
	}

	params := dbx.Params{"id": ticketID, "to": string(to), "reason": nullable(reason)}
	set := "status = {:to}"
	if to == models.StatusRefunded {
		set += ", refund_reason = {:reason}"
	}

	res, err := s.db.NewQuery(`UPDATE tickets SET ` + set + ` WHERE id = {:id} AND ` + statusGuard("status", models.Sources(to))).
		WithContext(ctx).
		Bind(params).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("store: transition: %w", err)
	}

	ticket, err := findTicketBy(ctx, s.db, "id", ticketID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ticket, &status.TransitionError{TicketID: ticketID, From: ticket.Status, To: to}
	}
	return ticket, nil
}

// MarkUsed is the exactly-once admission write. It reports false when the
// ticket was not active at the moment of the update.
func (s *Store) MarkUsed(ctx context.Context, ticketID string) (bool, error) {
	res, err := s.db.NewQuery(`
		UPDATE tickets SET status = {:used}, checked_in_at = {:now}
		WHERE id = {:id} AND status = {:active}`).
		WithContext(ctx).
		Bind(dbx.Params{
			"id":     ticketID,
			"now":    s.now().UnixMilli(),
			"used":   string(models.StatusUsed),
			"active": string(models.StatusActive),
		}).
		Execute()
	if err != nil {
		return false, fmt.Errorf("store: mark used: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// ExpireStale marks pending tickets past their grace window as expired.
// Capacity never depends on this running.
func (s *Store) ExpireStale(ctx context.Context) (int64, error) {
	params := s.clockParams()
	params["expired"] = string(models.StatusExpired)

	res, err := s.db.NewQuery(`
		UPDATE tickets SET status = {:expired}
		WHERE ` + fmt.Sprintf(pendingGuard, "status") + `
		  AND created_at < (
			SELECT ` + graceCutoff + ` FROM products p WHERE p.id = tickets.product_id)`).
		WithContext(ctx).
		Bind(params).
		Execute()
	if err != nil {
		return 0, fmt.Errorf("store: expire stale: %w", err)
	}
	return res.RowsAffected()
}

// AttachSession records the checkout session on a pending ticket that was
// reserved before the session existed.
func (s *Store) AttachSession(ctx context.Context, ticketID, sessionID string) (*models.Ticket, error) {
	res, err := s.db.NewQuery(`
		UPDATE tickets SET stripe_session_id = {:session}
		WHERE id = {:id} AND stripe_session_id IS NULL AND ` + fmt.Sprintf(pendingGuard, "status")).
		WithContext(ctx).
		Bind(dbx.Params{"id": ticketID, "session": sessionID}).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("store: attach session: %w", err)
	}

	ticket, err := findTicketBy(ctx, s.db, "id", ticketID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 && ticket.StripeSessionID != sessionID {
		return ticket, fmt.Errorf("%w: ticket %s cannot take session %s", status.ErrInvalidTransition, ticketID, sessionID)
	}
	return ticket, nil
}

// LinkProfile sets the ticket holder once. Later calls never overwrite it.
func (s *Store) LinkProfile(ctx context.Context, ticketID, profileID string) error {
	_, err := s.db.NewQuery(`UPDATE tickets SET profile_id = {:profile} WHERE id = {:id} AND profile_id IS NULL`).
		WithContext(ctx).
		Bind(dbx.Params{"id": ticketID, "profile": profileID}).
		Execute()
	if err != nil {
		return fmt.Errorf("store: link profile: %w", err)
	}
	return nil
}

func (s *Store) FindTicket(ctx context.Context, ticketID string) (*models.Ticket, error) {
	return findTicketBy(ctx, s.db, "id", ticketID)
}

func (s *Store) FindTicketBySession(ctx context.Context, sessionID string) (*models.Ticket, error) {
	return findTicketBy(ctx, s.db, "stripe_session_id", sessionID)
}

// Admission joins a ticket with its holder, product and event.
func (s *Store) Admission(ctx context.Context, ticketID string) (*models.Admission, error) {
	var row struct {
		TicketID    string         `db:"ticket_id"`
		Status      sql.NullString `db:"status"`
		ProductID   string         `db:"product_id"`
		ProductName string         `db:"product_name"`
		EventID     string         `db:"event_id"`
		EventName   string         `db:"event_name"`
		HolderName  string         `db:"holder_name"`
		HolderEmail string         `db:"holder_email"`
		CheckedInAt sql.NullInt64  `db:"checked_in_at"`
	}

	err := s.db.NewQuery(`
		SELECT t.id AS ticket_id, t.status AS status, t.product_id AS product_id, t.checked_in_at AS checked_in_at,
		       COALESCE(p.name, '') AS product_name, COALESCE(p.event_id, '') AS event_id,
		       COALESCE(e.name, '') AS event_name,
		       COALESCE(pr.name, '') AS holder_name, COALESCE(pr.email, '') AS holder_email
		FROM tickets t
		LEFT JOIN products p ON p.id = t.product_id
		LEFT JOIN events e ON e.id = p.event_id
		LEFT JOIN profiles pr ON pr.id = t.profile_id
		WHERE t.id = {:id}`).
		WithContext(ctx).
		Bind(dbx.Params{"id": ticketID}).
		One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: admission: %w", err)
	}

	st, _ := models.ParseTicketStatus(row.Status.String)
	a := &models.Admission{
		TicketID:    row.TicketID,
		Status:      st,
		HolderName:  row.HolderName,
		HolderEmail: row.HolderEmail,
		ProductID:   row.ProductID,
		ProductName: row.ProductName,
		EventID:     row.EventID,
		EventName:   row.EventName,
	}
	if row.CheckedInAt.Valid {
		at := timeFromMillis(row.CheckedInAt.Int64)
		a.AdmittedAt = &at
	}
	return a, nil
}

func findTicketBy(ctx context.Context, db dbx.Builder, column, value string) (*models.Ticket, error) {
	var row ticketRow
	err := db.NewQuery(`SELECT ` + ticketColumns + ` FROM tickets WHERE ` + column + ` = {:value}`).
		WithContext(ctx).
		Bind(dbx.Params{"value": value}).
		One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find ticket: %w", err)
	}
	return row.toModel(), nil
}

// statusGuard renders "column IN (...)" for literal enum values, widening
// pending to cover NULL and empty rows.
func statusGuard(column string, allowed []models.TicketStatus) string {
	if len(allowed) == 0 {
		return "0 = 1"
	}
	quoted := make([]string, 0, len(allowed)+1)
	for _, st := range allowed {
		quoted = append(quoted, "'"+string(st)+"'")
		if st == models.StatusPending {
			quoted = append(quoted, "''")
		}
	}
	return fmt.Sprintf("COALESCE(%s, '') IN (%s)", column, strings.Join(quoted, ", "))
}
