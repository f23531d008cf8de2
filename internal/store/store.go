// Package store holds every SQL statement that reads or writes ticket
// inventory. Capacity and admission decisions are made by the database inside
// a single statement or transaction, never by reading rows into Go first.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	_ "modernc.org/sqlite"

	"ticket-inventory/models"
	"ticket-inventory/utils"
)

type Store struct {
	db          *dbx.DB
	clock       utils.Clock
	graceWindow time.Duration
}

// New wraps db. graceWindow is the default lifetime of an unpaid reservation;
// products may override it with grace_window_seconds.
func New(db *dbx.DB, graceWindow time.Duration, clock utils.Clock) *Store {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &Store{db: db, clock: clock, graceWindow: graceWindow}
}

// Open opens a SQLite database with a single connection, the same shape
// pocketbase uses for its non-concurrent pool, so write transactions queue
// in the pool instead of failing with SQLITE_BUSY.
func Open(dsn string) (*dbx.DB, error) {
	db, err := dbx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.DB().SetMaxOpenConns(1)
	db.DB().SetMaxIdleConns(1)
	return db, nil
}

func (s *Store) DB() *dbx.DB { return s.db }

func (s *Store) GraceWindow() time.Duration { return s.graceWindow }

func (s *Store) now() time.Time { return s.clock.Now() }

type ticketRow struct {
	ID              string         `db:"id"`
	ProductID       string         `db:"product_id"`
	ProfileID       sql.NullString `db:"profile_id"`
	Status          sql.NullString `db:"status"`
	CreatedAt       int64          `db:"created_at"`
	StripeSessionID sql.NullString `db:"stripe_session_id"`
	RefundReason    sql.NullString `db:"refund_reason"`
	AmountPaid      sql.NullString `db:"amount_paid"`
	CheckedInAt     sql.NullInt64  `db:"checked_in_at"`
}

func (r ticketRow) toModel() *models.Ticket {
	st, ok := models.ParseTicketStatus(r.Status.String)
	if !ok {
		st = models.TicketStatus(r.Status.String)
	}
	t := &models.Ticket{
		ID:              r.ID,
		ProductID:       r.ProductID,
		ProfileID:       r.ProfileID.String,
		Status:          st,
		CreatedAt:       timeFromMillis(r.CreatedAt),
		StripeSessionID: r.StripeSessionID.String,
		RefundReason:    r.RefundReason.String,
		AmountPaid:      r.AmountPaid.String,
	}
	if r.CheckedInAt.Valid {
		at := timeFromMillis(r.CheckedInAt.Int64)
		t.CheckedInAt = &at
	}
	return t
}

type profileRow struct {
	ID        string `db:"id"`
	Email     string `db:"email"`
	Name      string `db:"name"`
	Phone     string `db:"phone"`
	Postcode  string `db:"postcode"`
	AgeRange  string `db:"age_range"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r profileRow) toModel() *models.Profile {
	return &models.Profile{
		ID:        r.ID,
		Email:     r.Email,
		Name:      r.Name,
		Phone:     r.Phone,
		Postcode:  r.Postcode,
		AgeRange:  r.AgeRange,
		CreatedAt: timeFromMillis(r.CreatedAt),
		UpdatedAt: timeFromMillis(r.UpdatedAt),
	}
}

func timeFromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// nullable maps "" to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
