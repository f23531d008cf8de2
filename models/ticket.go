package models

import (
	"time"
)

type Product struct {
	ID          string `json:"id"`
	EventID     string `json:"event_id"`
	Name        string `json:"name"`
	StockLimit  *int   `json:"stock_limit"`          // nil means unlimited
	GraceWindow *int   `json:"grace_window_seconds"` // nil means the global window
}

type Event struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	StartsAt time.Time `json:"starts_at"`
}

type Ticket struct {
	ID              string       `json:"id"`
	ProductID       string       `json:"product_id"`
	ProfileID       string       `json:"profile_id,omitempty"`
	Status          TicketStatus `json:"status"`
	CreatedAt       time.Time    `json:"created_at"`
	StripeSessionID string       `json:"stripe_session_id,omitempty"`
	RefundReason    string       `json:"refund_reason,omitempty"`
	AmountPaid      string       `json:"amount_paid,omitempty"`
	CheckedInAt     *time.Time   `json:"checked_in_at,omitempty"`
}

type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Postcode  string    `json:"postcode"`
	AgeRange  string    `json:"age_range"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Admission is what door staff see after a scan.
type Admission struct {
	TicketID    string       `json:"ticket_id"`
	Status      TicketStatus `json:"status"`
	HolderName  string       `json:"holder_name"`
	HolderEmail string       `json:"holder_email"`
	ProductID   string       `json:"product_id"`
	ProductName string       `json:"product_name"`
	EventID     string       `json:"event_id"`
	EventName   string       `json:"event_name"`
	AdmittedAt  *time.Time   `json:"admitted_at,omitempty"`
}

type Availability struct {
	ProductID string `json:"product_id"`
	Limit     *int   `json:"limit"`
	Occupied  int    `json:"occupied"`
	Remaining *int   `json:"remaining"`
	SoldOut   bool   `json:"sold_out"`
}

type ReconcileResult struct {
	TicketID     string       `json:"ticket_id"`
	Status       TicketStatus `json:"status"`
	LookupFailed bool         `json:"lookup_failed,omitempty"`
}
