package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Buyer is the identity a payment processor reports for a completed checkout.
type Buyer struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Postcode string `json:"postcode"`
	AgeRange string `json:"age_range"`
}

// NormalizedEmail is the key profiles are unique on.
func (b Buyer) NormalizedEmail() string {
	return strings.ToLower(strings.TrimSpace(b.Email))
}

type CheckoutSession struct {
	ID            string            `json:"id"`
	Status        string            `json:"status"`         // open, complete, expired
	PaymentStatus string            `json:"payment_status"` // paid, unpaid, no_payment_required
	AmountTotal   decimal.Decimal   `json:"amount_total"`
	Currency      string            `json:"currency"`
	Buyer         Buyer             `json:"buyer"`
	Metadata      map[string]string `json:"metadata"`
}

// Paid reports whether the processor considers the session settled.
func (s CheckoutSession) Paid() bool {
	return s.PaymentStatus == "paid" || s.PaymentStatus == "no_payment_required"
}

// PaymentNotification is a verified, decoded webhook delivery.
type PaymentNotification struct {
	EventID string          `json:"event_id"`
	Type    string          `json:"type"`
	Session CheckoutSession `json:"session"`
}
