package status

import (
	"errors"
	"fmt"

	"ticket-inventory/models"
)

var (
	ErrSoldOut              = errors.New("ledger: product sold out")
	ErrProductNotFound      = errors.New("ledger: product not found")
	ErrInvalidTransition    = errors.New("ticket: invalid status transition")
	ErrNotFound             = errors.New("ticket: ticket not found")
	ErrAlreadyUsed          = errors.New("checkin: ticket already used")
	ErrNotActive            = errors.New("checkin: ticket not active")
	ErrExternalLookupFailed = errors.New("reconcile: payment processor lookup failed")
	ErrExpiredBeforePayment = errors.New("ticket: reservation expired before payment")
	ErrInvalidEmail         = errors.New("profile: invalid email")

	ErrInvalidSignature = errors.New("webhook: invalid signature")
	ErrInvalidPayload   = errors.New("webhook: invalid payload")
	ErrEventIgnored     = errors.New("webhook: event ignored")
)

// IsLatePayment reports whether a confirmed payment could not be applied
// because the reservation no longer held its place. The buyer needs a refund;
// the ticket is never admitted.
func IsLatePayment(err error) bool {
	return errors.Is(err, ErrSoldOut) || errors.Is(err, ErrExpiredBeforePayment)
}

// AlreadyUsedError carries the original admission so door staff can see
// when the ticket was first scanned.
type AlreadyUsedError struct {
	Admission *models.Admission
}

func (e *AlreadyUsedError) Error() string {
	if e.Admission != nil && e.Admission.AdmittedAt != nil {
		return fmt.Sprintf("%s at %s", ErrAlreadyUsed, e.Admission.AdmittedAt.Format("15:04:05"))
	}
	return ErrAlreadyUsed.Error()
}

func (e *AlreadyUsedError) Unwrap() error { return ErrAlreadyUsed }

// NotActiveError reports why a ticket cannot be admitted.
type NotActiveError struct {
	TicketID string
	Status   models.TicketStatus
}

func (e *NotActiveError) Error() string {
	return fmt.Sprintf("%s: %s is %s", ErrNotActive, e.TicketID, e.Status)
}

func (e *NotActiveError) Unwrap() error { return ErrNotActive }

// TransitionError names the rejected move.
type TransitionError struct {
	TicketID string
	From, To models.TicketStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s %s -> %s", ErrInvalidTransition, e.TicketID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
