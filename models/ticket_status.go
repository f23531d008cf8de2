package models

import "strings"

// TicketStatus is the lifecycle state of a single ticket row.
type TicketStatus string

const (
	StatusPending  TicketStatus = "pending"
	StatusActive   TicketStatus = "active"
	StatusUsed     TicketStatus = "used"
	StatusRefunded TicketStatus = "refunded"
	StatusExpired  TicketStatus = "expired"
)

// transitions lists, for every target state, the states it may be entered from.
var transitions = map[TicketStatus][]TicketStatus{
	StatusActive:   {StatusPending},
	StatusExpired:  {StatusPending},
	StatusUsed:     {StatusActive},
	StatusRefunded: {StatusActive, StatusUsed},
}

// ParseTicketStatus normalises a stored status. NULL or empty values are
// legacy rows written before payment confirmed and count as pending.
func ParseTicketStatus(raw string) (TicketStatus, bool) {
	s := TicketStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case "":
		return StatusPending, true
	case StatusPending, StatusActive, StatusUsed, StatusRefunded, StatusExpired:
		return s, true
	}
	return "", false
}

func (s TicketStatus) String() string {
	return string(s)
}

// Terminal reports whether no transition may leave s.
func (s TicketStatus) Terminal() bool {
	return s == StatusUsed || s == StatusRefunded || s == StatusExpired
}

// ConsumesCapacity reports whether a ticket in s always counts against the
// product's stock limit. Pending tickets count only inside the grace window.
func (s TicketStatus) ConsumesCapacity() bool {
	return s == StatusActive || s == StatusUsed
}

// CanTransition is the single authority on legal status changes.
func CanTransition(from, to TicketStatus) bool {
	for _, src := range transitions[to] {
		if src == from {
			return true
		}
	}
	return false
}

// Sources returns the states from which to may be entered. The store uses it
// as the guard of its conditional updates.
func Sources(to TicketStatus) []TicketStatus {
	src := transitions[to]
	out := make([]TicketStatus, len(src))
	copy(out, src)
	return out
}
