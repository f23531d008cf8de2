package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []TicketStatus{StatusPending, StatusActive, StatusUsed, StatusRefunded, StatusExpired}

func TestCanTransition_Table(t *testing.T) {
	tests := []struct {
		from, to TicketStatus
		expected bool
	}{
		{StatusPending, StatusActive, true},
		{StatusPending, StatusExpired, true},
		{StatusActive, StatusUsed, true},
		{StatusActive, StatusRefunded, true},
		{StatusUsed, StatusRefunded, true},
		{StatusPending, StatusUsed, false},
		{StatusPending, StatusRefunded, false},
		{StatusActive, StatusPending, false},
		{StatusActive, StatusExpired, false},
		{StatusUsed, StatusActive, false},
		{StatusExpired, StatusActive, false},
		{StatusRefunded, StatusActive, false},
		{StatusActive, StatusActive, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.expected, CanTransition(tt.from, tt.to))
		})
	}
}

func TestCanTransition_NeverReturnsToPending(t *testing.T) {
	for _, from := range allStatuses {
		assert.False(t, CanTransition(from, StatusPending), "from %s", from)
	}
}

func TestCanTransition_TerminalStatesAreNeverExited(t *testing.T) {
	for _, from := range allStatuses {
		if !from.Terminal() {
			continue
		}
		for _, to := range allStatuses {
			if from == StatusUsed && to == StatusRefunded {
				// post-admission refunds are allowed by policy
				continue
			}
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestSources_ReturnsCopy(t *testing.T) {
	src := Sources(StatusRefunded)
	require.Len(t, src, 2)

	src[0] = StatusExpired
	assert.Equal(t, []TicketStatus{StatusActive, StatusUsed}, Sources(StatusRefunded))
	assert.Empty(t, Sources(StatusPending))
}

func TestParseTicketStatus(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected TicketStatus
		ok       bool
	}{
		{"empty is pending", "", StatusPending, true},
		{"whitespace is pending", "  ", StatusPending, true},
		{"upper case", "ACTIVE", StatusActive, true},
		{"used", "used", StatusUsed, true},
		{"unknown", "locked", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, ok := ParseTicketStatus(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, status)
		})
	}
}

func TestTicketStatus_ConsumesCapacity(t *testing.T) {
	assert.True(t, StatusActive.ConsumesCapacity())
	assert.True(t, StatusUsed.ConsumesCapacity())
	assert.False(t, StatusPending.ConsumesCapacity())
	assert.False(t, StatusRefunded.ConsumesCapacity())
	assert.False(t, StatusExpired.ConsumesCapacity())
}

func TestBuyer_NormalizedEmail(t *testing.T) {
	b := Buyer{Email: "  Jo.Bloggs@Example.COM "}
	assert.Equal(t, "jo.bloggs@example.com", b.NormalizedEmail())
}

func TestCheckoutSession_Paid(t *testing.T) {
	for _, ps := range []string{"paid", "no_payment_required"} {
		assert.True(t, CheckoutSession{PaymentStatus: ps}.Paid(), ps)
	}
	assert.False(t, CheckoutSession{PaymentStatus: "unpaid", AmountTotal: decimal.NewFromInt(10)}.Paid())
}

func BenchmarkCanTransition(b *testing.B) {
	for i := 0; i < b.N; i++ {
		CanTransition(StatusUsed, StatusRefunded)
	}
}
