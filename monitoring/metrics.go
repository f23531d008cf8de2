package monitoring

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ticket-inventory/models"
	"ticket-inventory/utils"
)

var (
	productOccupancy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ticket_product_occupancy",
			Help: "Tickets currently holding capacity per product",
		},
		[]string{"product_id"},
	)

	productRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ticket_product_remaining",
			Help: "Remaining capacity per limited product",
		},
		[]string{"product_id"},
	)

	reservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_reservations_total",
			Help: "Reservation attempts by outcome",
		},
		[]string{"outcome"},
	)

	reservationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ticket_reservation_duration_seconds",
			Help:    "Time spent in the reserve transaction",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	checkIns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_checkins_total",
			Help: "Door scans by outcome",
		},
		[]string{"outcome"},
	)

	reconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_reconciliations_total",
			Help: "Session reconciliations by outcome",
		},
		[]string{"outcome"},
	)

	transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_status_transitions_total",
			Help: "Ticket status changes",
		},
		[]string{"from", "to"},
	)

	webhooks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_webhooks_total",
			Help: "Payment processor webhook deliveries",
		},
		[]string{"type", "outcome"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ticket_circuit_breaker_state",
			Help: "0 closed, 1 half open, 2 open",
		},
		[]string{"name"},
	)
)

// OccupancySource is the read side of the ledger.
type OccupancySource interface {
	ProductIDs(ctx context.Context) ([]string, error)
	Availability(ctx context.Context, productID string) (*models.Availability, error)
}

// Monitor records domain metrics. A nil *Monitor is valid and records
// nothing, which keeps services usable in tests without a registry.
type Monitor struct {
	source OccupancySource
	logger *slog.Logger
}

func NewMonitor(source OccupancySource, logger *slog.Logger) *Monitor {
	return &Monitor{source: source, logger: logger}
}

// CollectOccupancy refreshes the per-product gauges. Called from cron.
func (m *Monitor) CollectOccupancy(ctx context.Context) error {
	if m == nil || m.source == nil {
		return nil
	}

	ids, err := m.source.ProductIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		a, err := m.source.Availability(ctx, id)
		if err != nil {
			m.logger.Warn("occupancy collect failed", "product_id", id, "error", err)
			continue
		}
		productOccupancy.WithLabelValues(id).Set(float64(a.Occupied))
		if a.Remaining != nil {
			productRemaining.WithLabelValues(id).Set(float64(*a.Remaining))
		}
	}
	return nil
}

func (m *Monitor) TrackReservation(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	reservations.WithLabelValues(outcome).Inc()
	reservationDuration.Observe(took.Seconds())
}

func (m *Monitor) TrackCheckIn(outcome string) {
	if m == nil {
		return
	}
	checkIns.WithLabelValues(outcome).Inc()
}

func (m *Monitor) TrackReconcile(outcome string) {
	if m == nil {
		return
	}
	reconciliations.WithLabelValues(outcome).Inc()
}

func (m *Monitor) TrackTransition(from, to models.TicketStatus) {
	if m == nil {
		return
	}
	transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Monitor) TrackWebhook(eventType, outcome string) {
	if m == nil {
		return
	}
	webhooks.WithLabelValues(eventType, outcome).Inc()
}

// BreakerStateChanged matches utils.WithStateChange.
func BreakerStateChanged(name string, _, to utils.State) {
	breakerState.WithLabelValues(name).Set(float64(to))
}
