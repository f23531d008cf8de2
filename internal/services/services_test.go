package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ticket-inventory/internal/services/gateway"
	"ticket-inventory/internal/store"
	"ticket-inventory/models"
	"ticket-inventory/utils"
)

var epoch = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) (*store.Store, *utils.FakeClock) {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "tickets.db") +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := store.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, store.Migrate(context.Background(), db))

	clock := utils.NewFakeClock(epoch)
	return store.New(db, 15*time.Minute, clock), clock
}

func seedProduct(t *testing.T, st *store.Store, limit *int) *models.Product {
	t.Helper()
	ctx := context.Background()

	ev, err := st.CreateEvent(ctx, models.Event{Name: "Harbour Lights", StartsAt: epoch.Add(24 * time.Hour)})
	require.NoError(t, err)
	p, err := st.CreateProduct(ctx, models.Product{EventID: ev.ID, Name: "Standing", StockLimit: limit})
	require.NoError(t, err)
	return p
}

func intPtr(n int) *int { return &n }

type MockLookup struct {
	mock.Mock
}

func (m *MockLookup) Provider() gateway.Provider { return gateway.ProviderStripe }

func (m *MockLookup) GetCheckoutSession(ctx context.Context, sessionID string) (*models.CheckoutSession, error) {
	args := m.Called(ctx, sessionID)
	s, _ := args.Get(0).(*models.CheckoutSession)
	return s, args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) TicketActivated(_ context.Context, t *models.Ticket) {
	m.Called(t.ID)
}

func (m *MockNotifier) TicketCheckedIn(_ context.Context, a *models.Admission) {
	m.Called(a.TicketID)
}

// harness wires every service over one store, the way cmd does.
type harness struct {
	store        *store.Store
	clock        *utils.FakeClock
	logs         *bytes.Buffer
	lookup       *MockLookup
	notifier     *MockNotifier
	ledger       *LedgerService
	reservations *ReservationService
	checkin      *CheckInService
	profiles     *ProfileService
	reconcile    *ReconcileService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st, clock := newTestStore(t)
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))
	lookup := &MockLookup{}
	notifier := &MockNotifier{}
	notifier.On("TicketActivated", mock.Anything).Maybe()
	notifier.On("TicketCheckedIn", mock.Anything).Maybe()

	reservations := NewReservationService(st, notifier, nil, logger)
	profiles := NewProfileService(st, logger)

	return &harness{
		store:        st,
		clock:        clock,
		logs:         logs,
		lookup:       lookup,
		notifier:     notifier,
		ledger:       NewLedgerService(st, nil, logger),
		reservations: reservations,
		checkin:      NewCheckInService(st, notifier, nil, logger),
		profiles:     profiles,
		reconcile: NewReconcileService(ReconcileDeps{
			Store:        st,
			Lookup:       lookup,
			Profiles:     profiles,
			Reservations: reservations,
			Logger:       logger,
		}),
	}
}

func (h *harness) activeTicket(t *testing.T, product *models.Product) *models.Ticket {
	t.Helper()
	ctx := context.Background()

	tk, err := h.ledger.Reserve(ctx, product.ID, "")
	require.NoError(t, err)
	tk, err = h.reservations.Activate(ctx, tk.ID, "30.00")
	require.NoError(t, err)
	return tk
}

func paidSession(id, email string) *models.CheckoutSession {
	return &models.CheckoutSession{
		ID:            id,
		Status:        "complete",
		PaymentStatus: "paid",
		Buyer:         models.Buyer{Email: email, Name: "Riley Chen", Postcode: "2000"},
	}
}

var errNetwork = errors.New("dial tcp: i/o timeout")
