package stripe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-inventory/internal/services/gateway"
	"ticket-inventory/internal/status"
	"ticket-inventory/utils"
)

const paidSession = `{
	"id": "cs_test_a1",
	"object": "checkout.session",
	"status": "complete",
	"payment_status": "paid",
	"amount_total": 4550,
	"currency": "aud",
	"customer_details": {
		"email": "Jo@Example.com",
		"name": "Jo Bloggs",
		"phone": "+61400000000",
		"address": {"postal_code": "3056"}
	},
	"custom_fields": [{"key": "age_range", "dropdown": {"value": "25-34"}}],
	"metadata": {"ticket_id": "tk_1"}
}`

func TestGetCheckoutSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "sk_test_123", user)
		assert.Equal(t, "/v1/checkout/sessions/cs_test_a1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(paidSession))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, SecretKey: "sk_test_123"}, nil)

	s, err := c.GetCheckoutSession(context.Background(), "cs_test_a1")
	require.NoError(t, err)
	assert.True(t, s.Paid())
	assert.Equal(t, "45.5", s.AmountTotal.String())
	assert.Equal(t, "AUD", s.Currency)
	assert.Equal(t, "jo@example.com", s.Buyer.NormalizedEmail())
	assert.Equal(t, "Jo Bloggs", s.Buyer.Name)
	assert.Equal(t, "3056", s.Buyer.Postcode)
	assert.Equal(t, "25-34", s.Buyer.AgeRange)
	assert.Equal(t, "tk_1", s.Metadata["ticket_id"])
}

func TestGetCheckoutSession_Failures(t *testing.T) {
	tests := []struct {
		name string
		code int
		body string
	}{
		{"server error", http.StatusBadGateway, `oops`},
		{"missing session", http.StatusNotFound, `{"error":{"type":"invalid_request_error","message":"No such checkout.session"}}`},
		{"garbage body", http.StatusOK, `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(ClientConfig{BaseURL: srv.URL, SecretKey: "sk"}, nil)
			_, err := c.GetCheckoutSession(context.Background(), "cs_1")
			assert.ErrorIs(t, err, status.ErrExternalLookupFailed)
		})
	}
}

func TestGetCheckoutSession_BreakerOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	breaker := utils.NewCircuitBreaker("stripe-test", utils.WithThresholds(2, 0.5), utils.WithTimeout(time.Hour))
	c := NewClient(ClientConfig{BaseURL: srv.URL, SecretKey: "sk"}, breaker)

	for i := 0; i < 5; i++ {
		_, err := c.GetCheckoutSession(context.Background(), "cs_1")
		assert.ErrorIs(t, err, status.ErrExternalLookupFailed)
	}
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, utils.StateOpen, breaker.State())
}

func TestGetCheckoutSession_ClientErrorsDoNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	breaker := utils.NewCircuitBreaker("stripe-test", utils.WithThresholds(1, 0.5))
	c := NewClient(ClientConfig{BaseURL: srv.URL, SecretKey: "sk"}, breaker)

	for i := 0; i < 3; i++ {
		_, _ = c.GetCheckoutSession(context.Background(), "cs_missing")
	}
	assert.Equal(t, utils.StateClosed, breaker.State())
}

func signedHeaders(secret string, at time.Time, payload []byte) http.Header {
	ts := strconv.FormatInt(at.Unix(), 10)
	h := http.Header{}
	h.Set(SignatureHeader, "t="+ts+",v1="+Sign(secret, ts, payload))
	return h
}

func TestWebhookVerify(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	w := NewWebhook("whsec_test", utils.NewFakeClock(now))
	payload := []byte(`{"id":"evt_1"}`)

	tests := []struct {
		name    string
		headers http.Header
		wantErr bool
	}{
		{"valid", signedHeaders("whsec_test", now, payload), false},
		{"wrong secret", signedHeaders("whsec_other", now, payload), true},
		{"too old", signedHeaders("whsec_test", now.Add(-10*time.Minute), payload), true},
		{"missing header", http.Header{}, true},
		{"malformed header", http.Header{SignatureHeader: []string{"garbage"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := w.Verify(payload, tt.headers)
			if tt.wantErr {
				assert.ErrorIs(t, err, status.ErrInvalidSignature)
				return
			}
			assert.NoError(t, err)
		})
	}

	assert.ErrorIs(t, NewWebhook("", nil).Verify(payload, signedHeaders("", now, payload)), status.ErrInvalidSignature)
}

func TestWebhookParse(t *testing.T) {
	w := NewWebhook("whsec_test", nil)

	n, err := w.Parse([]byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":` + paidSession + `}}`))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", n.EventID)
	assert.Equal(t, "cs_test_a1", n.Session.ID)
	assert.Equal(t, "Jo Bloggs", n.Session.Buyer.Name)

	_, err = w.Parse([]byte(`{"id":"evt_2","type":"invoice.paid","data":{"object":{}}}`))
	assert.ErrorIs(t, err, status.ErrEventIgnored)

	_, err = w.Parse([]byte(`not json`))
	assert.ErrorIs(t, err, status.ErrInvalidPayload)

	_, err = w.Parse([]byte(`{"id":"evt_3","type":"checkout.session.expired","data":{"object":{}}}`))
	assert.ErrorIs(t, err, status.ErrInvalidPayload)

	for _, typ := range []string{
		gateway.EventCheckoutAsyncSucceeded,
		gateway.EventCheckoutAsyncFailed,
	} {
		t.Run(typ, func(t *testing.T) {
			n, err := w.Parse([]byte(`{"id":"evt_async","type":"` + typ + `","data":{"object":` + paidSession + `}}`))
			require.NoError(t, err)
			assert.Equal(t, typ, n.Type)
			assert.Equal(t, "cs_test_a1", n.Session.ID)
		})
	}
}
