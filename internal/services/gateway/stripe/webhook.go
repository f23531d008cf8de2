package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ticket-inventory/internal/services/gateway"
	"ticket-inventory/internal/status"
	"ticket-inventory/models"
	"ticket-inventory/utils"
)

const SignatureHeader = "Stripe-Signature"

// DefaultTolerance bounds how old a signed timestamp may be.
const DefaultTolerance = 5 * time.Minute

type Webhook struct {
	secret    string
	tolerance time.Duration
	clock     utils.Clock
}

var _ gateway.WebhookDecoder = (*Webhook)(nil)

func NewWebhook(secret string, clock utils.Clock) *Webhook {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &Webhook{secret: strings.TrimSpace(secret), tolerance: DefaultTolerance, clock: clock}
}

func (w *Webhook) Verify(payload []byte, headers http.Header) error {
	if w.secret == "" {
		return fmt.Errorf("%w: webhook secret not configured", status.ErrInvalidSignature)
	}

	sigHeader := strings.TrimSpace(headers.Get(SignatureHeader))
	if sigHeader == "" {
		return status.ErrInvalidSignature
	}

	ts, signatures, err := parseSignature(sigHeader)
	if err != nil {
		return status.ErrInvalidSignature
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return status.ErrInvalidSignature
	}
	if age := w.clock.Now().Sub(time.Unix(unix, 0)); age > w.tolerance || age < -w.tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", status.ErrInvalidSignature)
	}

	expected := Sign(w.secret, ts, payload)
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return status.ErrInvalidSignature
}

// Sign computes the v1 signature for timestamp and payload.
func Sign(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(timestamp + "." + string(payload)))
	return hex.EncodeToString(mac.Sum(nil))
}

type event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

func (w *Webhook) Parse(payload []byte) (*models.PaymentNotification, error) {
	var ev event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, status.ErrInvalidPayload
	}
	if strings.TrimSpace(ev.ID) == "" {
		return nil, status.ErrInvalidPayload
	}

	switch ev.Type {
	case gateway.EventCheckoutCompleted, gateway.EventCheckoutExpired,
		gateway.EventCheckoutAsyncSucceeded, gateway.EventCheckoutAsyncFailed:
	default:
		return nil, status.ErrEventIgnored
	}

	var session checkoutSession
	if err := json.Unmarshal(ev.Data.Object, &session); err != nil || session.ID == "" {
		return nil, status.ErrInvalidPayload
	}

	return &models.PaymentNotification{
		EventID: ev.ID,
		Type:    ev.Type,
		Session: *session.toModel(),
	}, nil
}

func parseSignature(header string) (string, []string, error) {
	var timestamp string
	signatures := []string{}
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "t":
			timestamp = strings.TrimSpace(value)
		case "v1":
			signatures = append(signatures, strings.TrimSpace(value))
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("malformed signature header")
	}
	return timestamp, signatures, nil
}
