package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ticket-inventory/internal/services/gateway"
	"ticket-inventory/internal/status"
	"ticket-inventory/models"
	"ticket-inventory/utils"
)

type ClientConfig struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

type Client struct {
	// baseURL is the Stripe API root, overridable for tests.
	baseURL string

	// secretKey is sent as the basic auth username.
	secretKey string

	breaker *utils.CircuitBreaker
	hc      *http.Client
}

var _ gateway.SessionLookup = (*Client)(nil)

func NewClient(c ClientConfig, breaker *utils.CircuitBreaker) *Client {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if breaker == nil {
		breaker = utils.NewCircuitBreaker("stripe")
	}
	return &Client{
		baseURL:   strings.TrimRight(c.BaseURL, "/"),
		secretKey: c.SecretKey,
		breaker:   breaker,
		hc:        &http.Client{Timeout: timeout},
	}
}

func (c *Client) Provider() gateway.Provider { return gateway.ProviderStripe }

// APIError is a non-2xx answer from Stripe.
type APIError struct {
	StatusCode int
	Type       string `json:"type"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stripe: %d %s: %s", e.StatusCode, e.Type, e.Message)
}

type fetchResult struct {
	session *checkoutSession
	apiErr  *APIError
}

// GetCheckoutSession fetches GET /v1/checkout/sessions/{id}. Only transport
// errors and 5xx responses count against the breaker.
func (c *Client) GetCheckoutSession(ctx context.Context, sessionID string) (*models.CheckoutSession, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: empty session id", status.ErrExternalLookupFailed)
	}

	res, err := c.breaker.Execute(ctx, func() (any, error) {
		return c.fetch(ctx, sessionID)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrExternalLookupFailed, err)
	}

	r := res.(*fetchResult)
	if r.apiErr != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrExternalLookupFailed, r.apiErr)
	}
	return r.session.toModel(), nil
}

func (c *Client) fetch(ctx context.Context, sessionID string) (*fetchResult, error) {
	endpoint := fmt.Sprintf("%s/v1/checkout/sessions/%s", c.baseURL, url.PathEscape(sessionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.secretKey, "")
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("stripe: %d", resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
			apiErr.Type = envelope.Error.Type
			apiErr.Message = envelope.Error.Message
		}
		return &fetchResult{apiErr: apiErr}, nil
	}

	var session checkoutSession
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("stripe: decode session: %w", err)
	}
	if session.ID == "" {
		return nil, errors.New("stripe: session without id")
	}
	return &fetchResult{session: &session}, nil
}

type checkoutSession struct {
	ID              string            `json:"id"`
	Status          string            `json:"status"`
	PaymentStatus   string            `json:"payment_status"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	CustomerEmail   string            `json:"customer_email"`
	CustomerDetails *customerDetails  `json:"customer_details"`
	Metadata        map[string]string `json:"metadata"`
	CustomFields    []customField     `json:"custom_fields"`
}

type customerDetails struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address *struct {
		PostalCode string `json:"postal_code"`
	} `json:"address"`
}

type customField struct {
	Key      string `json:"key"`
	Dropdown *struct {
		Value string `json:"value"`
	} `json:"dropdown"`
	Text *struct {
		Value string `json:"value"`
	} `json:"text"`
}

func (f customField) value() string {
	switch {
	case f.Dropdown != nil:
		return f.Dropdown.Value
	case f.Text != nil:
		return f.Text.Value
	}
	return ""
}

func (s *checkoutSession) toModel() *models.CheckoutSession {
	buyer := models.Buyer{Email: s.CustomerEmail}
	if d := s.CustomerDetails; d != nil {
		if d.Email != "" {
			buyer.Email = d.Email
		}
		buyer.Name = d.Name
		buyer.Phone = d.Phone
		if d.Address != nil {
			buyer.Postcode = d.Address.PostalCode
		}
	}
	for _, f := range s.CustomFields {
		switch f.Key {
		case "age_range":
			buyer.AgeRange = f.value()
		case "postcode":
			if buyer.Postcode == "" {
				buyer.Postcode = f.value()
			}
		}
	}
	if buyer.AgeRange == "" {
		buyer.AgeRange = s.Metadata["age_range"]
	}

	return &models.CheckoutSession{
		ID:            s.ID,
		Status:        s.Status,
		PaymentStatus: s.PaymentStatus,
		// Stripe amounts are in the currency's minor unit.
		AmountTotal: decimal.New(s.AmountTotal, -2),
		Currency:    strings.ToUpper(s.Currency),
		Buyer:       buyer,
		Metadata:    s.Metadata,
	}
}
