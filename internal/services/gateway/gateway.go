// Package gateway describes what the ticket engine needs from a payment
// processor. Implementations live in subpackages.
package gateway

import (
	"context"
	"net/http"

	"ticket-inventory/models"
)

type Provider string

const ProviderStripe Provider = "stripe"

// Webhook event types the engine acts on.
const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventCheckoutExpired        = "checkout.session.expired"
	EventCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutAsyncFailed    = "checkout.session.async_payment_failed"
)

// SessionLookup reads a checkout session from the processor. Every failure,
// including an open circuit breaker, wraps status.ErrExternalLookupFailed.
type SessionLookup interface {
	Provider() Provider
	GetCheckoutSession(ctx context.Context, sessionID string) (*models.CheckoutSession, error)
}

// WebhookDecoder authenticates and decodes processor callbacks.
type WebhookDecoder interface {
	Verify(payload []byte, headers http.Header) error
	Parse(payload []byte) (*models.PaymentNotification, error)
}
