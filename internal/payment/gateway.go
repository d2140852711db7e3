package payment

import (
	"errors"

	"delivery/internal/domain"
)

var (
	// ErrUnsupportedEvent is returned for webhook events that carry no payment outcome.
	ErrUnsupportedEvent = errors.New("unsupported webhook event")

	// ErrMalformedPayload is returned when a webhook body cannot be decoded.
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

// InitRequest describes a transaction to start for an order.
type InitRequest struct {
	OrderID     string
	AmountMinor int64
	Currency    string
	Description string
}

// InitResult is what the buyer needs to complete payment.
type InitResult struct {
	Reference        string
	AuthorizationURL string
}

// WebhookEvent is the payment outcome carried by a verified webhook.
type WebhookEvent struct {
	Type      string
	Reference string
	OrderID   string
	Status    domain.PaymentStatus
}
