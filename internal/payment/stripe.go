package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/checkout/session"
	"github.com/stripe/stripe-go/v74/webhook"

	"delivery/internal/domain"
)

// StripeGateway starts and verifies payments with Stripe Checkout.
type StripeGateway struct {
	successURL    string
	cancelURL     string
	webhookSecret string
}

// StripeConfig holds the Stripe credentials and redirect targets.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

// NewStripeGateway sets the global API key used by stripe-go.
func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	stripe.Key = cfg.SecretKey
	return &StripeGateway{
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		webhookSecret: cfg.WebhookSecret,
	}
}

// InitializeTransaction creates a Checkout Session. The session id is the reference.
func (g *StripeGateway) InitializeTransaction(ctx context.Context, req InitRequest) (InitResult, error) {
	description := req.Description
	if description == "" {
		description = "Order " + req.OrderID
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.OrderID),
		SuccessURL:        stripe.String(g.successURL),
		CancelURL:         stripe.String(g.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(req.AmountMinor),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(description),
					},
				},
			},
		},
	}
	params.Context = ctx
	params.AddMetadata("order_id", req.OrderID)

	s, err := session.New(params)
	if err != nil {
		return InitResult{}, fmt.Errorf("create checkout session: %w", err)
	}
	return InitResult{Reference: s.ID, AuthorizationURL: s.URL}, nil
}

// VerifyTransaction looks the session up and maps its state to a payment status.
func (g *StripeGateway) VerifyTransaction(ctx context.Context, reference string) (domain.PaymentStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := session.Get(reference, params)
	if err != nil {
		return "", fmt.Errorf("get checkout session: %w", err)
	}
	return sessionStatus(s), nil
}

// VerifyWebhookSignature checks the Stripe-Signature header against the payload.
func (g *StripeGateway) VerifyWebhookSignature(payload []byte, signature string) bool {
	if g.webhookSecret == "" || signature == "" {
		return false
	}
	return webhook.ValidatePayload(payload, signature, g.webhookSecret) == nil
}

// ParseWebhookEvent extracts the payment outcome from a verified payload.
func (g *StripeGateway) ParseWebhookEvent(payload []byte) (WebhookEvent, error) {
	var evt stripe.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if evt.Data == nil {
		return WebhookEvent{}, ErrMalformedPayload
	}

	var s stripe.CheckoutSession
	if err := json.Unmarshal(evt.Data.Raw, &s); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	out := WebhookEvent{Type: string(evt.Type), Reference: s.ID, OrderID: s.ClientReferenceID}
	switch out.Type {
	case "checkout.session.completed":
		out.Status = sessionStatus(&s)
	case "checkout.session.async_payment_succeeded":
		out.Status = domain.PaymentStatusCompleted
	case "checkout.session.async_payment_failed", "checkout.session.expired":
		out.Status = domain.PaymentStatusFailed
	default:
		return out, ErrUnsupportedEvent
	}
	return out, nil
}

func sessionStatus(s *stripe.CheckoutSession) domain.PaymentStatus {
	switch {
	case s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		s.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return domain.PaymentStatusCompleted
	case s.Status == stripe.CheckoutSessionStatusExpired:
		return domain.PaymentStatusFailed
	default:
		return domain.PaymentStatusProcessing
	}
}
