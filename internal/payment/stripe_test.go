package payment

import (
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v74/webhook"

	"delivery/internal/domain"
)

func TestStripeGateway_VerifyWebhookSignature(t *testing.T) {
	t.Parallel()

	g := &StripeGateway{webhookSecret: "whsec_test"}
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    "whsec_test",
		Timestamp: time.Now(),
	})
	if !g.VerifyWebhookSignature(payload, signed.Header) {
		t.Error("expected valid signature to verify")
	}
	if g.VerifyWebhookSignature([]byte(`{"tampered":true}`), signed.Header) {
		t.Error("tampered payload must not verify")
	}
	if g.VerifyWebhookSignature(payload, "t="+strconv.FormatInt(time.Now().Unix(), 10)+",v1=deadbeef") {
		t.Error("wrong signature must not verify")
	}
	if (&StripeGateway{}).VerifyWebhookSignature(payload, signed.Header) {
		t.Error("gateway without secret must reject everything")
	}
}

func TestStripeGateway_ParseWebhookEvent(t *testing.T) {
	t.Parallel()

	g := &StripeGateway{}
	event := func(typ, paymentStatus, status string) []byte {
		return []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","type":%q,"data":{"object":{"id":"cs_123","object":"checkout.session","client_reference_id":"ord-1","payment_status":%q,"status":%q}}}`,
			typ, paymentStatus, status))
	}

	testCases := []struct {
		name    string
		payload []byte
		want    domain.PaymentStatus
		wantErr error
	}{
		{"completed and paid", event("checkout.session.completed", "paid", "complete"), domain.PaymentStatusCompleted, nil},
		{"completed but unpaid", event("checkout.session.completed", "unpaid", "complete"), domain.PaymentStatusProcessing, nil},
		{"async success", event("checkout.session.async_payment_succeeded", "paid", "complete"), domain.PaymentStatusCompleted, nil},
		{"async failure", event("checkout.session.async_payment_failed", "unpaid", "complete"), domain.PaymentStatusFailed, nil},
		{"expired", event("checkout.session.expired", "unpaid", "expired"), domain.PaymentStatusFailed, nil},
		{"unrelated", event("customer.created", "", ""), "", ErrUnsupportedEvent},
		{"garbage", []byte(`not json`), "", ErrMalformedPayload},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := g.ParseWebhookEvent(tc.payload)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Status != tc.want || got.Reference != "cs_123" || got.OrderID != "ord-1" {
				t.Errorf("unexpected event %+v", got)
			}
		})
	}
}
