package payment

import (
	"encoding/json"
	"errors"
	"testing"

	"faixabet-api/internal/models"

	"github.com/stripe/stripe-go/v72"
)

func TestSessionFromStripe(t *testing.T) {
	s := &stripe.CheckoutSession{
		ID:                 "cs_1",
		Mode:               stripe.CheckoutSessionModeSubscription,
		PaymentStatus:      stripe.CheckoutSessionPaymentStatusPaid,
		ClientReferenceID:  "42",
		Metadata:           map[string]string{MetaUserID: "42", MetaPlan: "gold"},
		AmountTotal:        4990,
		PaymentMethodTypes: []string{"card"},
		Subscription: &stripe.Subscription{
			ID:               "sub_1",
			CurrentPeriodEnd: 1700000000,
			LatestInvoice: &stripe.Invoice{
				ID:            "in_1",
				AmountPaid:    4990,
				BillingReason: stripe.InvoiceBillingReasonSubscriptionCreate,
				Subscription:  &stripe.Subscription{ID: "sub_1"},
				StatusTransitions: stripe.InvoiceStatusTransitions{
					PaidAt: 1697000000,
				},
				Lines: &stripe.InvoiceLineList{
					Data: []*stripe.InvoiceLine{{
						Metadata: map[string]string{MetaUserID: "42", MetaPlan: "gold"},
						Period:   &stripe.Period{Start: 1697000000, End: 1699600000},
					}},
				},
				PaymentIntent: &stripe.PaymentIntent{
					ID:             "pi_1",
					Amount:         4990,
					AmountReceived: 4990,
					PaymentMethod:  &stripe.PaymentMethod{Type: stripe.PaymentMethodTypeCard},
				},
			},
		},
	}

	got := sessionFromStripe(s)
	if got.ID != "cs_1" || got.Mode != ModeSubscription || got.PaymentStatus != StatusPaid {
		t.Fatalf("unexpected session: %+v", got)
	}
	if got.SubscriptionID != "sub_1" || got.PeriodEnd != 1700000000 {
		t.Fatalf("subscription not mapped: %+v", got)
	}
	if got.Invoice == nil {
		t.Fatal("latest invoice not mapped")
	}
	inv := got.Invoice
	if inv.AmountPaid != 4990 || inv.PeriodEnd != 1699600000 || inv.PaidAt != 1697000000 {
		t.Fatalf("unexpected invoice: %+v", inv)
	}
	if inv.BillingReason != BillingReasonSubscriptionCreate || inv.SubscriptionID != "sub_1" {
		t.Fatalf("unexpected invoice linkage: %+v", inv)
	}
	if inv.Metadata[MetaPlan] != "gold" {
		t.Fatalf("line metadata not mapped: %+v", inv.Metadata)
	}
	if inv.PaymentIntent == nil || inv.PaymentIntent.Method != "card" || inv.PaymentIntent.Amount != 4990 {
		t.Fatalf("unexpected intent: %+v", inv.PaymentIntent)
	}
	if got.PaymentIntent != nil {
		t.Fatal("session without payment intent must map to nil")
	}
}

func TestInvoiceFromEventPayload(t *testing.T) {
	raw := []byte(`{"id":"in_7","object":"invoice","amount_paid":1990,"billing_reason":"subscription_cycle",
		"subscription":"sub_1","status_transitions":{"paid_at":1698000000},
		"lines":{"object":"list","data":[{"id":"il_1","metadata":{"user_id":"9","plan":"silver"},"period":{"start":1698000000,"end":1700600000}}]}}`)
	var inv stripe.Invoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		t.Fatal(err)
	}

	got := invoiceFromStripe(&inv)
	if got.PaidAt != 1698000000 || got.PeriodEnd != 1700600000 || got.SubscriptionID != "sub_1" {
		t.Fatalf("unexpected invoice: %+v", got)
	}
	if got.Metadata[MetaUserID] != "9" {
		t.Fatalf("line metadata not mapped: %+v", got.Metadata)
	}

	if unpaid := invoiceFromStripe(&stripe.Invoice{ID: "in_8"}); unpaid.PaidAt != 0 {
		t.Fatalf("PaidAt = %d, want 0 without status transitions", unpaid.PaidAt)
	}
}

func TestIntentAmountFallsBackToRequested(t *testing.T) {
	pi := intentFromStripe(&stripe.PaymentIntent{ID: "pi_1", Amount: 1500, PaymentMethodTypes: []string{"pix"}})
	if pi.Amount != 1500 || pi.Method != "" || pi.MethodTypes[0] != "pix" {
		t.Fatalf("unexpected intent: %+v", pi)
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	c := NewStripeClient(Config{WebhookSecret: testWebhookSecret})
	payload := []byte(`{"id":"evt_1","object":"event","api_version":"` + stripe.APIVersion + `","type":"ping","data":{"object":{}}}`)

	event, err := c.VerifyWebhookSignature(payload, signPayload(payload, testWebhookSecret))
	if err != nil {
		t.Fatalf("VerifyWebhookSignature: %v", err)
	}
	if event.ID != "evt_1" || event.Type != "ping" {
		t.Fatalf("unexpected event: %+v", event)
	}

	if _, err := c.VerifyWebhookSignature(payload, signPayload(payload, "whsec_other")); !errors.Is(err, models.ErrSignature) {
		t.Fatalf("err = %v, want ErrSignature", err)
	}

	unconfigured := NewStripeClient(Config{})
	_, err = unconfigured.VerifyWebhookSignature(payload, signPayload(payload, testWebhookSecret))
	if err == nil || errors.Is(err, models.ErrSignature) {
		t.Fatalf("missing secret must be a server error, got %v", err)
	}
}

func TestProviderErrorMapping(t *testing.T) {
	notFound := &stripe.Error{HTTPStatusCode: 404, Msg: "No such checkout.session"}
	if err := providerError("retrieve", notFound); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := providerError("retrieve", errors.New("timeout")); !errors.Is(err, models.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
}
