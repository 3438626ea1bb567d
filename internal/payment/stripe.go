// internal/payment/stripe.go
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"faixabet-api/internal/models"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/checkout/session"
	"github.com/stripe/stripe-go/v72/invoice"
	"github.com/stripe/stripe-go/v72/webhook"
)

type Config struct {
	SecretKey      string
	PublishableKey string
	WebhookSecret  string
	SuccessURL     string
	CancelURL      string
	Timeout        time.Duration
}

type StripeClient struct {
	secretKey      string
	publishableKey string
	webhookSecret  string
	successURL     string
	cancelURL      string
}

func NewStripeClient(cfg Config) *StripeClient {
	// Set the secret key for backend operations
	stripe.Key = cfg.SecretKey
	if cfg.Timeout > 0 {
		stripe.SetHTTPClient(&http.Client{Timeout: cfg.Timeout})
	}

	return &StripeClient{
		secretKey:      cfg.SecretKey,
		publishableKey: cfg.PublishableKey,
		webhookSecret:  cfg.WebhookSecret,
		successURL:     cfg.SuccessURL,
		cancelURL:      cfg.CancelURL,
	}
}

func (s *StripeClient) PublishableKey() string {
	return s.publishableKey
}

// CreateCheckoutSession opens a subscription checkout for the price and
// links it to the user through metadata on both the session and the
// subscription it creates.
func (s *StripeClient) CreateCheckoutSession(ctx context.Context, userID int64, planKey, priceID string) (string, string, error) {
	if stripe.Key != s.secretKey {
		stripe.Key = s.secretKey
	}

	uid := strconv.FormatInt(userID, 10)
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(s.successURL),
		CancelURL:         stripe.String(s.cancelURL),
		ClientReferenceID: stripe.String(uid),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				MetaUserID: uid,
				MetaPlan:   planKey,
			},
		},
	}
	params.Context = ctx
	params.AddMetadata(MetaUserID, uid)
	params.AddMetadata(MetaPlan, planKey)

	sess, err := session.New(params)
	if err != nil {
		return "", "", providerError("create checkout session", err)
	}

	return sess.ID, sess.URL, nil
}

// RetrieveSession fetches a checkout session with its subscription's latest
// invoice and its payment intent expanded.
func (s *StripeClient) RetrieveSession(ctx context.Context, id string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("subscription.latest_invoice.payment_intent.payment_method")
	params.AddExpand("payment_intent.payment_method")

	sess, err := session.Get(id, params)
	if err != nil {
		return nil, providerError("retrieve checkout session", err)
	}
	return sessionFromStripe(sess), nil
}

// RetrieveInvoice fetches an invoice with its payment intent expanded.
func (s *StripeClient) RetrieveInvoice(ctx context.Context, id string) (*Invoice, error) {
	params := &stripe.InvoiceParams{}
	params.Context = ctx
	params.AddExpand("payment_intent.payment_method")

	inv, err := invoice.Get(id, params)
	if err != nil {
		return nil, providerError("retrieve invoice", err)
	}
	return invoiceFromStripe(inv), nil
}

// VerifyWebhookSignature checks the Stripe-Signature header against the raw
// request body and returns the authenticated event.
func (s *StripeClient) VerifyWebhookSignature(payload []byte, sig string) (stripe.Event, error) {
	if s.webhookSecret == "" {
		return stripe.Event{}, fmt.Errorf("webhook secret is not configured")
	}
	if sig == "" {
		return stripe.Event{}, fmt.Errorf("%w: missing signature header", models.ErrSignature)
	}
	event, err := webhook.ConstructEvent(payload, sig, s.webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", models.ErrSignature, err)
	}
	return event, nil
}

func providerError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s: %v", models.ErrNotFound, op, err)
	}
	return fmt.Errorf("%w: %s: %v", models.ErrUpstream, op, err)
}

func sessionFromStripe(s *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:                 s.ID,
		Mode:               string(s.Mode),
		PaymentStatus:      string(s.PaymentStatus),
		ClientReferenceID:  s.ClientReferenceID,
		Metadata:           s.Metadata,
		AmountTotal:        s.AmountTotal,
		PaymentMethodTypes: s.PaymentMethodTypes,
	}
	if s.Subscription != nil {
		out.SubscriptionID = s.Subscription.ID
		out.PeriodEnd = s.Subscription.CurrentPeriodEnd
		if s.Subscription.LatestInvoice != nil && s.Subscription.LatestInvoice.ID != "" {
			out.Invoice = invoiceFromStripe(s.Subscription.LatestInvoice)
		}
	}
	if s.PaymentIntent != nil && s.PaymentIntent.ID != "" {
		out.PaymentIntent = intentFromStripe(s.PaymentIntent)
	}
	return out
}

func invoiceFromStripe(inv *stripe.Invoice) *Invoice {
	out := &Invoice{
		ID:            inv.ID,
		AmountPaid:    inv.AmountPaid,
		BillingReason: string(inv.BillingReason),
		PeriodEnd:     inv.PeriodEnd,
	}
	if inv.Subscription != nil {
		out.SubscriptionID = inv.Subscription.ID
	}
	out.PaidAt = inv.StatusTransitions.PaidAt
	if inv.Lines != nil {
		for _, line := range inv.Lines.Data {
			if line == nil {
				continue
			}
			if line.Period != nil && line.Period.End > 0 {
				out.PeriodEnd = line.Period.End
			}
			if len(line.Metadata) > 0 && out.Metadata == nil {
				out.Metadata = line.Metadata
			}
		}
	}
	if inv.PaymentIntent != nil && inv.PaymentIntent.ID != "" {
		out.PaymentIntent = intentFromStripe(inv.PaymentIntent)
	}
	return out
}

func intentFromStripe(pi *stripe.PaymentIntent) *PaymentIntent {
	out := &PaymentIntent{
		ID:          pi.ID,
		Amount:      pi.AmountReceived,
		MethodTypes: pi.PaymentMethodTypes,
	}
	if out.Amount == 0 {
		out.Amount = pi.Amount
	}
	if pi.PaymentMethod != nil {
		out.Method = string(pi.PaymentMethod.Type)
	}
	return out
}
