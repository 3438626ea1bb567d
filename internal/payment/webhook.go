package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"faixabet-api/internal/models"
	"faixabet-api/pkg/logger"

	"github.com/stripe/stripe-go/v72"
)

// Stripe event types handled by Webhooks.
const (
	EventCheckoutCompleted           = "checkout.session.completed"
	EventCheckoutAsyncPaymentSucceed = "checkout.session.async_payment_succeeded"
	EventInvoicePaid                 = "invoice.paid"
	EventSubscriptionDeleted         = "customer.subscription.deleted"
)

type EventVerifier interface {
	VerifyWebhookSignature(payload []byte, sig string) (stripe.Event, error)
}

type InvoiceRetriever interface {
	RetrieveInvoice(ctx context.Context, id string) (*Invoice, error)
}

type LedgerApplier interface {
	Apply(ctx context.Context, p models.ConfirmedPayment) (bool, error)
	Deactivate(ctx context.Context, subscriptionID string) error
}

type EventStore interface {
	RecordWebhookEvent(ctx context.Context, id, eventType string) (bool, error)
	MarkWebhookEvent(ctx context.Context, id string, procErr error) error
	AssignmentBySubscription(ctx context.Context, subscriptionID string) (*models.PlanAssignment, error)
}

// Webhooks authenticates provider notifications and applies them to the ledger.
type Webhooks struct {
	verifier EventVerifier
	resolver *Resolver
	invoices InvoiceRetriever
	ledger   LedgerApplier
	store    EventStore
	logger   *logger.Logger
}

func NewWebhooks(verifier EventVerifier, resolver *Resolver, invoices InvoiceRetriever, ledger LedgerApplier, store EventStore, logger *logger.Logger) *Webhooks {
	return &Webhooks{
		verifier: verifier,
		resolver: resolver,
		invoices: invoices,
		ledger:   ledger,
		store:    store,
		logger:   logger,
	}
}

// Handle verifies payload against the signature header and dispatches the
// event. A returned error means the delivery must be answered with a non-2xx
// status: ErrSignature for authentication failures, anything else when the
// activation event could not be persisted and the provider should retry.
func (h *Webhooks) Handle(ctx context.Context, payload []byte, sig string) error {
	event, err := h.verifier.VerifyWebhookSignature(payload, sig)
	if err != nil {
		return err
	}

	log := h.logger.With("eventID", event.ID, "type", event.Type)
	first, err := h.store.RecordWebhookEvent(ctx, event.ID, event.Type)
	if err != nil {
		log.Warnw("Failed to record webhook event", "error", err)
	} else if !first {
		log.Debugw("Webhook event redelivered, processing again")
	}

	procErr := h.dispatch(ctx, event, log)

	if err := h.store.MarkWebhookEvent(ctx, event.ID, procErr); err != nil {
		log.Warnw("Failed to mark webhook event", "error", err)
	}
	return procErr
}

func (h *Webhooks) dispatch(ctx context.Context, event stripe.Event, log *logger.Logger) error {
	if event.Data == nil {
		log.Warnw("Webhook event without data")
		return nil
	}

	switch event.Type {
	case EventCheckoutCompleted, EventCheckoutAsyncPaymentSucceed:
		return h.checkoutCompleted(ctx, event.Data.Raw, log)

	case EventInvoicePaid:
		if err := h.invoicePaid(ctx, event.Data.Raw, log); err != nil {
			log.Errorw("Failed to record renewal", "error", err)
		}

	case EventSubscriptionDeleted:
		if err := h.subscriptionDeleted(ctx, event.Data.Raw, log); err != nil {
			log.Errorw("Failed to deactivate subscription", "error", err)
		}

	default:
		log.Debugw("Webhook event ignored")
	}
	return nil
}

func (h *Webhooks) checkoutCompleted(ctx context.Context, raw json.RawMessage, log *logger.Logger) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return fmt.Errorf("%w: decode checkout session: %v", models.ErrValidation, err)
	}
	if string(sess.Mode) != ModeSubscription {
		log.Infow("Checkout session is not a subscription, ignoring", "sessionID", sess.ID, "mode", sess.Mode)
		return nil
	}

	res, err := h.resolver.Resolve(ctx, sess.ID)
	if err != nil {
		return err
	}
	if res.Pending {
		log.Infow("Checkout session not paid yet", "sessionID", sess.ID, "status", res.Status)
		return nil
	}

	applied, err := h.ledger.Apply(ctx, res.Payment)
	if err != nil {
		return err
	}
	log.Infow("Checkout session reconciled", "sessionID", sess.ID, "userID", res.Payment.UserID, "applied", applied)
	return nil
}

func (h *Webhooks) invoicePaid(ctx context.Context, raw json.RawMessage, log *logger.Logger) error {
	var payload stripe.Invoice
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("decode invoice: %w", err)
	}
	if string(payload.BillingReason) == BillingReasonSubscriptionCreate {
		log.Debugw("Initial invoice is reconciled through checkout", "invoiceID", payload.ID)
		return nil
	}

	inv := invoiceFromStripe(&payload)
	if full, err := h.invoices.RetrieveInvoice(ctx, payload.ID); err != nil {
		log.Warnw("Failed to retrieve invoice, using event payload", "invoiceID", payload.ID, "error", err)
	} else {
		inv = full
	}
	if inv.SubscriptionID == "" {
		log.Infow("Invoice has no subscription, ignoring", "invoiceID", inv.ID)
		return nil
	}

	var fallback *models.PlanAssignment
	if len(inv.Metadata) == 0 {
		a, err := h.store.AssignmentBySubscription(ctx, inv.SubscriptionID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return err
		}
		fallback = a
	}

	p, err := h.resolver.FromInvoice(inv, fallback)
	if err != nil {
		return err
	}
	applied, err := h.ledger.Apply(ctx, p)
	if err != nil {
		return err
	}
	log.Infow("Renewal reconciled", "invoiceID", inv.ID, "userID", p.UserID, "applied", applied)
	return nil
}

func (h *Webhooks) subscriptionDeleted(ctx context.Context, raw json.RawMessage, log *logger.Logger) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return fmt.Errorf("decode subscription: %w", err)
	}
	if err := h.ledger.Deactivate(ctx, sub.ID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			log.Infow("No plan bound to canceled subscription", "subscriptionID", sub.ID)
			return nil
		}
		return err
	}
	return nil
}
